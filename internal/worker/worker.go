// Package worker runs the receipt task queue: a single polling loop that
// claims one eligible task per tick, calls the fiscal provider and commits
// the resulting transition in one transaction.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditlogdomain "github.com/kassaflow/kassaflow/internal/auditlog/domain"
	"github.com/kassaflow/kassaflow/internal/clock"
	"github.com/kassaflow/kassaflow/internal/config"
	eventdomain "github.com/kassaflow/kassaflow/internal/event/domain"
	"github.com/kassaflow/kassaflow/internal/fiscal/adapters"
	fiscaldomain "github.com/kassaflow/kassaflow/internal/fiscal/domain"
	"github.com/kassaflow/kassaflow/internal/notify"
	receiptdomain "github.com/kassaflow/kassaflow/internal/receipt/domain"
	storedomain "github.com/kassaflow/kassaflow/internal/store/domain"
	taskdomain "github.com/kassaflow/kassaflow/internal/task/domain"
	taxprofiledomain "github.com/kassaflow/kassaflow/internal/taxprofile/domain"
	"github.com/kassaflow/kassaflow/internal/template"
)

const (
	outcomeSuccess     = "success"
	outcomeRetry       = "retry"
	outcomeWaitingAuth = "waiting_auth"
	outcomeFailed      = "failed"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Config   config.Config
	Tuning   *config.WorkerTuningHolder
	Registry *adapters.Registry

	Tasks    taskdomain.Repository
	Events   eventdomain.Repository
	Stores   storedomain.Repository
	Profiles taxprofiledomain.Repository
	Receipts receiptdomain.Repository

	Notifier *notify.Service
	Audit    auditlogdomain.Service
}

type Worker struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	genID    *snowflake.Node
	cfg      config.Config
	tuning   *config.WorkerTuningHolder
	registry *adapters.Registry

	tasks    taskdomain.Repository
	events   eventdomain.Repository
	stores   storedomain.Repository
	profiles taxprofiledomain.Repository
	receipts receiptdomain.Repository

	notifier *notify.Service
	audit    auditlogdomain.Service
}

func New(p Params) *Worker {
	return &Worker{
		db:       p.DB,
		log:      p.Log.Named("worker"),
		clock:    p.Clock,
		genID:    p.GenID,
		cfg:      p.Config,
		tuning:   p.Tuning,
		registry: p.Registry,
		tasks:    p.Tasks,
		events:   p.Events,
		stores:   p.Stores,
		profiles: p.Profiles,
		receipts: p.Receipts,
		notifier: p.Notifier,
		audit:    p.Audit,
	}
}

// RunOnce claims and processes at most one task. A tick with no eligible
// task is a no-op, not an error.
func (w *Worker) RunOnce(ctx context.Context) error {
	now := w.clock.Now()
	task, err := w.tasks.ClaimNext(ctx, w.db, now)
	if errors.Is(err, taskdomain.ErrNoEligibleTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim task: %w", err)
	}

	w.audit.Log(ctx, auditlogdomain.LevelInfo, "task_processing", "task claimed for processing", &task.StoreID, map[string]any{
		"task_id":    task.ID.String(),
		"payment_id": task.PaymentID,
		"kind":       string(task.Kind),
		"attempt":    task.Attempts,
	})

	start := w.clock.Now()
	outcome, err := w.processTask(ctx, task)
	QueueMetrics().ObserveTask(string(task.Kind), outcome, w.clock.Now().Sub(start))

	if counts, countErr := w.tasks.CountByStatus(ctx, w.db, nil); countErr == nil {
		QueueMetrics().SetQueueDepth(counts.Depth())
	}
	return err
}

// RunForever polls on the configured interval until the context ends. The
// stale-processing sweep runs before the first tick and then once per
// recovery threshold window.
func (w *Worker) RunForever(ctx context.Context) {
	tuning := w.tuning.Get()
	ticker := time.NewTicker(tuning.PollInterval)
	defer ticker.Stop()

	if err := w.RecoverStale(ctx); err != nil {
		w.log.Warn("stale task recovery failed", zap.Error(err))
	}
	lastRecovery := w.clock.Now()

	for {
		if err := w.RunOnce(ctx); err != nil {
			QueueMetrics().IncTickError()
			w.log.Warn("worker tick failed", zap.Error(err))
		}

		updated := w.tuning.Get()
		if updated.PollInterval != tuning.PollInterval {
			ticker.Reset(updated.PollInterval)
		}
		tuning = updated
		if w.clock.Now().Sub(lastRecovery) >= tuning.RecoveryThreshold {
			if err := w.RecoverStale(ctx); err != nil {
				w.log.Warn("stale task recovery failed", zap.Error(err))
			}
			lastRecovery = w.clock.Now()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RecoverStale returns tasks stuck in processing past the recovery threshold
// to pending, attempts unchanged. Covers crashes between claim and commit.
func (w *Worker) RecoverStale(ctx context.Context) error {
	now := w.clock.Now()
	cutoff := now.Add(-w.tuning.Get().RecoveryThreshold)
	reset, err := w.tasks.ResetStale(ctx, w.db, cutoff, now)
	if err != nil {
		return fmt.Errorf("reset stale tasks: %w", err)
	}
	if reset > 0 {
		QueueMetrics().AddStaleResets(reset)
		w.log.Info("recovered stale tasks", zap.Int64("count", reset))
		w.audit.Log(ctx, auditlogdomain.LevelWarning, "tasks_recovered", fmt.Sprintf("%d stale processing tasks returned to pending", reset), nil, map[string]any{
			"count": reset,
		})
	}
	return nil
}

func (w *Worker) processTask(ctx context.Context, task *taskdomain.ReceiptTask) (string, error) {
	store, err := w.stores.GetByID(ctx, w.db, task.StoreID)
	if err != nil {
		return w.failTerminal(ctx, task, nil, nil, fmt.Sprintf("store %s cannot be resolved: %v", task.StoreID, err))
	}
	event, err := w.events.GetByID(ctx, w.db, task.EventID)
	if err != nil {
		return w.failTerminal(ctx, task, store, nil, fmt.Sprintf("event %s cannot be resolved: %v", task.EventID, err))
	}
	if store.TaxProfileID == nil {
		return w.failTerminal(ctx, task, store, event, "store has no tax profile configured")
	}
	profile, err := w.profiles.GetByID(ctx, w.db, *store.TaxProfileID)
	if err != nil {
		return w.failTerminal(ctx, task, store, event, fmt.Sprintf("tax profile %s cannot be resolved: %v", *store.TaxProfileID, err))
	}

	deviceGenerated := false
	if profile.Provider == taxprofiledomain.ProviderUnofficialAPI && profile.DeviceID == "" {
		profile.DeviceID = uuid.NewString()
		deviceGenerated = true
	}

	client, err := w.registry.NewClient(string(profile.Provider), fiscaldomain.ClientConfig{
		Profile:      profile,
		ProxyBaseURL: w.cfg.ProxyBaseURL,
		HTTPTimeout:  w.cfg.ProviderTimeout,
	})
	if err != nil {
		return w.failTerminal(ctx, task, store, event, fmt.Sprintf("fiscal client for provider %q: %v", profile.Provider, err))
	}

	switch task.Kind {
	case taskdomain.KindCreateReceipt:
		return w.runCreate(ctx, task, store, event, profile, client, deviceGenerated)
	case taskdomain.KindCancelReceipt:
		return w.runCancel(ctx, task, store, event, profile, client, deviceGenerated)
	default:
		return w.failTerminal(ctx, task, store, event, fmt.Sprintf("unknown task kind %q", task.Kind))
	}
}

func (w *Worker) runCreate(
	ctx context.Context,
	task *taskdomain.ReceiptTask,
	store *storedomain.Store,
	event *eventdomain.PaymentEvent,
	profile *taxprofiledomain.TaxProfile,
	client fiscaldomain.Client,
	deviceGenerated bool,
) (string, error) {
	payload := event.PayloadMap()
	renderCtx := template.BuildContext(payload, store.PaymentIDPath, store.AmountPath, store.CustomerNamePath)
	description := template.Render(store.DescriptionTemplate, renderCtx)
	amount := coerceAmount(template.Lookup(payload, store.AmountPath, nil))
	currency, _ := template.Lookup(payload, "object.amount.currency", "RUB").(string)
	if currency == "" {
		currency = "RUB"
	}

	result, err := client.CreateReceipt(ctx, fiscaldomain.CreateReceiptRequest{
		Description:  description,
		Amount:       amount,
		PaymentID:    task.PaymentID,
		EventPayload: payload,
	})
	if err != nil {
		return w.handleProviderError(ctx, task, store, event, profile, err)
	}

	now := w.clock.Now()
	rawResponse, _ := json.Marshal(result.Raw)
	receipt := &receiptdomain.Receipt{
		ID:          w.genID.Generate(),
		StoreID:     store.ID,
		TaskID:      task.ID,
		PaymentID:   task.PaymentID,
		ReceiptUUID: result.ReceiptUUID,
		ReceiptURL:  result.ReceiptURL,
		Amount:      amount,
		Currency:    currency,
		Description: description,
		Status:      receiptdomain.StatusCreated,
		RawResponse: datatypes.JSON(rawResponse),
		CreatedAt:   now,
	}

	txErr := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := w.tasks.Succeed(ctx, tx, task.ID, now); err != nil {
			return err
		}
		if err := w.events.MarkProcessed(ctx, tx, event.ID, now); err != nil {
			return err
		}
		if err := w.receipts.Create(ctx, tx, receipt); err != nil {
			return err
		}
		if deviceGenerated {
			if err := w.profiles.SetDeviceID(ctx, tx, profile.ID, profile.DeviceID, now); err != nil {
				return err
			}
		}
		return w.profiles.ClearLastError(ctx, tx, profile.ID, now)
	})
	if txErr != nil {
		return outcomeFailed, fmt.Errorf("commit create_receipt success: %w", txErr)
	}

	w.audit.Log(ctx, auditlogdomain.LevelInfo, "receipt_created", fmt.Sprintf("receipt %s issued for payment %s", result.ReceiptUUID, task.PaymentID), &store.ID, map[string]any{
		"task_id":      task.ID.String(),
		"payment_id":   task.PaymentID,
		"receipt_uuid": result.ReceiptUUID,
		"amount":       amount.String(),
		"attempt":      task.Attempts,
	})

	relayStatus := w.notifier.Relay(ctx, store, event, result.ReceiptURL)
	if err := w.events.SetRelayStatus(ctx, w.db, event.ID, relayStatus); err != nil {
		w.log.Warn("failed to record relay status", zap.Error(err))
	}
	text := fmt.Sprintf("Receipt created for payment %s: %s %s", task.PaymentID, amount.StringFixed(2), currency)
	w.notifier.NotifyChat(ctx, store, notify.NotifyReceiptCreated, text, result.ReceiptURL)

	return outcomeSuccess, nil
}

func (w *Worker) runCancel(
	ctx context.Context,
	task *taskdomain.ReceiptTask,
	store *storedomain.Store,
	event *eventdomain.PaymentEvent,
	profile *taxprofiledomain.TaxProfile,
	client fiscaldomain.Client,
	deviceGenerated bool,
) (string, error) {
	receiptUUID := task.ReceiptUUID()
	if receiptUUID == "" {
		return w.failTerminal(ctx, task, store, event, "cancel_receipt task carries no receipt_uuid")
	}

	if _, err := client.CancelReceipt(ctx, receiptUUID); err != nil {
		return w.handleProviderError(ctx, task, store, event, profile, err)
	}

	now := w.clock.Now()
	txErr := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := w.tasks.Succeed(ctx, tx, task.ID, now); err != nil {
			return err
		}
		if err := w.events.MarkProcessed(ctx, tx, event.ID, now); err != nil {
			return err
		}
		receipt, err := w.receipts.LatestActiveByPayment(ctx, tx, store.ID, task.PaymentID)
		if err == nil {
			if err := w.receipts.MarkCanceled(ctx, tx, receipt.ID, now); err != nil {
				return err
			}
		} else if !errors.Is(err, receiptdomain.ErrReceiptNotFound) {
			return err
		}
		if deviceGenerated {
			if err := w.profiles.SetDeviceID(ctx, tx, profile.ID, profile.DeviceID, now); err != nil {
				return err
			}
		}
		return w.profiles.ClearLastError(ctx, tx, profile.ID, now)
	})
	if txErr != nil {
		return outcomeFailed, fmt.Errorf("commit cancel_receipt success: %w", txErr)
	}

	w.audit.Log(ctx, auditlogdomain.LevelInfo, "receipt_canceled", fmt.Sprintf("receipt %s canceled for payment %s", receiptUUID, task.PaymentID), &store.ID, map[string]any{
		"task_id":      task.ID.String(),
		"payment_id":   task.PaymentID,
		"receipt_uuid": receiptUUID,
		"attempt":      task.Attempts,
	})

	text := fmt.Sprintf("Receipt canceled for payment %s", task.PaymentID)
	w.notifier.NotifyChat(ctx, store, notify.NotifyReceiptCanceled, text, "")
	return outcomeSuccess, nil
}

// handleProviderError routes a failed provider call: authentication errors
// park the task in waiting_auth and flip the profile, exhausted tasks go
// terminal, everything else retries with linear capped backoff.
func (w *Worker) handleProviderError(
	ctx context.Context,
	task *taskdomain.ReceiptTask,
	store *storedomain.Store,
	event *eventdomain.PaymentEvent,
	profile *taxprofiledomain.TaxProfile,
	callErr error,
) (string, error) {
	now := w.clock.Now()
	tuning := w.tuning.Get()

	var authErr *fiscaldomain.AuthError
	if errors.As(callErr, &authErr) {
		nextRetry := now.Add(tuning.AuthRetryDelay)
		txErr := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := w.tasks.Suspend(ctx, tx, task.ID, callErr.Error(), nextRetry, now); err != nil {
				return err
			}
			if err := w.events.MarkFailed(ctx, tx, event.ID, callErr.Error()); err != nil {
				return err
			}
			return w.profiles.MarkUnauthenticated(ctx, tx, profile.ID, callErr.Error(), now)
		})
		if txErr != nil {
			return outcomeFailed, fmt.Errorf("commit waiting_auth transition: %w", txErr)
		}
		w.audit.Log(ctx, auditlogdomain.LevelWarning, "task_waiting_auth", "provider rejected credentials, task parked until re-authentication", &store.ID, map[string]any{
			"task_id":       task.ID.String(),
			"payment_id":    task.PaymentID,
			"attempt":       task.Attempts,
			"next_retry_at": nextRetry,
		})
		text := fmt.Sprintf("Re-authentication required for tax profile %s, receipt issuance is on hold", profile.Name)
		w.notifier.NotifyChat(ctx, store, notify.NotifyAuthRequired, text, "")
		return outcomeWaitingAuth, nil
	}

	maxAttempts := task.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = tuning.DefaultMaxAttempts
	}
	if task.Attempts >= maxAttempts {
		return w.failTerminal(ctx, task, store, event, fmt.Sprintf("gave up after %d attempts: %v", task.Attempts, callErr))
	}

	backoff := time.Duration(task.Attempts) * tuning.BackoffStep
	if backoff > tuning.BackoffCap {
		backoff = tuning.BackoffCap
	}
	nextRetry := now.Add(backoff)
	txErr := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := w.tasks.ScheduleRetry(ctx, tx, task.ID, callErr.Error(), nextRetry, now); err != nil {
			return err
		}
		return w.events.MarkFailed(ctx, tx, event.ID, callErr.Error())
	})
	if txErr != nil {
		return outcomeFailed, fmt.Errorf("commit retry transition: %w", txErr)
	}
	w.audit.Log(ctx, auditlogdomain.LevelWarning, "task_retry_scheduled", callErr.Error(), &store.ID, map[string]any{
		"task_id":       task.ID.String(),
		"payment_id":    task.PaymentID,
		"attempt":       task.Attempts,
		"max_attempts":  maxAttempts,
		"next_retry_at": nextRetry,
	})
	return outcomeRetry, nil
}

// failTerminal commits the non-retryable transition. store and event may be
// nil when the failure is that they could not be loaded.
func (w *Worker) failTerminal(
	ctx context.Context,
	task *taskdomain.ReceiptTask,
	store *storedomain.Store,
	event *eventdomain.PaymentEvent,
	message string,
) (string, error) {
	now := w.clock.Now()
	txErr := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := w.tasks.Fail(ctx, tx, task.ID, message, now); err != nil {
			return err
		}
		if event != nil {
			return w.events.MarkFailed(ctx, tx, event.ID, message)
		}
		return nil
	})
	if txErr != nil {
		return outcomeFailed, fmt.Errorf("commit failed transition: %w", txErr)
	}

	var storeID *snowflake.ID
	if store != nil {
		storeID = &store.ID
	}
	w.audit.Log(ctx, auditlogdomain.LevelError, "task_failed", message, storeID, map[string]any{
		"task_id":    task.ID.String(),
		"payment_id": task.PaymentID,
		"kind":       string(task.Kind),
		"attempt":    task.Attempts,
	})
	return outcomeFailed, nil
}

func coerceAmount(value any) decimal.Decimal {
	switch v := value.(type) {
	case string:
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return amount
	case float64:
		return decimal.NewFromFloat(v)
	case int64:
		return decimal.NewFromInt(v)
	case int:
		return decimal.NewFromInt(int64(v))
	default:
		return decimal.Zero
	}
}
