// Package ingest turns inbound payment-gateway webhooks into stored events
// and queued receipt tasks.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditlogdomain "github.com/kassaflow/kassaflow/internal/auditlog/domain"
	"github.com/kassaflow/kassaflow/internal/clock"
	"github.com/kassaflow/kassaflow/internal/config"
	eventdomain "github.com/kassaflow/kassaflow/internal/event/domain"
	"github.com/kassaflow/kassaflow/internal/notify"
	receiptdomain "github.com/kassaflow/kassaflow/internal/receipt/domain"
	storedomain "github.com/kassaflow/kassaflow/internal/store/domain"
	taskdomain "github.com/kassaflow/kassaflow/internal/task/domain"
	"github.com/kassaflow/kassaflow/internal/template"
)

// ErrInvalidPayload marks webhook bodies that are not a JSON object.
var ErrInvalidPayload = errors.New("invalid_webhook_payload")

// Gateway event names that drive the receipt lifecycle.
const (
	EventPaymentSucceeded         = "payment.succeeded"
	EventPaymentWaitingForCapture = "payment.waiting_for_capture"
	EventPaymentCanceled          = "payment.canceled"
	EventRefundSucceeded          = "refund.succeeded"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	GenID  *snowflake.Node
	Config config.Config
	Tuning *config.WorkerTuningHolder

	Stores   storedomain.Repository
	Events   eventdomain.Repository
	Tasks    taskdomain.Repository
	Receipts receiptdomain.Repository

	Notifier *notify.Service
	Audit    auditlogdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	genID  *snowflake.Node
	tuning *config.WorkerTuningHolder

	stores   storedomain.Repository
	events   eventdomain.Repository
	tasks    taskdomain.Repository
	receipts receiptdomain.Repository

	notifier *notify.Service
	audit    auditlogdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("ingest.service"),
		clock:    p.Clock,
		genID:    p.GenID,
		tuning:   p.Tuning,
		stores:   p.Stores,
		events:   p.Events,
		tasks:    p.Tasks,
		receipts: p.Receipts,
		notifier: p.Notifier,
		audit:    p.Audit,
	}
}

// HandleWebhook records the gateway notification for the store mounted at
// path and, for lifecycle-relevant events, enqueues the matching receipt
// task. The event row and the task are committed together; relay and chat
// delivery happen after commit and never fail the webhook.
func (s *Service) HandleWebhook(ctx context.Context, path string, body []byte) (*eventdomain.PaymentEvent, error) {
	store, err := s.stores.GetActiveByWebhookPath(ctx, s.db, path)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	eventName, _ := payload["event"].(string)
	paymentID, _ := template.Lookup(payload, store.PaymentIDPath, "").(string)

	now := s.clock.Now()
	event := &eventdomain.PaymentEvent{
		ID:          s.genID.Generate(),
		StoreID:     store.ID,
		EventType:   eventName,
		PaymentID:   paymentID,
		Payload:     datatypes.JSON(body),
		Status:      eventdomain.StatusReceived,
		RelayStatus: eventdomain.RelayStatusPending,
		ReceivedAt:  now,
	}

	task := s.buildTask(ctx, store, event, payload)

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.events.Create(ctx, tx, event); err != nil {
			return err
		}
		if task != nil {
			return s.tasks.Create(ctx, tx, task)
		}
		// nothing queued for this event, it is already in its final state
		return s.events.MarkProcessed(ctx, tx, event.ID, now)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.audit.Log(ctx, auditlogdomain.LevelInfo, "webhook_received", fmt.Sprintf("event %s for payment %s", eventName, paymentID), &store.ID, map[string]any{
		"event_id":   event.ID.String(),
		"event_type": eventName,
		"payment_id": paymentID,
		"queued":     task != nil,
	})

	relayStatus := s.notifier.Relay(ctx, store, event, "")
	if err := s.events.SetRelayStatus(ctx, s.db, event.ID, relayStatus); err != nil {
		s.log.Warn("failed to record relay status", zap.Error(err))
	}

	// Chat channels subscribe to logical notification names, not gateway
	// event types; only lifecycle-relevant events produce a notification.
	switch eventName {
	case EventPaymentSucceeded, EventPaymentWaitingForCapture:
		text := fmt.Sprintf("Payment %s received (%s)", paymentID, eventName)
		s.notifier.NotifyChat(ctx, store, notify.NotifyPaymentReceived, text, "")
	case EventRefundSucceeded, EventPaymentCanceled:
		if store.AutoCancelOnRefund {
			text := fmt.Sprintf("Refund received for payment %s (%s)", paymentID, eventName)
			s.notifier.NotifyChat(ctx, store, notify.NotifyRefundReceived, text, "")
		}
	}

	return event, nil
}

// buildTask maps the gateway event to a receipt task, or nil when the event
// carries no receipt work.
func (s *Service) buildTask(ctx context.Context, store *storedomain.Store, event *eventdomain.PaymentEvent, payload map[string]any) *taskdomain.ReceiptTask {
	switch event.EventType {
	case EventPaymentSucceeded, EventPaymentWaitingForCapture:
		return s.newTask(store, event, taskdomain.KindCreateReceipt, nil)
	case EventRefundSucceeded, EventPaymentCanceled:
		if !store.AutoCancelOnRefund {
			return nil
		}
		taskPayload := map[string]any{}
		receipt, err := s.receipts.LatestActiveByPayment(ctx, s.db, store.ID, event.PaymentID)
		if err == nil {
			taskPayload["receipt_uuid"] = receipt.ReceiptUUID
		} else if !errors.Is(err, receiptdomain.ErrReceiptNotFound) {
			s.log.Warn("failed to look up receipt for cancellation", zap.Error(err))
		}
		return s.newTask(store, event, taskdomain.KindCancelReceipt, taskPayload)
	default:
		return nil
	}
}

func (s *Service) newTask(store *storedomain.Store, event *eventdomain.PaymentEvent, kind taskdomain.Kind, payload map[string]any) *taskdomain.ReceiptTask {
	now := s.clock.Now()
	encoded, _ := json.Marshal(payload)
	if payload == nil {
		encoded = []byte("{}")
	}
	return &taskdomain.ReceiptTask{
		ID:          s.genID.Generate(),
		StoreID:     store.ID,
		EventID:     event.ID,
		PaymentID:   event.PaymentID,
		Kind:        kind,
		Payload:     datatypes.JSON(encoded),
		Status:      taskdomain.StatusPending,
		MaxAttempts: s.tuning.Get().DefaultMaxAttempts,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
