package ingest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditlogdomain "github.com/kassaflow/kassaflow/internal/auditlog/domain"
	auditlogrepo "github.com/kassaflow/kassaflow/internal/auditlog/repository"
	auditlogservice "github.com/kassaflow/kassaflow/internal/auditlog/service"
	"github.com/kassaflow/kassaflow/internal/clock"
	"github.com/kassaflow/kassaflow/internal/config"
	eventdomain "github.com/kassaflow/kassaflow/internal/event/domain"
	eventrepo "github.com/kassaflow/kassaflow/internal/event/repository"
	"github.com/kassaflow/kassaflow/internal/ingest"
	"github.com/kassaflow/kassaflow/internal/notify"
	receiptdomain "github.com/kassaflow/kassaflow/internal/receipt/domain"
	receiptrepo "github.com/kassaflow/kassaflow/internal/receipt/repository"
	storedomain "github.com/kassaflow/kassaflow/internal/store/domain"
	storerepo "github.com/kassaflow/kassaflow/internal/store/repository"
	taskdomain "github.com/kassaflow/kassaflow/internal/task/domain"
	taskrepo "github.com/kassaflow/kassaflow/internal/task/repository"
)

type ingestFixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   *ingest.Service
	tasks taskdomain.Repository
}

func setupIngest(t *testing.T) *ingestFixture {
	return setupIngestWithBotAPI(t, "http://127.0.0.1:0")
}

func setupIngestWithBotAPI(t *testing.T, botAPIBaseURL string) *ingestFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:ingestdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&storedomain.Store{},
		&storedomain.RelayTarget{},
		&storedomain.ChatChannel{},
		&eventdomain.PaymentEvent{},
		&taskdomain.ReceiptTask{},
		&receiptdomain.Receipt{},
		&auditlogdomain.AppLog{},
	))

	node, err := snowflake.NewNode(13)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{NotifyTimeout: 5 * time.Second, BotAPIBaseURL: botAPIBaseURL}

	stores := storerepo.Provide()
	tasks := taskrepo.Provide()
	auditSvc := auditlogservice.NewService(auditlogservice.Params{
		DB: db, Log: log, Clock: fake, GenID: node, Repo: auditlogrepo.NewRepository(),
	})
	svc := ingest.NewService(ingest.Params{
		DB:       db,
		Log:      log,
		Clock:    fake,
		GenID:    node,
		Config:   cfg,
		Tuning:   config.NewStaticWorkerTuning(config.WorkerTuning{}),
		Stores:   stores,
		Events:   eventrepo.Provide(),
		Tasks:    tasks,
		Receipts: receiptrepo.NewRepository(),
		Notifier: notify.NewService(notify.Params{DB: db, Log: log, Config: cfg, Stores: stores}),
		Audit:    auditSvc,
	})
	return &ingestFixture{db: db, node: node, clock: fake, svc: svc, tasks: tasks}
}

func (f *ingestFixture) seedStore(t *testing.T) *storedomain.Store {
	t.Helper()
	now := f.clock.Now()
	store := &storedomain.Store{
		ID:                 f.node.Generate(),
		Name:               "shop",
		WebhookPath:        "shop-hook",
		IsActive:           true,
		PaymentIDPath:      "object.id",
		AmountPath:         "object.amount.value",
		RelayMode:          storedomain.RelayModeRetryUntil200,
		AutoCancelOnRefund: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, f.db.Create(store).Error)
	return store
}

func (f *ingestFixture) taskForEvent(t *testing.T, eventID snowflake.ID) *taskdomain.ReceiptTask {
	t.Helper()
	var task taskdomain.ReceiptTask
	err := f.db.First(&task, "event_id = ?", eventID).Error
	if err != nil {
		return nil
	}
	return &task
}

func TestHandleWebhookEnqueuesCreateTask(t *testing.T) {
	f := setupIngest(t)
	store := f.seedStore(t)

	body := []byte(`{"event":"payment.succeeded","object":{"id":"pay-1","amount":{"value":"150.50","currency":"RUB"}}}`)
	event, err := f.svc.HandleWebhook(context.Background(), "shop-hook", body)
	require.NoError(t, err)

	assert.Equal(t, store.ID, event.StoreID)
	assert.Equal(t, "payment.succeeded", event.EventType)
	assert.Equal(t, "pay-1", event.PaymentID)
	assert.Equal(t, eventdomain.StatusReceived, event.Status)

	task := f.taskForEvent(t, event.ID)
	require.NotNil(t, task)
	assert.Equal(t, taskdomain.KindCreateReceipt, task.Kind)
	assert.Equal(t, taskdomain.StatusPending, task.Status)
	assert.Equal(t, "pay-1", task.PaymentID)
	assert.Equal(t, 20, task.MaxAttempts)
	assert.False(t, task.NextRetryAt.After(f.clock.Now()))
}

func TestHandleWebhookWaitingForCaptureAlsoQueues(t *testing.T) {
	f := setupIngest(t)
	f.seedStore(t)

	body := []byte(`{"event":"payment.waiting_for_capture","object":{"id":"pay-2"}}`)
	event, err := f.svc.HandleWebhook(context.Background(), "shop-hook", body)
	require.NoError(t, err)

	task := f.taskForEvent(t, event.ID)
	require.NotNil(t, task)
	assert.Equal(t, taskdomain.KindCreateReceipt, task.Kind)
}

func TestHandleWebhookRefundCarriesReceiptUUID(t *testing.T) {
	f := setupIngest(t)
	store := f.seedStore(t)

	receipt := &receiptdomain.Receipt{
		ID:          f.node.Generate(),
		StoreID:     store.ID,
		TaskID:      f.node.Generate(),
		PaymentID:   "pay-1",
		ReceiptUUID: "uuid-1",
		Status:      receiptdomain.StatusCreated,
		CreatedAt:   f.clock.Now().Add(-time.Hour),
	}
	require.NoError(t, f.db.Create(receipt).Error)

	body := []byte(`{"event":"refund.succeeded","object":{"id":"pay-1"}}`)
	event, err := f.svc.HandleWebhook(context.Background(), "shop-hook", body)
	require.NoError(t, err)

	task := f.taskForEvent(t, event.ID)
	require.NotNil(t, task)
	assert.Equal(t, taskdomain.KindCancelReceipt, task.Kind)
	assert.Equal(t, "uuid-1", task.ReceiptUUID())
}

func TestHandleWebhookRefundWithoutReceiptStillQueues(t *testing.T) {
	f := setupIngest(t)
	f.seedStore(t)

	body := []byte(`{"event":"payment.canceled","object":{"id":"pay-9"}}`)
	event, err := f.svc.HandleWebhook(context.Background(), "shop-hook", body)
	require.NoError(t, err)

	task := f.taskForEvent(t, event.ID)
	require.NotNil(t, task)
	assert.Equal(t, taskdomain.KindCancelReceipt, task.Kind)
	assert.Equal(t, "", task.ReceiptUUID())
}

func TestHandleWebhookRefundSkippedWhenAutoCancelOff(t *testing.T) {
	f := setupIngest(t)
	store := f.seedStore(t)
	require.NoError(t, f.db.Model(&storedomain.Store{}).Where("id = ?", store.ID).Update("auto_cancel_on_refund", false).Error)

	body := []byte(`{"event":"refund.succeeded","object":{"id":"pay-1"}}`)
	event, err := f.svc.HandleWebhook(context.Background(), "shop-hook", body)
	require.NoError(t, err)

	assert.Nil(t, f.taskForEvent(t, event.ID))

	var stored eventdomain.PaymentEvent
	require.NoError(t, f.db.First(&stored, "id = ?", event.ID).Error)
	assert.Equal(t, eventdomain.StatusProcessed, stored.Status)
}

func TestHandleWebhookIrrelevantEventRecordedWithoutTask(t *testing.T) {
	f := setupIngest(t)
	f.seedStore(t)

	body := []byte(`{"event":"deal.created","object":{"id":"pay-3"}}`)
	event, err := f.svc.HandleWebhook(context.Background(), "shop-hook", body)
	require.NoError(t, err)

	assert.Nil(t, f.taskForEvent(t, event.ID))

	var stored eventdomain.PaymentEvent
	require.NoError(t, f.db.First(&stored, "id = ?", event.ID).Error)
	assert.Equal(t, eventdomain.StatusProcessed, stored.Status)
}

func TestHandleWebhookChatChannelsFilterOnNotificationName(t *testing.T) {
	type chatCall struct {
		path string
		text string
	}
	var calls []chatCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		text, _ := body["text"].(string)
		calls = append(calls, chatCall{path: r.URL.Path, text: text})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := setupIngestWithBotAPI(t, srv.URL)
	store := f.seedStore(t)

	subscribed := &storedomain.ChatChannel{
		ID:       f.node.Generate(),
		StoreID:  store.ID,
		Name:     "payments",
		BotToken: "token-a",
		ChatID:   "-100111",
		Events:   datatypes.JSON(`["payment_received"]`),
		IsActive: true,
	}
	// filtering runs on notification names, not on the raw gateway event type
	gatewayTyped := &storedomain.ChatChannel{
		ID:       f.node.Generate(),
		StoreID:  store.ID,
		Name:     "legacy",
		BotToken: "token-b",
		ChatID:   "-100222",
		Events:   datatypes.JSON(`["payment.succeeded"]`),
		IsActive: true,
	}
	require.NoError(t, f.db.Create(subscribed).Error)
	require.NoError(t, f.db.Create(gatewayTyped).Error)

	body := []byte(`{"event":"payment.succeeded","object":{"id":"pay-1","amount":{"value":"150.50"}}}`)
	_, err := f.svc.HandleWebhook(context.Background(), "shop-hook", body)
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Equal(t, "/bottoken-a/sendMessage", calls[0].path)
	assert.Equal(t, "Payment pay-1 received (payment.succeeded)", calls[0].text)
}

func TestHandleWebhookUnknownPath(t *testing.T) {
	f := setupIngest(t)
	f.seedStore(t)

	_, err := f.svc.HandleWebhook(context.Background(), "nope", []byte(`{"event":"payment.succeeded"}`))
	assert.ErrorIs(t, err, storedomain.ErrStoreNotFound)
}

func TestHandleWebhookInactiveStoreRejected(t *testing.T) {
	f := setupIngest(t)
	store := f.seedStore(t)
	require.NoError(t, f.db.Model(&storedomain.Store{}).Where("id = ?", store.ID).Update("is_active", false).Error)

	_, err := f.svc.HandleWebhook(context.Background(), "shop-hook", []byte(`{"event":"payment.succeeded"}`))
	assert.ErrorIs(t, err, storedomain.ErrStoreNotFound)
}

func TestHandleWebhookMalformedBody(t *testing.T) {
	f := setupIngest(t)
	f.seedStore(t)

	_, err := f.svc.HandleWebhook(context.Background(), "shop-hook", []byte(`not json`))
	assert.ErrorIs(t, err, ingest.ErrInvalidPayload)

	var count int64
	require.NoError(t, f.db.Model(&eventdomain.PaymentEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}
