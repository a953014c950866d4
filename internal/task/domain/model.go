package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindCreateReceipt Kind = "create_receipt"
	KindCancelReceipt Kind = "cancel_receipt"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusWaitingAuth Status = "waiting_auth"
)

// ReceiptTask is one unit of queued work against the fiscal provider.
//
// Status processing is a transient marker held for the duration of a single
// worker pass; a task stuck in processing past the recovery threshold is
// reset to pending with attempts unchanged. next_retry_at is honored
// strictly: the task is not eligible before that instant.
type ReceiptTask struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	StoreID   snowflake.ID   `json:"store_id" gorm:"not null;index"`
	EventID   snowflake.ID   `json:"event_id" gorm:"not null;index"`
	PaymentID string         `json:"payment_id" gorm:"type:varchar(128);not null"`
	Kind      Kind           `json:"kind" gorm:"type:varchar(32);not null"`
	Payload   datatypes.JSON `json:"payload" gorm:"type:jsonb"`

	Status       Status    `json:"status" gorm:"type:varchar(16);default:'pending';index"`
	Attempts     int       `json:"attempts" gorm:"default:0"`
	MaxAttempts  int       `json:"max_attempts" gorm:"default:20"`
	NextRetryAt  time.Time `json:"next_retry_at" gorm:"not null;index"`
	ErrorMessage string    `json:"error_message" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (ReceiptTask) TableName() string { return "receipt_tasks" }

// PayloadMap decodes the kind-specific task payload.
func (t *ReceiptTask) PayloadMap() map[string]any {
	if len(t.Payload) == 0 {
		return map[string]any{}
	}
	var payload map[string]any
	if err := json.Unmarshal(t.Payload, &payload); err != nil {
		return map[string]any{}
	}
	return payload
}

// ReceiptUUID returns the cancellation target carried by cancel_receipt tasks.
func (t *ReceiptTask) ReceiptUUID() string {
	uuid, _ := t.PayloadMap()["receipt_uuid"].(string)
	return uuid
}

// StatusCounts is the queue snapshot exposed for dashboarding.
type StatusCounts struct {
	Pending     int64 `json:"pending"`
	Processing  int64 `json:"processing"`
	Success     int64 `json:"success"`
	Failed      int64 `json:"failed"`
	WaitingAuth int64 `json:"waiting_auth"`
}

// Depth is the number of tasks still awaiting work.
func (c StatusCounts) Depth() int64 {
	return c.Pending + c.Processing + c.WaitingAuth
}
