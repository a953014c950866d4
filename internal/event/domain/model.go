package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusReceived  Status = "received"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Relay delivery status codes recorded on the event.
const (
	RelayStatusPending      = "pending"
	RelayStatusNoTargets    = "no_targets"
	RelayStatusSuccess      = "success"
	RelayStatusPartialError = "partial_error"
	RelayStatusError        = "error"
)

// PaymentEvent is one inbound gateway notification. The payload is immutable
// once created; status and processed_at are written only by the worker.
type PaymentEvent struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	StoreID   snowflake.ID   `json:"store_id" gorm:"not null;index"`
	EventType string         `json:"event_type" gorm:"type:varchar(64);not null"`
	PaymentID string         `json:"payment_id" gorm:"type:varchar(128);not null;index"`
	Payload   datatypes.JSON `json:"payload" gorm:"type:jsonb"`

	Status       Status `json:"status" gorm:"type:varchar(16);default:'received'"`
	RelayStatus  string `json:"relay_status" gorm:"type:varchar(64);default:'pending'"`
	ErrorMessage string `json:"error_message" gorm:"type:text"`

	ReceivedAt  time.Time  `json:"received_at" gorm:"not null;index"`
	ProcessedAt *time.Time `json:"processed_at"`
}

func (PaymentEvent) TableName() string { return "payment_events" }

// PayloadMap decodes the stored payload document.
func (e *PaymentEvent) PayloadMap() map[string]any {
	if len(e.Payload) == 0 {
		return map[string]any{}
	}
	var payload map[string]any
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return map[string]any{}
	}
	return payload
}
