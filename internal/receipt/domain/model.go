package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusCreated  Status = "created"
	StatusCanceled Status = "canceled"
)

// Receipt is the fiscal document produced by a successful create_receipt
// task. At most one non-canceled receipt is considered current per
// (store, payment_id); cancellation targets the most recent one.
type Receipt struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	StoreID   snowflake.ID `json:"store_id" gorm:"not null;index"`
	TaskID    snowflake.ID `json:"task_id" gorm:"not null;index"`
	PaymentID string       `json:"payment_id" gorm:"type:varchar(128);not null;index"`

	ReceiptUUID string          `json:"receipt_uuid" gorm:"type:varchar(255)"`
	ReceiptURL  string          `json:"receipt_url" gorm:"type:varchar(512)"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(18,2)"`
	Currency    string          `json:"currency" gorm:"type:varchar(3);default:'RUB'"`
	Description string          `json:"description" gorm:"type:varchar(512)"`

	Status      Status         `json:"status" gorm:"type:varchar(16);default:'created'"`
	RawResponse datatypes.JSON `json:"raw_response" gorm:"type:jsonb"`

	CreatedAt  time.Time  `json:"created_at" gorm:"not null;index"`
	CanceledAt *time.Time `json:"canceled_at"`
}

func (Receipt) TableName() string { return "receipts" }
