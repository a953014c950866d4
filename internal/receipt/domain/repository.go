package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrReceiptNotFound = errors.New("receipt_not_found")

type ListFilter struct {
	StoreID   *snowflake.ID
	PaymentID string
	Status    Status
	Limit     int
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, receipt *Receipt) error
	GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Receipt, error)

	// LatestActiveByPayment returns the most recent non-canceled receipt
	// for the given store and payment, or ErrReceiptNotFound.
	LatestActiveByPayment(ctx context.Context, db *gorm.DB, storeID snowflake.ID, paymentID string) (*Receipt, error)

	MarkCanceled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Receipt, error)
}
