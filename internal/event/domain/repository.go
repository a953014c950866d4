package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	StoreID  *snowflake.ID
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, event *PaymentEvent) error
	GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentEvent, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, errMessage string) error
	SetRelayStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]PaymentEvent, error)
}

var (
	ErrEventNotFound = errors.New("payment_event_not_found")
)
