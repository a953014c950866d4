package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	StoreID *snowflake.ID
	Status  *Status
	Limit   int
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, task *ReceiptTask) error
	GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ReceiptTask, error)

	// ClaimNext atomically selects the oldest eligible task (pending or
	// waiting_auth, next_retry_at <= now), marks it processing and increments
	// attempts. The mark is a conditional update so concurrent workers cannot
	// claim the same task; ErrNoEligibleTask means the tick is a no-op.
	ClaimNext(ctx context.Context, db *gorm.DB, now time.Time) (*ReceiptTask, error)

	// Succeed finalizes the task and clears its error text.
	Succeed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	// Fail is the terminal transition for exhausted or non-retryable tasks.
	Fail(ctx context.Context, db *gorm.DB, id snowflake.ID, errMessage string, at time.Time) error
	// ScheduleRetry returns the task to pending with a future retry time.
	ScheduleRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, errMessage string, nextRetryAt time.Time, at time.Time) error
	// Suspend parks the task in waiting_auth until credentials are renewed.
	Suspend(ctx context.Context, db *gorm.DB, id snowflake.ID, errMessage string, nextRetryAt time.Time, at time.Time) error

	// Requeue resets a task to pending regardless of prior state, clearing
	// its error and making it immediately eligible.
	Requeue(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error

	// ResetStale returns tasks stuck in processing since before cutoff to
	// pending, attempts unchanged. Reports how many were reset.
	ResetStale(ctx context.Context, db *gorm.DB, cutoff time.Time, at time.Time) (int64, error)

	CountByStatus(ctx context.Context, db *gorm.DB, storeID *snowflake.ID) (StatusCounts, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]ReceiptTask, error)
}

var (
	ErrTaskNotFound   = errors.New("receipt_task_not_found")
	ErrNoEligibleTask = errors.New("no_eligible_task")
)
