package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kassaflow/kassaflow/internal/task/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var claimableStatuses = []domain.Status{domain.StatusPending, domain.StatusWaitingAuth}

func (r *repo) Create(ctx context.Context, db *gorm.DB, task *domain.ReceiptTask) error {
	return db.WithContext(ctx).Create(task).Error
}

func (r *repo) GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ReceiptTask, error) {
	var task domain.ReceiptTask
	err := db.WithContext(ctx).Take(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *repo) ClaimNext(ctx context.Context, db *gorm.DB, now time.Time) (*domain.ReceiptTask, error) {
	var claimed domain.ReceiptTask
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidate domain.ReceiptTask
		err := tx.
			Where("status IN ? AND next_retry_at <= ?", claimableStatuses, now).
			Order("created_at asc, id asc").
			Limit(1).
			Take(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNoEligibleTask
		}
		if err != nil {
			return err
		}

		// The status guard in the WHERE clause makes the claim atomic: a
		// concurrent worker that won the race leaves RowsAffected at zero.
		res := tx.Model(&domain.ReceiptTask{}).
			Where("id = ? AND status IN ? AND next_retry_at <= ?", candidate.ID, claimableStatuses, now).
			Updates(map[string]any{
				"status":     domain.StatusProcessing,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNoEligibleTask
		}

		candidate.Status = domain.StatusProcessing
		candidate.Attempts++
		candidate.UpdatedAt = now
		claimed = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

func (r *repo) Succeed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return r.transition(ctx, db, id, map[string]any{
		"status":        domain.StatusSuccess,
		"error_message": "",
		"updated_at":    at,
	})
}

func (r *repo) Fail(ctx context.Context, db *gorm.DB, id snowflake.ID, errMessage string, at time.Time) error {
	return r.transition(ctx, db, id, map[string]any{
		"status":        domain.StatusFailed,
		"error_message": errMessage,
		"updated_at":    at,
	})
}

func (r *repo) ScheduleRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, errMessage string, nextRetryAt time.Time, at time.Time) error {
	return r.transition(ctx, db, id, map[string]any{
		"status":        domain.StatusPending,
		"error_message": errMessage,
		"next_retry_at": nextRetryAt,
		"updated_at":    at,
	})
}

func (r *repo) Suspend(ctx context.Context, db *gorm.DB, id snowflake.ID, errMessage string, nextRetryAt time.Time, at time.Time) error {
	return r.transition(ctx, db, id, map[string]any{
		"status":        domain.StatusWaitingAuth,
		"error_message": errMessage,
		"next_retry_at": nextRetryAt,
		"updated_at":    at,
	})
}

func (r *repo) Requeue(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	res := db.WithContext(ctx).Model(&domain.ReceiptTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusPending,
			"error_message": "",
			"next_retry_at": at,
			"updated_at":    at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *repo) ResetStale(ctx context.Context, db *gorm.DB, cutoff time.Time, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.ReceiptTask{}).
		Where("status = ? AND updated_at <= ?", domain.StatusProcessing, cutoff).
		Updates(map[string]any{
			"status":        domain.StatusPending,
			"next_retry_at": at,
			"updated_at":    at,
		})
	return res.RowsAffected, res.Error
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB, storeID *snowflake.ID) (domain.StatusCounts, error) {
	type row struct {
		Status domain.Status
		Total  int64
	}

	stmt := db.WithContext(ctx).Model(&domain.ReceiptTask{}).
		Select("status, count(*) as total").
		Group("status")
	if storeID != nil {
		stmt = stmt.Where("store_id = ?", *storeID)
	}

	var rows []row
	if err := stmt.Find(&rows).Error; err != nil {
		return domain.StatusCounts{}, err
	}

	var counts domain.StatusCounts
	for _, r := range rows {
		switch r.Status {
		case domain.StatusPending:
			counts.Pending = r.Total
		case domain.StatusProcessing:
			counts.Processing = r.Total
		case domain.StatusSuccess:
			counts.Success = r.Total
		case domain.StatusFailed:
			counts.Failed = r.Total
		case domain.StatusWaitingAuth:
			counts.WaitingAuth = r.Total
		}
	}
	return counts, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.ReceiptTask, error) {
	stmt := db.WithContext(ctx).Model(&domain.ReceiptTask{})
	if filter.StoreID != nil {
		stmt = stmt.Where("store_id = ?", *filter.StoreID)
	}
	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}

	var tasks []domain.ReceiptTask
	err := stmt.Order("created_at desc, id desc").Limit(limit).Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repo) transition(ctx context.Context, db *gorm.DB, id snowflake.ID, updates map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.ReceiptTask{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}
