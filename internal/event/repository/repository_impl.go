package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kassaflow/kassaflow/internal/event/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, event *domain.PaymentEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentEvent, error) {
	var event domain.PaymentEvent
	err := db.WithContext(ctx).Take(&event, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.PaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusProcessed,
			"error_message": "",
			"processed_at":  at,
		}).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, errMessage string) error {
	return db.WithContext(ctx).Model(&domain.PaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"error_message": errMessage,
		}).Error
}

func (r *repo) SetRelayStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string) error {
	return db.WithContext(ctx).Model(&domain.PaymentEvent{}).
		Where("id = ?", id).
		Update("relay_status", status).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.PaymentEvent, error) {
	stmt := db.WithContext(ctx).Model(&domain.PaymentEvent{})
	if filter.StoreID != nil {
		stmt = stmt.Where("store_id = ?", *filter.StoreID)
	}
	if filter.DateFrom != nil {
		stmt = stmt.Where("received_at >= ?", filter.DateFrom.UTC())
	}
	if filter.DateTo != nil {
		stmt = stmt.Where("received_at <= ?", filter.DateTo.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}

	var events []domain.PaymentEvent
	err := stmt.Order("received_at desc, id desc").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
