package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kassaflow/kassaflow/internal/taxprofile/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.TaxProfile, error) {
	var profile domain.TaxProfile
	err := db.WithContext(ctx).Take(&profile, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repo) MarkUnauthenticated(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.TaxProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_authenticated": false,
			"last_error":       lastError,
			"updated_at":       at,
		}).Error
}

func (r *repo) ClearLastError(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.TaxProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error": "",
			"updated_at": at,
		}).Error
}

func (r *repo) SetDeviceID(ctx context.Context, db *gorm.DB, id snowflake.ID, deviceID string, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.TaxProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"device_id":  deviceID,
			"updated_at": at,
		}).Error
}
