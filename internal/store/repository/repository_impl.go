package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/kassaflow/kassaflow/internal/store/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Store, error) {
	var store domain.Store
	err := db.WithContext(ctx).Take(&store, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *repo) GetActiveByWebhookPath(ctx context.Context, db *gorm.DB, path string) (*domain.Store, error) {
	var store domain.Store
	err := db.WithContext(ctx).Take(&store, "webhook_path = ? AND is_active = ?", path, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *repo) ActiveRelayTargets(ctx context.Context, db *gorm.DB, storeID snowflake.ID) ([]domain.RelayTarget, error) {
	var targets []domain.RelayTarget
	err := db.WithContext(ctx).
		Where("store_id = ? AND is_active = ?", storeID, true).
		Order("id").
		Find(&targets).Error
	if err != nil {
		return nil, err
	}
	return targets, nil
}

func (r *repo) ActiveChatChannels(ctx context.Context, db *gorm.DB, storeID snowflake.ID) ([]domain.ChatChannel, error) {
	var channels []domain.ChatChannel
	err := db.WithContext(ctx).
		Where("store_id = ? AND is_active = ?", storeID, true).
		Order("id").
		Find(&channels).Error
	if err != nil {
		return nil, err
	}
	return channels, nil
}
