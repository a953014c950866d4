package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Store, error)
	GetActiveByWebhookPath(ctx context.Context, db *gorm.DB, path string) (*Store, error)
	ActiveRelayTargets(ctx context.Context, db *gorm.DB, storeID snowflake.ID) ([]RelayTarget, error)
	ActiveChatChannels(ctx context.Context, db *gorm.DB, storeID snowflake.ID) ([]ChatChannel, error)
}

var (
	ErrStoreNotFound = errors.New("store_not_found")
)
