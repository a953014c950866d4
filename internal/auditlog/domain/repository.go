package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	StoreID *snowflake.ID
	Level   string
	Event   string
	Limit   int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AppLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AppLog, error)
}

type Service interface {
	// Log records an audit entry. Failures are logged and swallowed so a
	// broken trail can never abort the transition that produced it.
	Log(ctx context.Context, level, event, message string, storeID *snowflake.ID, fields map[string]any)
	List(ctx context.Context, filter ListFilter) ([]AppLog, error)
}
