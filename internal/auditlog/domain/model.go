package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// AppLog is one audit trail entry. The trail is a side channel for
// operators; writes to it are best-effort and never gate a state change.
type AppLog struct {
	ID      snowflake.ID  `json:"id" gorm:"primaryKey"`
	StoreID *snowflake.ID `json:"store_id" gorm:"index"`

	Level   string `json:"level" gorm:"type:varchar(16);not null;index"`
	Event   string `json:"event" gorm:"type:varchar(64);not null;index"`
	Message string `json:"message" gorm:"type:text"`

	Context datatypes.JSONMap `json:"context" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;index"`
}

func (AppLog) TableName() string { return "app_logs" }
