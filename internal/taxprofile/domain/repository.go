package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TaxProfile, error)
	// MarkUnauthenticated records a provider auth rejection.
	MarkUnauthenticated(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, at time.Time) error
	// ClearLastError resets the stored error after a successful provider call.
	ClearLastError(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	// SetDeviceID persists a generated device identity.
	SetDeviceID(ctx context.Context, db *gorm.DB, id snowflake.ID, deviceID string, at time.Time) error
}

var (
	ErrProfileNotFound = errors.New("tax_profile_not_found")
)
