package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Provider string

const (
	// ProviderOfficialAPI issues receipts through the partner proxy with a
	// plain bearer token.
	ProviderOfficialAPI Provider = "official_api"
	// ProviderUnofficialAPI talks to the consumer-facing endpoint using the
	// taxpayer's own session token and cookies.
	ProviderUnofficialAPI Provider = "unofficial_api"
)

// TaxProfile holds the credential material for one taxpayer account. The
// worker flips IsAuthenticated to false when the provider rejects the
// credential; re-authentication happens out-of-band through the management
// surface.
type TaxProfile struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	Name     string       `json:"name" gorm:"type:varchar(128);uniqueIndex;not null"`
	Provider Provider     `json:"provider" gorm:"type:varchar(32);default:'unofficial_api'"`

	TaxpayerID string `json:"taxpayer_id" gorm:"type:varchar(12)"`
	Phone      string `json:"phone" gorm:"type:varchar(32)"`
	Password   string `json:"-" gorm:"type:varchar(255)"`

	AccessToken  string `json:"-" gorm:"type:text"`
	RefreshToken string `json:"-" gorm:"type:text"`
	CookieBlob   string `json:"-" gorm:"type:text"`
	DeviceID     string `json:"device_id" gorm:"type:varchar(128)"`

	IsAuthenticated bool       `json:"is_authenticated" gorm:"default:false"`
	LastError       string     `json:"last_error" gorm:"type:text"`
	LastAuthAt      *time.Time `json:"last_auth_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (TaxProfile) TableName() string { return "tax_profiles" }
