package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type RelayMode string

const (
	RelayModeFireAndForget RelayMode = "fire_and_forget"
	RelayModeRetryUntil200 RelayMode = "retry_until_200"
)

// Store is one configured merchant endpoint. Inbound webhooks are matched by
// WebhookPath; the field paths describe where to find values inside the
// gateway payload.
type Store struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Name        string       `json:"name" gorm:"type:varchar(128);uniqueIndex;not null"`
	WebhookPath string       `json:"webhook_path" gorm:"type:varchar(128);uniqueIndex;not null"`
	IsActive    bool         `json:"is_active" gorm:"not null;default:true"`

	DescriptionTemplate string `json:"description_template" gorm:"type:varchar(512);default:'Payment for order {{payment_id}}'"`
	ItemNameTemplate    string `json:"item_name_template" gorm:"type:varchar(512);default:'Service {{payment_id}}'"`
	AmountPath          string `json:"amount_path" gorm:"type:varchar(255);default:'object.amount.value'"`
	PaymentIDPath       string `json:"payment_id_path" gorm:"type:varchar(255);default:'object.id'"`
	CustomerNamePath    string `json:"customer_name_path" gorm:"type:varchar(255);default:'object.metadata.customer_name'"`

	RelayMode                RelayMode `json:"relay_mode" gorm:"type:varchar(32);default:'retry_until_200'"`
	RelayRetryLimit          int       `json:"relay_retry_limit" gorm:"default:5"`
	IncludeReceiptURLInRelay bool      `json:"include_receipt_url_in_relay" gorm:"default:false"`
	AutoCancelOnRefund       bool      `json:"auto_cancel_on_refund" gorm:"default:true"`

	TaxProfileID *snowflake.ID `json:"tax_profile_id" gorm:"index"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Store) TableName() string { return "stores" }

// RelayTarget is an outbound webhook mirror for a store.
type RelayTarget struct {
	ID              snowflake.ID      `json:"id" gorm:"primaryKey"`
	StoreID         snowflake.ID      `json:"store_id" gorm:"not null;index"`
	Name            string            `json:"name" gorm:"type:varchar(128);not null"`
	URL             string            `json:"url" gorm:"type:varchar(512);not null"`
	Method          string            `json:"method" gorm:"type:varchar(16);default:'POST'"`
	Headers         datatypes.JSONMap `json:"headers" gorm:"type:jsonb"`
	PayloadTemplate string            `json:"payload_template" gorm:"type:text"`
	IsActive        bool              `json:"is_active" gorm:"not null;default:true"`
}

func (RelayTarget) TableName() string { return "relay_targets" }

// ChatChannel is a bot messaging destination for store notifications.
// Events holds a JSON list of event names the channel subscribes to; an empty
// list means all events.
type ChatChannel struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	StoreID           snowflake.ID   `json:"store_id" gorm:"not null;index"`
	Name              string         `json:"name" gorm:"type:varchar(128);not null"`
	BotToken          string         `json:"bot_token" gorm:"type:varchar(255);not null"`
	ChatID            string         `json:"chat_id" gorm:"type:varchar(64);not null"`
	TopicID           *int64         `json:"topic_id"`
	Events            datatypes.JSON `json:"events" gorm:"type:jsonb"`
	IncludeReceiptURL bool           `json:"include_receipt_url" gorm:"default:true"`
	IsActive          bool           `json:"is_active" gorm:"not null;default:true"`
}

func (ChatChannel) TableName() string { return "chat_channels" }

// EventNames decodes the channel's subscription filter. A decode failure is
// treated as no filter.
func (c ChatChannel) EventNames() []string {
	if len(c.Events) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(c.Events, &names); err != nil {
		return nil
	}
	return names
}

// Wants reports whether the channel subscribes to the given event name.
func (c ChatChannel) Wants(eventName string) bool {
	names := c.EventNames()
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if name == eventName {
			return true
		}
	}
	return false
}
