package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	taxprofiledomain "github.com/kassaflow/kassaflow/internal/taxprofile/domain"
)

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_client_config")
)

// AuthError signals that the credential behind the profile was rejected or
// is missing. The worker routes it to waiting_auth instead of the normal
// retry path, so it must stay distinguishable from ProviderError.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("fiscal auth error: %s", e.Reason)
}

// ProviderError carries the provider's HTTP status and raw body for
// diagnostics. Status 0 means the request never got a response.
type ProviderError struct {
	Status int
	Body   string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fiscal provider error: %v", e.Err)
	}
	return fmt.Sprintf("fiscal provider error %d: %s", e.Status, e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type CreateReceiptRequest struct {
	Description  string
	Amount       decimal.Decimal
	PaymentID    string
	EventPayload map[string]interface{}
}

type ReceiptResult struct {
	ReceiptUUID string
	ReceiptURL  string
	Raw         map[string]interface{}
}

// Client is the uniform contract over the fiscal backend variants. Both
// operations fail with *AuthError when the credential is rejected and with
// *ProviderError for everything else that went wrong on the wire.
type Client interface {
	CreateReceipt(ctx context.Context, req CreateReceiptRequest) (*ReceiptResult, error)
	CancelReceipt(ctx context.Context, receiptUUID string) (map[string]interface{}, error)
}

type ClientConfig struct {
	Profile *taxprofiledomain.TaxProfile

	// BaseURL overrides the variant's default endpoint. Leave empty in
	// production; the consumer-facing variant knows its own host.
	BaseURL      string
	ProxyBaseURL string
	HTTPTimeout  time.Duration
}

type ClientFactory interface {
	Provider() string
	NewClient(cfg ClientConfig) (Client, error)
}
