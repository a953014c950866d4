package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kassaflow/kassaflow/internal/fiscal/adapters"
	"github.com/kassaflow/kassaflow/internal/fiscal/domain"
	taxprofiledomain "github.com/kassaflow/kassaflow/internal/taxprofile/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return string(taxprofiledomain.ProviderOfficialAPI)
}

func (f *Factory) NewClient(cfg domain.ClientConfig) (domain.Client, error) {
	if cfg.Profile == nil {
		return nil, domain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(cfg.ProxyBaseURL, "/")
	if baseURL == "" {
		return nil, &domain.ProviderError{Err: domain.ErrInvalidConfig, Body: "proxy base url is not configured"}
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		profile: cfg.Profile,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Client issues receipts through the partner proxy. The proxy owns the
// session with the tax service, so the only credential here is a bearer
// token and there is no device or cookie handling.
type Client struct {
	profile *taxprofiledomain.TaxProfile
	baseURL string
	http    *http.Client
}

func (c *Client) ensureAuthenticated() error {
	if !c.profile.IsAuthenticated {
		return &domain.AuthError{Reason: "profile is not authenticated"}
	}
	if strings.TrimSpace(c.profile.AccessToken) == "" {
		return &domain.AuthError{Reason: "profile has no access token"}
	}
	return nil
}

func (c *Client) CreateReceipt(ctx context.Context, req domain.CreateReceiptRequest) (*domain.ReceiptResult, error) {
	if err := c.ensureAuthenticated(); err != nil {
		return nil, err
	}

	amount, _ := req.Amount.Float64()
	body := map[string]interface{}{
		"description": req.Description,
		"amount":      amount,
		"payment_id":  req.PaymentID,
	}
	raw, err := c.request(ctx, c.baseURL+"/mytax/receipt", body)
	if err != nil {
		return nil, err
	}

	receiptUUID, _ := raw["receipt_uuid"].(string)
	if strings.TrimSpace(receiptUUID) == "" {
		receiptUUID = req.PaymentID
	}
	receiptURL, _ := raw["receipt_url"].(string)
	return &domain.ReceiptResult{
		ReceiptUUID: receiptUUID,
		ReceiptURL:  receiptURL,
		Raw:         raw,
	}, nil
}

func (c *Client) CancelReceipt(ctx context.Context, receiptUUID string) (map[string]interface{}, error) {
	if err := c.ensureAuthenticated(); err != nil {
		return nil, err
	}
	body := map[string]interface{}{"receipt_uuid": receiptUUID}
	return c.request(ctx, c.baseURL+"/mytax/cancel", body)
}

func (c *Client) request(ctx context.Context, url string, body map[string]interface{}) (map[string]interface{}, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, &domain.ProviderError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, &domain.ProviderError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.profile.AccessToken))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &domain.ProviderError{Err: err}
	}
	defer resp.Body.Close()

	return adapters.DecodeResponse(resp)
}
