package npd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kassaflow/kassaflow/internal/fiscal/adapters"
	"github.com/kassaflow/kassaflow/internal/fiscal/domain"
	taxprofiledomain "github.com/kassaflow/kassaflow/internal/taxprofile/domain"
	"github.com/kassaflow/kassaflow/internal/template"
)

const (
	defaultBaseURL = "https://lknpd.nalog.ru"
	csrfCookieName = "XSRF-TOKEN"

	paymentTypeCash     = "CASH"
	paymentTypeCashless = "CASHLESS"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return string(taxprofiledomain.ProviderUnofficialAPI)
}

func (f *Factory) NewClient(cfg domain.ClientConfig) (domain.Client, error) {
	if cfg.Profile == nil {
		return nil, domain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
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

// Client talks to the consumer-facing personal-income endpoint using the
// taxpayer's own browser session material: bearer token, cookie jar, and a
// synthetic device id.
type Client struct {
	profile *taxprofiledomain.TaxProfile
	baseURL string
	http    *http.Client
}

func (c *Client) ensureAuthenticated() error {
	if !c.profile.IsAuthenticated {
		return &domain.AuthError{Reason: "profile is not authenticated"}
	}
	if AccessToken(c.profile.AccessToken) == "" && CookieHeader(c.profile.CookieBlob) == "" {
		return &domain.AuthError{Reason: "profile has no access token or cookies"}
	}
	return nil
}

func (c *Client) headers() http.Header {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if token := AccessToken(c.profile.AccessToken); token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}
	if cookie := CookieHeader(c.profile.CookieBlob); cookie != "" {
		headers.Set("Cookie", cookie)
		if csrf := cookieValue(cookie, csrfCookieName); csrf != "" {
			headers.Set("X-Csrf-Token", csrf)
		}
	}
	if c.profile.DeviceID != "" {
		headers.Set("Device-Id", c.profile.DeviceID)
	}
	return headers
}

func (c *Client) CreateReceipt(ctx context.Context, req domain.CreateReceiptRequest) (*domain.ReceiptResult, error) {
	if err := c.ensureAuthenticated(); err != nil {
		return nil, err
	}

	operationTime := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	// The service name limit is 128 characters, not bytes. Descriptions are
	// mostly Cyrillic, so a byte slice would cut the limit in half and could
	// split a rune at the boundary.
	name := req.Description
	if runes := []rune(name); len(runes) > 128 {
		name = string(runes[:128])
	}
	amount, _ := req.Amount.Float64()
	body := map[string]interface{}{
		"operationTime": operationTime,
		"requestTime":   operationTime,
		"services": []map[string]interface{}{
			{
				"name":     name,
				"amount":   amount,
				"quantity": 1,
			},
		},
		"paymentType":                     paymentFraming(req.EventPayload),
		"ignoreMaxTotalIncomeRestriction": true,
		"client":                          map[string]interface{}{"displayName": ""},
		"externalIncomeId":                req.PaymentID,
	}

	raw, err := c.request(ctx, http.MethodPost, c.baseURL+"/api/v1/income", body)
	if err != nil {
		return nil, err
	}

	receiptUUID := firstString(raw, "approvedReceiptUuid", "receiptUuid", "id")
	if receiptUUID == "" {
		receiptUUID = req.PaymentID
	}
	receiptURL := firstString(raw, "receiptUrl")
	if receiptURL == "" {
		receiptURL = fmt.Sprintf("%s/web/receipts/%s", c.baseURL, receiptUUID)
	}
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
	body := map[string]interface{}{"receiptUuid": receiptUUID}
	return c.request(ctx, http.MethodPost, c.baseURL+"/api/v1/cancel", body)
}

func (c *Client) request(ctx context.Context, method, url string, body map[string]interface{}) (map[string]interface{}, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, &domain.ProviderError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, &domain.ProviderError{Err: err}
	}
	httpReq.Header = c.headers()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &domain.ProviderError{Err: err}
	}
	defer resp.Body.Close()

	return adapters.DecodeResponse(resp)
}

// AccessToken flattens a stored token value. Accounts imported from a
// browser session sometimes carry the whole auth response instead of the
// bare token, so a JSON object with token/accessToken fields is accepted
// alongside the raw string.
func AccessToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "{") {
		return raw
	}
	var blob map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return raw
	}
	return firstString(blob, "token", "accessToken", "access_token")
}

// CookieHeader flattens a stored cookie value into "name=value; name=value"
// form. Accepts the raw header string, a JSON object with a nested cookie
// string, or a JSON object with a cookies array of {name, value} pairs.
func CookieHeader(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "{") {
		return raw
	}
	var blob map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return raw
	}
	if cookie := firstString(blob, "cookie", "cookies"); cookie != "" {
		return cookie
	}
	list, ok := blob["cookies"].([]interface{})
	if !ok {
		return ""
	}
	pairs := make([]string, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		value, _ := entry["value"].(string)
		if strings.TrimSpace(name) == "" {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", name, value))
	}
	return strings.Join(pairs, "; ")
}

func cookieValue(header string, name string) string {
	for _, part := range strings.Split(header, ";") {
		keyValue := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		if strings.TrimSpace(keyValue[0]) == name {
			return strings.TrimSpace(keyValue[1])
		}
	}
	return ""
}

func paymentFraming(payload map[string]interface{}) string {
	method, _ := template.Lookup(payload, "object.payment_method.type", "").(string)
	if strings.EqualFold(strings.TrimSpace(method), "cash") {
		return paymentTypeCash
	}
	return paymentTypeCashless
}

func firstString(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		value, ok := raw[key].(string)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
