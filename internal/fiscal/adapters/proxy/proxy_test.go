package proxy_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassaflow/kassaflow/internal/fiscal/adapters/proxy"
	fiscaldomain "github.com/kassaflow/kassaflow/internal/fiscal/domain"
	taxprofiledomain "github.com/kassaflow/kassaflow/internal/taxprofile/domain"
)

func authedProfile() *taxprofiledomain.TaxProfile {
	return &taxprofiledomain.TaxProfile{
		Provider:        taxprofiledomain.ProviderOfficialAPI,
		AccessToken:     "bearer-1",
		IsAuthenticated: true,
	}
}

func TestNewClientRequiresProxyBaseURL(t *testing.T) {
	_, err := proxy.NewFactory().NewClient(fiscaldomain.ClientConfig{Profile: authedProfile()})
	require.Error(t, err)
}

func TestCreateAndCancelUseProxyEndpoints(t *testing.T) {
	var paths []string
	var gotBody map[string]any
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"receipt_uuid": "ru-1",
			"receipt_url":  "https://receipts.example/ru-1",
		})
	}))
	defer srv.Close()

	client, err := proxy.NewFactory().NewClient(fiscaldomain.ClientConfig{
		Profile:      authedProfile(),
		ProxyBaseURL: srv.URL,
		HTTPTimeout:  5 * time.Second,
	})
	require.NoError(t, err)

	result, err := client.CreateReceipt(context.Background(), fiscaldomain.CreateReceiptRequest{
		Description: "Payment for order pay-3",
		Amount:      decimal.RequireFromString("99.90"),
		PaymentID:   "pay-3",
	})
	require.NoError(t, err)
	assert.Equal(t, "ru-1", result.ReceiptUUID)
	assert.Equal(t, "https://receipts.example/ru-1", result.ReceiptURL)
	assert.Equal(t, "Bearer bearer-1", gotAuth)
	assert.Equal(t, "pay-3", gotBody["payment_id"])
	assert.InDelta(t, 99.90, gotBody["amount"], 0.001)

	_, err = client.CancelReceipt(context.Background(), "ru-1")
	require.NoError(t, err)
	assert.Equal(t, "ru-1", gotBody["receipt_uuid"])

	assert.Equal(t, []string{"/mytax/receipt", "/mytax/cancel"}, paths)
}

func TestMissingTokenFailsBeforeRequest(t *testing.T) {
	profile := authedProfile()
	profile.AccessToken = ""
	client, err := proxy.NewFactory().NewClient(fiscaldomain.ClientConfig{
		Profile:      profile,
		ProxyBaseURL: "http://127.0.0.1:0",
	})
	require.NoError(t, err)

	_, err = client.CancelReceipt(context.Background(), "ru-1")
	var authErr *fiscaldomain.AuthError
	require.ErrorAs(t, err, &authErr)
}
