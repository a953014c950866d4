package npd_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassaflow/kassaflow/internal/fiscal/adapters/npd"
	fiscaldomain "github.com/kassaflow/kassaflow/internal/fiscal/domain"
	taxprofiledomain "github.com/kassaflow/kassaflow/internal/taxprofile/domain"
)

func TestAccessTokenNormalization(t *testing.T) {
	assert.Equal(t, "raw-token", npd.AccessToken("raw-token"))
	assert.Equal(t, "raw-token", npd.AccessToken("  raw-token  "))
	assert.Equal(t, "t1", npd.AccessToken(`{"token":"t1"}`))
	assert.Equal(t, "t2", npd.AccessToken(`{"accessToken":"t2","refreshToken":"r"}`))
	assert.Equal(t, "", npd.AccessToken(""))
}

func TestCookieHeaderNormalization(t *testing.T) {
	assert.Equal(t, "a=1; b=2", npd.CookieHeader("a=1; b=2"))
	assert.Equal(t, "a=1; b=2", npd.CookieHeader(`{"cookies":[{"name":"a","value":"1"},{"name":"b","value":"2"}]}`))
	assert.Equal(t, "x=y", npd.CookieHeader(`{"cookie":"x=y"}`))
	assert.Equal(t, "", npd.CookieHeader(""))
}

func newClient(t *testing.T, baseURL string, profile *taxprofiledomain.TaxProfile) fiscaldomain.Client {
	t.Helper()
	client, err := npd.NewFactory().NewClient(fiscaldomain.ClientConfig{
		Profile:     profile,
		BaseURL:     baseURL,
		HTTPTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func authedProfile() *taxprofiledomain.TaxProfile {
	return &taxprofiledomain.TaxProfile{
		Provider:        taxprofiledomain.ProviderUnofficialAPI,
		AccessToken:     "token-1",
		CookieBlob:      "XSRF-TOKEN=csrf-1; session=s1",
		DeviceID:        "device-1",
		IsAuthenticated: true,
	}
}

func TestCreateReceiptSendsIncomeRequest(t *testing.T) {
	var gotBody map[string]any
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/income", r.URL.Path)
		gotHeader = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"approvedReceiptUuid": "uuid-1",
		})
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, authedProfile())
	result, err := client.CreateReceipt(context.Background(), fiscaldomain.CreateReceiptRequest{
		Description: "Payment for order pay-1",
		Amount:      decimal.RequireFromString("150.50"),
		PaymentID:   "pay-1",
		EventPayload: map[string]any{
			"object": map[string]any{
				"payment_method": map[string]any{"type": "bank_card"},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "uuid-1", result.ReceiptUUID)
	assert.Equal(t, srv.URL+"/web/receipts/uuid-1", result.ReceiptURL)

	assert.Equal(t, "Bearer token-1", gotHeader.Get("Authorization"))
	assert.Equal(t, "XSRF-TOKEN=csrf-1; session=s1", gotHeader.Get("Cookie"))
	assert.Equal(t, "csrf-1", gotHeader.Get("X-Csrf-Token"))
	assert.Equal(t, "device-1", gotHeader.Get("Device-Id"))

	assert.Equal(t, "CASHLESS", gotBody["paymentType"])
	assert.Equal(t, "pay-1", gotBody["externalIncomeId"])
	services, ok := gotBody["services"].([]any)
	require.True(t, ok)
	require.Len(t, services, 1)
	service := services[0].(map[string]any)
	assert.Equal(t, "Payment for order pay-1", service["name"])
	assert.InDelta(t, 150.50, service["amount"], 0.001)
	assert.EqualValues(t, 1, service["quantity"])
}

func TestCreateReceiptTruncatesLongNameByRunes(t *testing.T) {
	description := strings.Repeat("товар", 30) // 150 runes, 300 bytes

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"receiptUuid": "u"})
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, authedProfile())
	_, err := client.CreateReceipt(context.Background(), fiscaldomain.CreateReceiptRequest{
		Description: description,
		Amount:      decimal.NewFromInt(1),
		PaymentID:   "pay-1",
	})
	require.NoError(t, err)

	services := gotBody["services"].([]any)
	name := services[0].(map[string]any)["name"].(string)
	assert.True(t, utf8.ValidString(name))
	assert.Equal(t, 128, utf8.RuneCountInString(name))
	assert.Equal(t, string([]rune(description)[:128]), name)
}

func TestCreateReceiptCashFraming(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"receiptUuid": "u"})
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, authedProfile())
	_, err := client.CreateReceipt(context.Background(), fiscaldomain.CreateReceiptRequest{
		Description: "d",
		Amount:      decimal.NewFromInt(1),
		PaymentID:   "p",
		EventPayload: map[string]any{
			"object": map[string]any{
				"payment_method": map[string]any{"type": "cash"},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "CASH", gotBody["paymentType"])
}

func TestReceiptUUIDFallbacks(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
		want string
	}{
		{"approved wins", map[string]any{"approvedReceiptUuid": "a", "receiptUuid": "b", "id": "c"}, "a"},
		{"receiptUuid next", map[string]any{"receiptUuid": "b", "id": "c"}, "b"},
		{"id next", map[string]any{"id": "c"}, "c"},
		{"payment id last", map[string]any{}, "pay-9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tc.body)
			}))
			defer srv.Close()

			client := newClient(t, srv.URL, authedProfile())
			result, err := client.CreateReceipt(context.Background(), fiscaldomain.CreateReceiptRequest{
				Description: "d",
				Amount:      decimal.NewFromInt(1),
				PaymentID:   "pay-9",
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.ReceiptUUID)
		})
	}
}

func TestUnauthorizedMapsToAuthError(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := newClient(t, srv.URL, authedProfile())
		_, err := client.CancelReceipt(context.Background(), "uuid-1")
		srv.Close()

		var authErr *fiscaldomain.AuthError
		require.ErrorAs(t, err, &authErr, "status %d", status)
	}
}

func TestErrorStatusMapsToProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"validation"}`))
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, authedProfile())
	_, err := client.CancelReceipt(context.Background(), "uuid-1")

	var providerErr *fiscaldomain.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusUnprocessableEntity, providerErr.Status)
	assert.Contains(t, providerErr.Body, "validation")
}

func TestEmptyAndNonJSONBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/cancel" {
			return // 200, empty body
		}
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, authedProfile())

	raw, err := client.CancelReceipt(context.Background(), "uuid-1")
	require.NoError(t, err)
	assert.Empty(t, raw)

	result, err := client.CreateReceipt(context.Background(), fiscaldomain.CreateReceiptRequest{
		Description: "d",
		Amount:      decimal.NewFromInt(1),
		PaymentID:   "pay-x",
	})
	require.NoError(t, err)
	assert.Equal(t, "OK", result.Raw["raw"])
	assert.Equal(t, "pay-x", result.ReceiptUUID)
}

func TestUnauthenticatedProfileFailsBeforeRequest(t *testing.T) {
	profile := authedProfile()
	profile.IsAuthenticated = false
	client := newClient(t, "http://127.0.0.1:0", profile)

	_, err := client.CancelReceipt(context.Background(), "uuid-1")
	var authErr *fiscaldomain.AuthError
	require.ErrorAs(t, err, &authErr)

	profile = authedProfile()
	profile.AccessToken = ""
	profile.CookieBlob = ""
	client = newClient(t, "http://127.0.0.1:0", profile)
	_, err = client.CancelReceipt(context.Background(), "uuid-1")
	require.ErrorAs(t, err, &authErr)
}
