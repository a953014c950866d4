package adapters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kassaflow/kassaflow/internal/fiscal/domain"
)

// DecodeResponse maps the provider's HTTP reply to the shared contract:
// 401/403 before anything else, then any 4xx/5xx with the body attached,
// then a structured payload from whatever the 2xx body held. An empty body
// yields an empty map, a non-JSON body is wrapped under "raw".
func DecodeResponse(resp *http.Response) (map[string]interface{}, error) {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ProviderError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &domain.AuthError{Reason: fmt.Sprintf("provider rejected credentials with status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &domain.ProviderError{Status: resp.StatusCode, Body: string(payload)}
	}

	if len(bytes.TrimSpace(payload)) == 0 {
		return map[string]interface{}{}, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return map[string]interface{}{"raw": string(payload)}, nil
	}
	return raw, nil
}
