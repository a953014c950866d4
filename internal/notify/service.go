// Package notify delivers processed payment events outward: mirroring the
// raw gateway payload to per-store relay targets and posting human-readable
// messages to per-store chat channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kassaflow/kassaflow/internal/config"
	eventdomain "github.com/kassaflow/kassaflow/internal/event/domain"
	storedomain "github.com/kassaflow/kassaflow/internal/store/domain"
	"github.com/kassaflow/kassaflow/internal/template"
)

// Logical notification names that chat channels subscribe to. These are
// deliberately distinct from the gateway event types: one gateway event can
// produce several notifications over its lifetime.
const (
	NotifyPaymentReceived = "payment_received"
	NotifyRefundReceived  = "refund_received"
	NotifyReceiptCreated  = "receipt_created"
	NotifyReceiptCanceled = "receipt_canceled"
	NotifyAuthRequired    = "mytax_auth_required"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Config config.Config
	Stores storedomain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	stores storedomain.Repository

	botAPIBaseURL string
	http          *http.Client
}

func NewService(p Params) *Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("notify.service"),
		stores: p.Stores,

		botAPIBaseURL: strings.TrimRight(p.Config.BotAPIBaseURL, "/"),
		http:          &http.Client{Timeout: p.Config.NotifyTimeout},
	}
}

// Relay mirrors the event payload to every active relay target of the store
// and returns the aggregate delivery status. Individual target failures are
// folded into the aggregate, worst outcome wins.
func (s *Service) Relay(ctx context.Context, store *storedomain.Store, event *eventdomain.PaymentEvent, receiptURL string) string {
	targets, err := s.stores.ActiveRelayTargets(ctx, s.db, store.ID)
	if err != nil {
		s.log.Warn("failed to load relay targets",
			zap.Int64("store_id", int64(store.ID)),
			zap.Error(err),
		)
		return eventdomain.RelayStatusError
	}
	if len(targets) == 0 {
		return eventdomain.RelayStatusNoTargets
	}

	status := eventdomain.RelayStatusSuccess
	for _, target := range targets {
		outcome := s.deliverRelay(ctx, store, &target, event, receiptURL)
		status = worstRelayStatus(status, outcome)
	}
	return status
}

func (s *Service) deliverRelay(ctx context.Context, store *storedomain.Store, target *storedomain.RelayTarget, event *eventdomain.PaymentEvent, receiptURL string) string {
	payload := event.PayloadMap()
	if store.IncludeReceiptURLInRelay && receiptURL != "" {
		payload["generated_receipt_url"] = receiptURL
	}
	body := s.relayBody(target, payload)

	method := strings.ToUpper(strings.TrimSpace(target.Method))
	if method == "" {
		method = http.MethodPost
	}

	switch store.RelayMode {
	case storedomain.RelayModeFireAndForget:
		if err := s.send(ctx, method, target, body); err != nil {
			s.log.Warn("relay delivery failed",
				zap.String("target", target.Name),
				zap.Error(err),
			)
			return eventdomain.RelayStatusPartialError
		}
		return eventdomain.RelayStatusSuccess
	default:
		attempts := store.RelayRetryLimit
		if attempts <= 0 {
			attempts = 1
		}
		var lastErr error
		for i := 0; i < attempts; i++ {
			if lastErr = s.send(ctx, method, target, body); lastErr == nil {
				return eventdomain.RelayStatusSuccess
			}
		}
		s.log.Warn("relay delivery exhausted retries",
			zap.String("target", target.Name),
			zap.Int("attempts", attempts),
			zap.Error(lastErr),
		)
		return eventdomain.RelayStatusError
	}
}

// relayBody applies the target's payload template when configured. A render
// that produces valid JSON replaces the body wholesale; anything else is
// wrapped so the receiver still gets a JSON document.
func (s *Service) relayBody(target *storedomain.RelayTarget, payload map[string]any) []byte {
	if strings.TrimSpace(target.PayloadTemplate) == "" {
		encoded, _ := json.Marshal(payload)
		return encoded
	}

	ctx := map[string]any{"payload": payload}
	for key, value := range payload {
		ctx[key] = value
	}
	rendered := template.Render(target.PayloadTemplate, ctx)

	var decoded any
	if err := json.Unmarshal([]byte(rendered), &decoded); err == nil {
		return []byte(rendered)
	}
	// Non-JSON render still reaches the receiver as a JSON document, with
	// the untransformed payload alongside for context.
	encoded, _ := json.Marshal(map[string]any{"rendered_payload": rendered, "payload": payload})
	return encoded
}

func (s *Service) send(ctx context.Context, method string, target *storedomain.RelayTarget, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, target.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range target.Headers {
		header, ok := value.(string)
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		req.Header.Set(key, header)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay target %s responded %d", target.Name, resp.StatusCode)
	}
	return nil
}

// NotifyChat posts text to every active chat channel of the store that
// subscribes to eventName. Channels deliver independently; one failing
// channel never blocks the rest.
func (s *Service) NotifyChat(ctx context.Context, store *storedomain.Store, eventName, text, receiptURL string) {
	channels, err := s.stores.ActiveChatChannels(ctx, s.db, store.ID)
	if err != nil {
		s.log.Warn("failed to load chat channels",
			zap.Int64("store_id", int64(store.ID)),
			zap.Error(err),
		)
		return
	}

	for _, channel := range channels {
		if !channel.Wants(eventName) {
			continue
		}
		message := text
		if channel.IncludeReceiptURL && receiptURL != "" {
			message = message + "\n" + receiptURL
		}
		if err := s.sendChatMessage(ctx, &channel, message); err != nil {
			s.log.Warn("chat delivery failed",
				zap.String("channel", channel.Name),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) sendChatMessage(ctx context.Context, channel *storedomain.ChatChannel, text string) error {
	body := map[string]any{
		"chat_id": channel.ChatID,
		"text":    text,
	}
	if channel.TopicID != nil {
		body["message_thread_id"] = *channel.TopicID
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.botAPIBaseURL, channel.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat api responded %d", resp.StatusCode)
	}
	return nil
}

func worstRelayStatus(current, observed string) string {
	if relayRank(observed) > relayRank(current) {
		return observed
	}
	return current
}

func relayRank(status string) int {
	switch status {
	case eventdomain.RelayStatusError:
		return 3
	case eventdomain.RelayStatusPartialError:
		return 2
	case eventdomain.RelayStatusSuccess:
		return 1
	default:
		return 0
	}
}
