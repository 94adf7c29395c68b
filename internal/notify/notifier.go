package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Notifier is the notification channel collaborator. Failures are reported
// to the caller but must never block or roll back persisted state.
type Notifier interface {
	SendOTP(ctx context.Context, phone, code string) error
	Notify(ctx context.Context, event string, recipients []string)
}

// SMSGateway delivers OTP codes through an HTTP SMS gateway.
type SMSGateway struct {
	endpoint string
	apiKey   string
	codeTTL  time.Duration
	client   *http.Client
}

// NewSMSGateway creates an SMS gateway client with a bounded timeout.
// codeTTL is quoted in the message body so the recipient sees the real
// expiry window.
func NewSMSGateway(endpoint, apiKey string, codeTTL time.Duration) *SMSGateway {
	return &SMSGateway{
		endpoint: endpoint,
		apiKey:   apiKey,
		codeTTL:  codeTTL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type smsPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendOTP posts the code to the gateway. A non-2xx response is an error.
func (g *SMSGateway) SendOTP(ctx context.Context, phone, code string) error {
	body, err := json.Marshal(smsPayload{
		To:      phone,
		Message: fmt.Sprintf("Your lease signing code is %s. It expires in %d minutes.", code, int(g.codeTTL.Minutes())),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// Notify posts a workflow event to the gateway, best effort. Errors are
// logged and swallowed.
func (g *SMSGateway) Notify(ctx context.Context, event string, recipients []string) {
	for _, to := range recipients {
		body, err := json.Marshal(smsPayload{To: to, Message: event})
		if err != nil {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+g.apiKey)

		resp, err := g.client.Do(req)
		if err != nil {
			log.Error().Err(err).Str("event", event).Msg("Failed to deliver notification")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			log.Error().Int("status", resp.StatusCode).Str("event", event).Msg("Notification rejected by gateway")
		}
	}
}

// LogNotifier logs instead of delivering. Used in development and tests.
type LogNotifier struct{}

// SendOTP logs the destination without the code itself.
func (LogNotifier) SendOTP(ctx context.Context, phone, code string) error {
	log.Info().Str("phone", phone).Msg("OTP delivery (log notifier)")
	return nil
}

// Notify logs the event.
func (LogNotifier) Notify(ctx context.Context, event string, recipients []string) {
	log.Info().Str("event", event).Int("recipients", len(recipients)).Msg("Notification (log notifier)")
}
