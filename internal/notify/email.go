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

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 2
	retryBackoff   = 2 * time.Second
)

// Notifier delivers best-effort outbound messages. A failed delivery must
// never fail the calling request; callers fall back to returning the code
// directly in the response.
type Notifier interface {
	SendCode(ctx context.Context, to, subject, code, recipientName string) error
}

// EmailNotifier sends verification codes through an HTTP mail API
// (EmailJS-style JSON POST). Delivery is retried a bounded number of times
// with a fixed backoff.
type EmailNotifier struct {
	client     *http.Client
	apiURL     string
	serviceID  string
	templateID string
	publicKey  string
	appName    string
}

type EmailConfig struct {
	APIURL     string
	ServiceID  string
	TemplateID string
	PublicKey  string
	AppName    string
}

func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		client:     &http.Client{Timeout: requestTimeout},
		apiURL:     cfg.APIURL,
		serviceID:  cfg.ServiceID,
		templateID: cfg.TemplateID,
		publicKey:  cfg.PublicKey,
		appName:    cfg.AppName,
	}
}

// Configured reports whether an outbound mail endpoint is set up at all.
func (n *EmailNotifier) Configured() bool {
	return n.apiURL != ""
}

func (n *EmailNotifier) SendCode(ctx context.Context, to, subject, code, recipientName string) error {
	if !n.Configured() {
		return fmt.Errorf("email notifier is not configured")
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		lastErr = n.send(ctx, to, subject, code, recipientName)
		if lastErr == nil {
			log.Info().Str("to", to).Int("attempt", attempt).Msg("email sent")
			return nil
		}

		log.Warn().
			Err(lastErr).
			Str("to", to).
			Int("attempt", attempt).
			Int("maxAttempts", maxAttempts).
			Msg("email delivery attempt failed")
	}

	return fmt.Errorf("send email after %d attempts: %w", maxAttempts, lastErr)
}

func (n *EmailNotifier) send(ctx context.Context, to, subject, code, recipientName string) error {
	payload := map[string]any{
		"service_id":  n.serviceID,
		"template_id": n.templateID,
		"user_id":     n.publicKey,
		"template_params": map[string]string{
			"to_email":  to,
			"subject":   subject,
			"otp_code":  code,
			"user_name": recipientName,
			"app_name":  n.appName,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email API returned status %d", resp.StatusCode)
	}

	return nil
}
