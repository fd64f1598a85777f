package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventLoginSuccess      EventType = "login_success"
	EventLoginFailure      EventType = "login_failure"
	EventRegister          EventType = "register"
	EventEmailVerified     EventType = "email_verified"
	EventPasswordReset     EventType = "password_reset"
	EventResetCodeSent     EventType = "reset_code_sent"
	EventQRSessionCreate   EventType = "qr_session_create"
	EventQRSessionScan     EventType = "qr_session_scan"
	EventQRSessionConfirm  EventType = "qr_session_confirm"
	EventQRSessionReject   EventType = "qr_session_reject"
	EventQRSessionDelete   EventType = "qr_session_delete"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
)

type Event struct {
	Type      EventType
	Email     string
	SessionID string
	IP        string
	Details   map[string]any
}

// Log emits a structured security audit record. Audit entries ride the normal
// log stream tagged with audit=security so they can be filtered downstream.
func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.Email != "" {
		logger = logger.With().Str("email", event.Email).Logger()
	}
	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if len(event.Details) > 0 {
		logger = logger.With().Interface("details", event.Details).Logger()
	}

	logger.Info().Msg("audit event")
}
