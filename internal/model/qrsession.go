package model

import (
	"encoding/json"
	"time"
)

type QRSession struct {
	SessionID    string           `db:"session_id" json:"sessionId"`
	Type         SessionType      `db:"type" json:"type"`
	Status       SessionStatus    `db:"status" json:"status"`
	MobileUser   *json.RawMessage `db:"mobile_user" json:"mobileUser,omitempty"`
	WebUser      *json.RawMessage `db:"web_user" json:"webUser,omitempty"`
	UserData     *json.RawMessage `db:"user_data" json:"userData,omitempty"`
	MobileDevice *json.RawMessage `db:"mobile_device" json:"mobileDevice,omitempty"`
	ScannedAt    *time.Time       `db:"scanned_at" json:"scannedAt,omitempty"`
	ConfirmedAt  *time.Time       `db:"confirmed_at" json:"confirmedAt,omitempty"`
	ExpiresAt    time.Time        `db:"expires_at" json:"expiresAt"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updatedAt"`
}

// Expired evaluates expiry against the wall clock, not the stored status.
// A session past its deadline is treated as expired even before the lazy
// status write has happened.
func (s *QRSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// TimeRemaining returns the duration left before expiry, floored at zero.
func (s *QRSession) TimeRemaining(now time.Time) time.Duration {
	remaining := s.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

type CreateQRSessionParams struct {
	SessionID  string
	Type       SessionType
	MobileUser *json.RawMessage
	WebUser    *json.RawMessage
	// CreatedAt and ExpiresAt come from the same clock reading so that
	// ExpiresAt - CreatedAt is exactly the configured TTL.
	CreatedAt time.Time
	ExpiresAt time.Time
}

// QRPayload is the content rendered as a scannable code by the initiator.
type QRPayload struct {
	SessionID string      `json:"sessionId"`
	Type      SessionType `json:"type"`
	Action    string      `json:"action"`
	Timestamp int64       `json:"timestamp"`
	App       string      `json:"app"`
}
