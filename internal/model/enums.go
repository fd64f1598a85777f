package model

// SessionType distinguishes which party initiates the handshake and which
// party ultimately supplies credentials.
type SessionType string

const (
	// SessionTypeLogin is a web-initiated login confirmed with credentials.
	SessionTypeLogin SessionType = "login"
	// SessionTypeMobileToWeb is initiated by an already-authenticated mobile
	// client to log the web dashboard in; the payload is trusted as-is.
	SessionTypeMobileToWeb SessionType = "mobile_to_web_login"
	// SessionTypeWebLogin is a web-initiated login with a longer TTL.
	SessionTypeWebLogin SessionType = "web_login"
)

func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeLogin, SessionTypeMobileToWeb, SessionTypeWebLogin:
		return true
	}
	return false
}

// RequiresCredentials reports whether confirming a session of this type must
// re-verify the confirmer's password. Trusted-payload confirm is only allowed
// when the mobile side already holds an authenticated session.
func (t SessionType) RequiresCredentials() bool {
	return t != SessionTypeMobileToWeb
}

type SessionStatus string

const (
	SessionStatusWaiting   SessionStatus = "waiting"
	SessionStatusScanned   SessionStatus = "scanned"
	SessionStatusConfirmed SessionStatus = "confirmed"
	SessionStatusRejected  SessionStatus = "rejected"
	SessionStatusExpired   SessionStatus = "expired"
)

// Terminal reports whether no further transition is allowed from the status.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusConfirmed, SessionStatusRejected, SessionStatusExpired:
		return true
	}
	return false
}

type UserRole string

const (
	UserRoleClient   UserRole = "client"
	UserRoleMerchant UserRole = "merchant"
	UserRoleCourier  UserRole = "courier"
)
