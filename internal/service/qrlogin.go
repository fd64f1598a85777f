package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/livraison-express/api-server-go/internal/audit"
	apperrors "github.com/livraison-express/api-server-go/internal/errors"
	"github.com/livraison-express/api-server-go/internal/model"
	"github.com/livraison-express/api-server-go/internal/repository"
	"github.com/livraison-express/api-server-go/internal/util"
)

const qrPayloadAction = "scan_to_login"

// TTLResolver returns the session lifetime for a given type.
type TTLResolver func(model.SessionType) time.Duration

// CredentialVerifier checks a password against the stored hash for an identity.
// Returns the sanitized user on success, nil when the identity is unknown.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, email, password string) (*model.PublicUser, error)
}

type CreateSessionResult struct {
	Session   *model.QRSession `json:"session"`
	QRPayload model.QRPayload  `json:"qrPayload"`
	ExpiresIn int              `json:"expiresIn"`
}

type SessionStatusResult struct {
	Session       *model.QRSession `json:"session"`
	TimeRemaining int              `json:"timeRemaining"`
	IsExpired     bool             `json:"isExpired"`
}

type ConfirmParams struct {
	SessionID string
	// Credentials for types that require password re-verification.
	Email    string
	Password string
	// UserData is the trusted identity payload for mobile_to_web_login
	// sessions, where the mobile side already holds a valid session.
	UserData json.RawMessage
	Reject   bool
}

// QRLoginService enforces the QR session state machine:
//
//	waiting --scan--> scanned --confirm--> confirmed
//	                          --reject---> rejected
//	{waiting,scanned} --deadline passed--> expired
//
// Expiry is evaluated against the wall clock on every read and takes
// precedence over every other guard. Transitions go through the repository's
// conditional updates so concurrent requests cannot both win a guard.
type QRLoginService struct {
	sessions repository.QRSessionRepository
	verifier CredentialVerifier
	ttlFor   TTLResolver
	appName  string
	now      func() time.Time
}

func NewQRLoginService(
	sessions repository.QRSessionRepository,
	verifier CredentialVerifier,
	ttlFor TTLResolver,
	appName string,
) *QRLoginService {
	return &QRLoginService{
		sessions: sessions,
		verifier: verifier,
		ttlFor:   ttlFor,
		appName:  appName,
		now:      time.Now,
	}
}

func (s *QRLoginService) CreateSession(ctx context.Context, sessionType model.SessionType, initiatorData json.RawMessage) (*CreateSessionResult, error) {
	if !sessionType.Valid() {
		return nil, apperrors.InvalidInput("type", fmt.Sprintf("unknown session type %q", sessionType))
	}

	now := s.now()
	ttl := s.ttlFor(sessionType)

	// One clock reading anchors both timestamps: expiry is exactly
	// creation plus the TTL, and the QR payload timestamp matches.
	params := model.CreateQRSessionParams{
		SessionID: util.NewSessionID(),
		Type:      sessionType,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	// Mobile-initiated sessions carry the initiator's identity from creation;
	// plain login sessions start empty and are filled in on confirm.
	if initiatorData != nil {
		switch sessionType {
		case model.SessionTypeMobileToWeb:
			params.MobileUser = &initiatorData
		case model.SessionTypeWebLogin:
			params.WebUser = &initiatorData
		}
	}

	session, err := s.sessions.Create(ctx, params)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	log.Info().
		Str("sessionId", session.SessionID).
		Str("type", string(session.Type)).
		Time("expiresAt", session.ExpiresAt).
		Msg("qr session created")
	audit.Log(ctx, audit.Event{Type: audit.EventQRSessionCreate, SessionID: session.SessionID})

	return &CreateSessionResult{
		Session: session,
		QRPayload: model.QRPayload{
			SessionID: session.SessionID,
			Type:      session.Type,
			Action:    qrPayloadAction,
			Timestamp: session.CreatedAt.UnixMilli(),
			App:       s.appName,
		},
		ExpiresIn: int(ttl.Seconds()),
	}, nil
}

func (s *QRLoginService) GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatusResult, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("QR session")
	}

	now := s.now()
	expired := session.Expired(now) && session.Status != model.SessionStatusConfirmed

	// Lazy expiry: persist the derived state so later reads and the cleanup
	// job see it, but never demote a confirmed session.
	if expired && session.Status != model.SessionStatusExpired {
		if err := s.sessions.MarkExpired(ctx, sessionID); err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to persist session expiry")
		} else {
			session.Status = model.SessionStatusExpired
		}
	}

	return &SessionStatusResult{
		Session:       session,
		TimeRemaining: int(session.TimeRemaining(now).Seconds()),
		IsExpired:     expired || session.Status == model.SessionStatusExpired,
	}, nil
}

// ScanSession transitions waiting -> scanned. The repository update only
// commits when the stored status is still waiting, so exactly one of any
// number of concurrent scanners wins; the rest observe AlreadyScanned.
func (s *QRLoginService) ScanSession(ctx context.Context, sessionID string, deviceInfo json.RawMessage) (*model.QRSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("QR session")
	}

	now := s.now()
	if err := s.guardNotExpired(ctx, session, now); err != nil {
		return nil, err
	}

	switch session.Status {
	case model.SessionStatusConfirmed:
		return nil, apperrors.AlreadyUsed()
	case model.SessionStatusScanned:
		return nil, apperrors.AlreadyScanned()
	case model.SessionStatusRejected:
		return nil, apperrors.SessionRejected()
	case model.SessionStatusExpired:
		return nil, apperrors.SessionExpired()
	}

	updated, err := s.sessions.MarkScanned(ctx, sessionID, deviceInfo, now)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if updated == nil {
		// Lost the race: re-read and report whichever transition actually won,
		// which may be a concurrent lazy expiry rather than another scanner.
		latest, err := s.sessions.FindByID(ctx, sessionID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		switch {
		case latest == nil:
			return nil, apperrors.NotFound("QR session")
		case latest.Status == model.SessionStatusExpired:
			return nil, apperrors.SessionExpired()
		case latest.Status == model.SessionStatusConfirmed:
			return nil, apperrors.AlreadyUsed()
		case latest.Status == model.SessionStatusRejected:
			return nil, apperrors.SessionRejected()
		default:
			return nil, apperrors.AlreadyScanned()
		}
	}

	log.Info().
		Str("sessionId", sessionID).
		Msg("qr session scanned")
	audit.Log(ctx, audit.Event{Type: audit.EventQRSessionScan, SessionID: sessionID})

	return updated, nil
}

func (s *QRLoginService) ConfirmSession(ctx context.Context, params ConfirmParams) (*model.QRSession, error) {
	session, err := s.sessions.FindByID(ctx, params.SessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("QR session")
	}

	now := s.now()

	// Re-confirming a completed handshake is a no-op success so a client can
	// safely retry after a dropped response. Checked before the expiry guard:
	// confirmed sessions outlive their deadline.
	if session.Status == model.SessionStatusConfirmed {
		return session, nil
	}

	if err := s.guardNotExpired(ctx, session, now); err != nil {
		return nil, err
	}

	if session.Status != model.SessionStatusScanned {
		if session.Status == model.SessionStatusRejected {
			return nil, apperrors.SessionRejected()
		}
		return nil, apperrors.NotScanned()
	}

	if params.Reject {
		return s.reject(ctx, params.SessionID, now)
	}

	userData, err := s.resolveUserData(ctx, session.Type, params)
	if err != nil {
		// Credential mismatch leaves the session scanned; the confirmer may retry.
		return nil, err
	}

	updated, err := s.sessions.MarkConfirmed(ctx, params.SessionID, userData, now)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if updated == nil {
		// Guard failed: re-read and resolve the race against the latest state.
		latest, err := s.sessions.FindByID(ctx, params.SessionID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		switch {
		case latest == nil:
			return nil, apperrors.NotFound("QR session")
		case latest.Status == model.SessionStatusConfirmed:
			return latest, nil
		case latest.Status == model.SessionStatusRejected:
			return nil, apperrors.SessionRejected()
		case latest.Status == model.SessionStatusExpired:
			return nil, apperrors.SessionExpired()
		default:
			return nil, apperrors.NotScanned()
		}
	}

	log.Info().
		Str("sessionId", params.SessionID).
		Str("type", string(updated.Type)).
		Msg("qr session confirmed")
	audit.Log(ctx, audit.Event{Type: audit.EventQRSessionConfirm, SessionID: params.SessionID})

	return updated, nil
}

func (s *QRLoginService) DeleteSession(ctx context.Context, sessionID string) error {
	deleted, err := s.sessions.Delete(ctx, sessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if !deleted {
		return apperrors.NotFound("QR session")
	}

	log.Info().Str("sessionId", sessionID).Msg("qr session deleted")
	audit.Log(ctx, audit.Event{Type: audit.EventQRSessionDelete, SessionID: sessionID})
	return nil
}

// guardNotExpired enforces the expiry tie-break: a request arriving after the
// deadline fails as Expired even if it would otherwise be valid. The derived
// state is persisted as a side effect.
func (s *QRLoginService) guardNotExpired(ctx context.Context, session *model.QRSession, now time.Time) error {
	if !session.Expired(now) {
		return nil
	}
	if err := s.sessions.MarkExpired(ctx, session.SessionID); err != nil {
		log.Error().Err(err).Str("sessionId", session.SessionID).Msg("failed to persist session expiry")
	}
	return apperrors.SessionExpired()
}

func (s *QRLoginService) reject(ctx context.Context, sessionID string, now time.Time) (*model.QRSession, error) {
	updated, err := s.sessions.MarkRejected(ctx, sessionID, now)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if updated == nil {
		return nil, apperrors.NotScanned()
	}

	log.Info().Str("sessionId", sessionID).Msg("qr session rejected")
	audit.Log(ctx, audit.Event{Type: audit.EventQRSessionReject, SessionID: sessionID})
	return updated, nil
}

// resolveUserData produces the sanitized identity payload stored on confirm.
// login and web_login sessions always re-verify the password; only
// mobile_to_web_login may trust the payload supplied by the already
// authenticated mobile client.
func (s *QRLoginService) resolveUserData(ctx context.Context, sessionType model.SessionType, params ConfirmParams) (json.RawMessage, error) {
	if sessionType.RequiresCredentials() {
		if params.Email == "" || params.Password == "" {
			return nil, apperrors.MissingRequired("email and password")
		}

		user, err := s.verifier.VerifyCredentials(ctx, params.Email, params.Password)
		if err != nil {
			return nil, err
		}
		if user == nil {
			audit.Log(ctx, audit.Event{Type: audit.EventLoginFailure, Email: params.Email, SessionID: params.SessionID})
			return nil, apperrors.InvalidCredentials()
		}

		data, err := json.Marshal(user)
		if err != nil {
			return nil, apperrors.Internal("failed to encode user data").WithCause(err)
		}
		return data, nil
	}

	if params.UserData == nil {
		return nil, apperrors.MissingRequired("userData")
	}
	return params.UserData, nil
}
