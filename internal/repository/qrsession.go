package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/livraison-express/api-server-go/internal/model"
)

// QRSessionRepository is the typed accessor over the qr_sessions table.
// The Mark* transitions are conditional updates: they only commit when the
// stored status still equals the expected pre-state, and return nil when the
// guard did not match. That conditional write is the concurrency control for
// the whole handshake; callers must not cache status across calls.
type QRSessionRepository interface {
	FindByID(ctx context.Context, sessionID string) (*model.QRSession, error)
	Create(ctx context.Context, params model.CreateQRSessionParams) (*model.QRSession, error)
	MarkScanned(ctx context.Context, sessionID string, device json.RawMessage, at time.Time) (*model.QRSession, error)
	MarkConfirmed(ctx context.Context, sessionID string, userData json.RawMessage, at time.Time) (*model.QRSession, error)
	MarkRejected(ctx context.Context, sessionID string, at time.Time) (*model.QRSession, error)
	MarkExpired(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) (bool, error)
	DeleteExpiredUnconfirmed(ctx context.Context) (int64, error)
}

type qrSessionRepo struct {
	db *sqlx.DB
}

func NewQRSessionRepository(db *sqlx.DB) QRSessionRepository {
	return &qrSessionRepo{db: db}
}

func (r *qrSessionRepo) FindByID(ctx context.Context, sessionID string) (*model.QRSession, error) {
	var session model.QRSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM qr_sessions WHERE session_id = $1
	`, sessionID)
	return HandleNotFound(&session, err)
}

func (r *qrSessionRepo) Create(ctx context.Context, params model.CreateQRSessionParams) (*model.QRSession, error) {
	var session model.QRSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO qr_sessions (session_id, type, status, mobile_user, web_user, expires_at, created_at, updated_at)
		VALUES ($1, $2, 'waiting', $3, $4, $5, $6, $6)
		RETURNING *
	`, params.SessionID, params.Type, params.MobileUser, params.WebUser, params.ExpiresAt, params.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *qrSessionRepo) MarkScanned(ctx context.Context, sessionID string, device json.RawMessage, at time.Time) (*model.QRSession, error) {
	var session model.QRSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE qr_sessions SET
			status = 'scanned',
			mobile_device = $2,
			scanned_at = $3,
			updated_at = $3
		WHERE session_id = $1 AND status = 'waiting'
		RETURNING *
	`, sessionID, device, at)
	return HandleNotFound(&session, err)
}

func (r *qrSessionRepo) MarkConfirmed(ctx context.Context, sessionID string, userData json.RawMessage, at time.Time) (*model.QRSession, error) {
	var session model.QRSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE qr_sessions SET
			status = 'confirmed',
			user_data = $2,
			confirmed_at = $3,
			updated_at = $3
		WHERE session_id = $1 AND status = 'scanned'
		RETURNING *
	`, sessionID, userData, at)
	return HandleNotFound(&session, err)
}

func (r *qrSessionRepo) MarkRejected(ctx context.Context, sessionID string, at time.Time) (*model.QRSession, error) {
	var session model.QRSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE qr_sessions SET
			status = 'rejected',
			updated_at = $2
		WHERE session_id = $1 AND status = 'scanned'
		RETURNING *
	`, sessionID, at)
	return HandleNotFound(&session, err)
}

func (r *qrSessionRepo) MarkExpired(ctx context.Context, sessionID string) error {
	// Confirmed sessions stay confirmed past expiry; rejected ones stay rejected.
	_, err := r.db.ExecContext(ctx, `
		UPDATE qr_sessions SET
			status = 'expired',
			updated_at = $2
		WHERE session_id = $1 AND status IN ('waiting', 'scanned')
	`, sessionID, time.Now())
	return err
}

func (r *qrSessionRepo) Delete(ctx context.Context, sessionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM qr_sessions WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *qrSessionRepo) DeleteExpiredUnconfirmed(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM qr_sessions
		WHERE expires_at < NOW() AND status != 'confirmed'
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
