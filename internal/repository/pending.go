package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/livraison-express/api-server-go/internal/model"
)

type PendingVerificationRepository interface {
	FindByEmailAndCode(ctx context.Context, email, code string) (*model.PendingVerification, error)
	Create(ctx context.Context, params model.CreatePendingVerificationParams) (*model.PendingVerification, error)
	DeleteByEmail(ctx context.Context, email string) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type pendingVerificationRepo struct {
	db *sqlx.DB
}

func NewPendingVerificationRepository(db *sqlx.DB) PendingVerificationRepository {
	return &pendingVerificationRepo{db: db}
}

func (r *pendingVerificationRepo) FindByEmailAndCode(ctx context.Context, email, code string) (*model.PendingVerification, error) {
	var pending model.PendingVerification
	err := r.db.GetContext(ctx, &pending, `
		SELECT * FROM pending_verifications
		WHERE email = $1 AND code = $2
	`, email, code)
	return HandleNotFound(&pending, err)
}

func (r *pendingVerificationRepo) Create(ctx context.Context, params model.CreatePendingVerificationParams) (*model.PendingVerification, error) {
	var pending model.PendingVerification
	err := r.db.GetContext(ctx, &pending, `
		INSERT INTO pending_verifications (id, email, name, password_hash, role, code, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.ID, params.Email, params.Name, params.PasswordHash, params.Role, params.Code, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

func (r *pendingVerificationRepo) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM pending_verifications WHERE email = $1
	`, email)
	return err
}

func (r *pendingVerificationRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM pending_verifications WHERE id = $1
	`, id)
	return err
}

func (r *pendingVerificationRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM pending_verifications WHERE expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
