package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/livraison-express/api-server-go/internal/model"
)

type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	SetResetCode(ctx context.Context, email, code string, expiresAt time.Time) error
	UpdatePassword(ctx context.Context, email, passwordHash string) error
	ClearExpiredResetCodes(ctx context.Context) (int64, error)
}

type userRepo struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE email = $1
	`, email)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (email, name, password_hash, role, verified)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING *
	`, params.Email, params.Name, params.PasswordHash, params.Role)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) SetResetCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			reset_code = $2,
			reset_expires_at = $3
		WHERE email = $1
	`, email, code, expiresAt)
	return err
}

// UpdatePassword also clears any outstanding reset code so a consumed code
// cannot be replayed.
func (r *userRepo) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			password_hash = $2,
			reset_code = NULL,
			reset_expires_at = NULL
		WHERE email = $1
	`, email, passwordHash)
	return err
}

func (r *userRepo) ClearExpiredResetCodes(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			reset_code = NULL,
			reset_expires_at = NULL
		WHERE reset_code IS NOT NULL AND reset_expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
