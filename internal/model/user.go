package model

import "time"

type User struct {
	Email          string     `db:"email" json:"email"`
	Name           string     `db:"name" json:"name"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	Role           UserRole   `db:"role" json:"role"`
	Phone          string     `db:"phone" json:"phone"`
	City           string     `db:"city" json:"city"`
	Verified       bool       `db:"verified" json:"verified"`
	ResetCode      *string    `db:"reset_code" json:"-"`
	ResetExpiresAt *time.Time `db:"reset_expires_at" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

// PublicUser is the sanitized identity payload stored into confirmed QR
// sessions and returned by login. Never carries the password hash or any
// reset/verification code.
type PublicUser struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Role  UserRole `json:"role"`
	Phone string   `json:"phone,omitempty"`
	City  string   `json:"city,omitempty"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
		Phone: u.Phone,
		City:  u.City,
	}
}

type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
	Role         UserRole
}

// PendingVerification stages a registration until the emailed code is
// confirmed. Promoted into users on a successful verify, swept by the
// cleanup job once expired.
type PendingVerification struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	Code         string    `db:"code" json:"-"`
	ExpiresAt    time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type CreatePendingVerificationParams struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         UserRole
	Code         string
	ExpiresAt    time.Time
}
