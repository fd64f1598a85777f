package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/livraison-express/api-server-go/internal/audit"
	apperrors "github.com/livraison-express/api-server-go/internal/errors"
	"github.com/livraison-express/api-server-go/internal/model"
	"github.com/livraison-express/api-server-go/internal/notify"
	"github.com/livraison-express/api-server-go/internal/repository"
	"github.com/livraison-express/api-server-go/internal/util"
)

const minPasswordLength = 6

type RegisterParams struct {
	Name     string
	Email    string
	Password string
	Role     model.UserRole
}

// CodeDeliveryResult reports how a verification code reached the user. When
// the notifier fails, the code rides in the response instead (the documented
// degraded-mode contract, not an error).
type CodeDeliveryResult struct {
	Email     string `json:"email"`
	EmailSent bool   `json:"emailSent"`
	Code      string `json:"code,omitempty"`
}

type UserService struct {
	users    repository.UserRepository
	pending  repository.PendingVerificationRepository
	notifier notify.Notifier
	codeTTL  time.Duration
	now      func() time.Time
}

func NewUserService(
	users repository.UserRepository,
	pending repository.PendingVerificationRepository,
	notifier notify.Notifier,
	codeTTL time.Duration,
) *UserService {
	return &UserService{
		users:    users,
		pending:  pending,
		notifier: notifier,
		codeTTL:  codeTTL,
		now:      time.Now,
	}
}

// Register stages a new account in pending_verifications and emails the
// verification code. An existing pending record for the same email is
// replaced so the latest code is the only valid one.
func (s *UserService) Register(ctx context.Context, params RegisterParams) (*CodeDeliveryResult, error) {
	email := normalizeEmail(params.Email)

	if params.Name == "" {
		return nil, apperrors.MissingRequired("name")
	}
	if !util.IsValidEmail(email) {
		return nil, apperrors.InvalidInput("email", "must be a valid email address")
	}
	if len(params.Password) < minPasswordLength {
		return nil, apperrors.InvalidInput("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if !util.IsValidEnum(string(params.Role), []string{
		string(model.UserRoleClient), string(model.UserRoleMerchant), string(model.UserRoleCourier),
	}) {
		return nil, apperrors.InvalidInput("role", fmt.Sprintf("unknown role %q", params.Role))
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing != nil {
		return nil, apperrors.AlreadyExists("User")
	}

	if err := s.pending.DeleteByEmail(ctx, email); err != nil {
		return nil, apperrors.Database(err)
	}

	hash, err := util.HashPassword(params.Password)
	if err != nil {
		return nil, apperrors.Internal("failed to hash password").WithCause(err)
	}

	code := util.GenerateOTP()
	_, err = s.pending.Create(ctx, model.CreatePendingVerificationParams{
		ID:           "pending_" + uuid.NewString(),
		Email:        email,
		Name:         params.Name,
		PasswordHash: hash,
		Role:         params.Role,
		Code:         code,
		ExpiresAt:    s.now().Add(s.codeTTL),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Str("email", email).Msg("registration staged, verification pending")
	audit.Log(ctx, audit.Event{Type: audit.EventRegister, Email: email})

	return s.deliverCode(ctx, email, params.Name, "Code de vérification", code), nil
}

// VerifyCode promotes a pending registration into a full account.
func (s *UserService) VerifyCode(ctx context.Context, email, code string) (*model.PublicUser, error) {
	email = normalizeEmail(email)

	pending, err := s.pending.FindByEmailAndCode(ctx, email, code)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if pending == nil {
		return nil, apperrors.InvalidCode()
	}

	if s.now().After(pending.ExpiresAt) {
		// Stale codes are removed eagerly; the cleanup job is only a backstop.
		if err := s.pending.Delete(ctx, pending.ID); err != nil {
			log.Error().Err(err).Str("email", email).Msg("failed to delete expired pending verification")
		}
		return nil, apperrors.CodeExpired()
	}

	user, err := s.users.Create(ctx, model.CreateUserParams{
		Email:        pending.Email,
		Name:         pending.Name,
		PasswordHash: pending.PasswordHash,
		Role:         pending.Role,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if err := s.pending.Delete(ctx, pending.ID); err != nil {
		log.Error().Err(err).Str("email", email).Msg("failed to delete consumed pending verification")
	}

	log.Info().Str("email", email).Msg("email verified, account created")
	audit.Log(ctx, audit.Event{Type: audit.EventEmailVerified, Email: email})

	public := user.Public()
	return &public, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*model.PublicUser, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.NotFound("User")
	}

	if !util.CheckPasswordHash(password, user.PasswordHash) {
		audit.Log(ctx, audit.Event{Type: audit.EventLoginFailure, Email: email})
		return nil, apperrors.InvalidCredentials()
	}

	audit.Log(ctx, audit.Event{Type: audit.EventLoginSuccess, Email: email})

	public := user.Public()
	return &public, nil
}

// VerifyCredentials implements the CredentialVerifier used by the QR login
// engine. A nil result with nil error means the identity is unknown or the
// password does not match; errors are reserved for store failures.
func (s *UserService) VerifyCredentials(ctx context.Context, email, password string) (*model.PublicUser, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil || !util.CheckPasswordHash(password, user.PasswordHash) {
		return nil, nil
	}

	public := user.Public()
	return &public, nil
}

func (s *UserService) SendResetCode(ctx context.Context, email string) (*CodeDeliveryResult, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.NotFound("User")
	}

	code := util.GenerateOTP()
	if err := s.users.SetResetCode(ctx, email, code, s.now().Add(s.codeTTL)); err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Str("email", email).Str("code", util.MaskCode(code)).Msg("reset code generated")
	audit.Log(ctx, audit.Event{Type: audit.EventResetCodeSent, Email: email})

	return s.deliverCode(ctx, email, user.Name, "Code de réinitialisation", code), nil
}

func (s *UserService) VerifyResetCode(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return apperrors.Database(err)
	}
	if user == nil {
		return apperrors.NotFound("User")
	}

	if user.ResetCode == nil || *user.ResetCode != code {
		return apperrors.InvalidCode()
	}
	if user.ResetExpiresAt == nil || s.now().After(*user.ResetExpiresAt) {
		return apperrors.CodeExpired()
	}

	return nil
}

func (s *UserService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apperrors.InvalidInput("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}

	if err := s.VerifyResetCode(ctx, email, code); err != nil {
		return err
	}

	hash, err := util.HashPassword(newPassword)
	if err != nil {
		return apperrors.Internal("failed to hash password").WithCause(err)
	}

	email = normalizeEmail(email)
	if err := s.users.UpdatePassword(ctx, email, hash); err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("email", email).Msg("password reset")
	audit.Log(ctx, audit.Event{Type: audit.EventPasswordReset, Email: email})
	return nil
}

// deliverCode sends the code through the notifier and falls back to returning
// it in the response body when delivery fails. The fallback is a deliberate
// degraded-mode contract for deployments without a reliable mail transport.
func (s *UserService) deliverCode(ctx context.Context, email, name, subject, code string) *CodeDeliveryResult {
	if err := s.notifier.SendCode(ctx, email, subject, code, name); err != nil {
		log.Warn().Err(err).Str("email", email).Msg("email delivery failed, returning code in response")
		return &CodeDeliveryResult{Email: email, EmailSent: false, Code: code}
	}
	return &CodeDeliveryResult{Email: email, EmailSent: true}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
