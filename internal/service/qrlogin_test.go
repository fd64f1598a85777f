package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apperrors "github.com/livraison-express/api-server-go/internal/errors"
	"github.com/livraison-express/api-server-go/internal/model"
)

type mockQRSessionRepo struct {
	mock.Mock
}

func (m *mockQRSessionRepo) FindByID(ctx context.Context, sessionID string) (*model.QRSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QRSession), args.Error(1)
}

func (m *mockQRSessionRepo) Create(ctx context.Context, params model.CreateQRSessionParams) (*model.QRSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QRSession), args.Error(1)
}

func (m *mockQRSessionRepo) MarkScanned(ctx context.Context, sessionID string, device json.RawMessage, at time.Time) (*model.QRSession, error) {
	args := m.Called(ctx, sessionID, device, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QRSession), args.Error(1)
}

func (m *mockQRSessionRepo) MarkConfirmed(ctx context.Context, sessionID string, userData json.RawMessage, at time.Time) (*model.QRSession, error) {
	args := m.Called(ctx, sessionID, userData, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QRSession), args.Error(1)
}

func (m *mockQRSessionRepo) MarkRejected(ctx context.Context, sessionID string, at time.Time) (*model.QRSession, error) {
	args := m.Called(ctx, sessionID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QRSession), args.Error(1)
}

func (m *mockQRSessionRepo) MarkExpired(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockQRSessionRepo) Delete(ctx context.Context, sessionID string) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

func (m *mockQRSessionRepo) DeleteExpiredUnconfirmed(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type stubVerifier struct {
	user *model.PublicUser
	err  error
}

func (v *stubVerifier) VerifyCredentials(ctx context.Context, email, password string) (*model.PublicUser, error) {
	return v.user, v.err
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func fixedTTL(model.SessionType) time.Duration { return 5 * time.Minute }

func newTestQRService(repo *mockQRSessionRepo, verifier CredentialVerifier) *QRLoginService {
	if verifier == nil {
		verifier = &stubVerifier{}
	}
	svc := NewQRLoginService(repo, verifier, fixedTTL, "livraison-express")
	svc.now = func() time.Time { return testNow }
	return svc
}

func waitingSession(id string) *model.QRSession {
	return &model.QRSession{
		SessionID: id,
		Type:      model.SessionTypeLogin,
		Status:    model.SessionStatusWaiting,
		ExpiresAt: testNow.Add(2 * time.Minute),
		CreatedAt: testNow.Add(-time.Minute),
		UpdatedAt: testNow.Add(-time.Minute),
	}
}

func scannedSession(id string) *model.QRSession {
	s := waitingSession(id)
	s.Status = model.SessionStatusScanned
	at := testNow.Add(-30 * time.Second)
	s.ScannedAt = &at
	return s
}

func TestQRLoginService_CreateSession(t *testing.T) {
	t.Run("creates a waiting session with QR payload", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		repo.On("Create", mock.Anything, mock.MatchedBy(func(p model.CreateQRSessionParams) bool {
			return p.Type == model.SessionTypeLogin &&
				p.CreatedAt.Equal(testNow) &&
				p.ExpiresAt.Equal(testNow.Add(5*time.Minute)) &&
				p.SessionID != ""
		})).Return(&model.QRSession{
			SessionID: "qr_abc",
			Type:      model.SessionTypeLogin,
			Status:    model.SessionStatusWaiting,
			ExpiresAt: testNow.Add(5 * time.Minute),
			CreatedAt: testNow,
		}, nil)

		result, err := svc.CreateSession(context.Background(), model.SessionTypeLogin, nil)

		assert.NoError(t, err)
		assert.Equal(t, "qr_abc", result.Session.SessionID)
		assert.Equal(t, model.SessionStatusWaiting, result.Session.Status)
		assert.Equal(t, "qr_abc", result.QRPayload.SessionID)
		assert.Equal(t, "scan_to_login", result.QRPayload.Action)
		assert.Equal(t, "livraison-express", result.QRPayload.App)
		assert.Equal(t, 300, result.ExpiresIn)
		repo.AssertExpectations(t)
	})

	t.Run("expiry is exactly creation plus the TTL", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		// Both timestamps must come from the same clock reading, not from a
		// store-side default that could drift from the service clock.
		repo.On("Create", mock.Anything, mock.MatchedBy(func(p model.CreateQRSessionParams) bool {
			return p.ExpiresAt.Sub(p.CreatedAt) == 5*time.Minute
		})).Return(waitingSession("qr_ttl"), nil)

		_, err := svc.CreateSession(context.Background(), model.SessionTypeWebLogin, nil)

		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("rejects unknown session type", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		_, err := svc.CreateSession(context.Background(), model.SessionType("bogus"), nil)

		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("stores initiator payload as mobile_user for mobile_to_web_login", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		initiator := json.RawMessage(`{"email":"a@b.com"}`)
		repo.On("Create", mock.Anything, mock.MatchedBy(func(p model.CreateQRSessionParams) bool {
			return p.MobileUser != nil && string(*p.MobileUser) == `{"email":"a@b.com"}` && p.WebUser == nil
		})).Return(waitingSession("qr_mtw"), nil)

		_, err := svc.CreateSession(context.Background(), model.SessionTypeMobileToWeb, initiator)

		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("maps store failure to StoreUnavailable", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		repo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		_, err := svc.CreateSession(context.Background(), model.SessionTypeLogin, nil)

		assert.Equal(t, apperrors.ErrCodeStoreUnavailable, apperrors.GetCode(err))
	})
}

func TestQRLoginService_GetSessionStatus(t *testing.T) {
	t.Run("returns session with remaining time", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		repo.On("FindByID", mock.Anything, "qr_1").Return(waitingSession("qr_1"), nil)

		result, err := svc.GetSessionStatus(context.Background(), "qr_1")

		assert.NoError(t, err)
		assert.Equal(t, model.SessionStatusWaiting, result.Session.Status)
		assert.Equal(t, 120, result.TimeRemaining)
		assert.False(t, result.IsExpired)
	})

	t.Run("returns NotFound for unknown session", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		repo.On("FindByID", mock.Anything, "qr_missing").Return(nil, nil)

		_, err := svc.GetSessionStatus(context.Background(), "qr_missing")

		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})

	t.Run("persists lazy expiry for a waiting session past its deadline", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		stale := waitingSession("qr_old")
		stale.ExpiresAt = testNow.Add(-time.Second)
		repo.On("FindByID", mock.Anything, "qr_old").Return(stale, nil)
		repo.On("MarkExpired", mock.Anything, "qr_old").Return(nil)

		result, err := svc.GetSessionStatus(context.Background(), "qr_old")

		assert.NoError(t, err)
		assert.True(t, result.IsExpired)
		assert.Equal(t, model.SessionStatusExpired, result.Session.Status)
		assert.Equal(t, 0, result.TimeRemaining)
		repo.AssertExpectations(t)
	})

	t.Run("never demotes a confirmed session past its deadline", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		confirmed := waitingSession("qr_done")
		confirmed.Status = model.SessionStatusConfirmed
		confirmed.ExpiresAt = testNow.Add(-time.Hour)
		repo.On("FindByID", mock.Anything, "qr_done").Return(confirmed, nil)

		result, err := svc.GetSessionStatus(context.Background(), "qr_done")

		assert.NoError(t, err)
		assert.Equal(t, model.SessionStatusConfirmed, result.Session.Status)
		assert.False(t, result.IsExpired)
		repo.AssertNotCalled(t, "MarkExpired", mock.Anything, mock.Anything)
	})
}

func TestQRLoginService_ScanSession(t *testing.T) {
	device := json.RawMessage(`{"platform":"android"}`)

	t.Run("transitions waiting to scanned", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		repo.On("FindByID", mock.Anything, "qr_1").Return(waitingSession("qr_1"), nil)
		repo.On("MarkScanned", mock.Anything, "qr_1", device, testNow).Return(scannedSession("qr_1"), nil)

		updated, err := svc.ScanSession(context.Background(), "qr_1", device)

		assert.NoError(t, err)
		assert.Equal(t, model.SessionStatusScanned, updated.Status)
		repo.AssertExpectations(t)
	})

	t.Run("second scan fails with AlreadyScanned", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		repo.On("FindByID", mock.Anything, "qr_1").Return(scannedSession("qr_1"), nil)

		_, err := svc.ScanSession(context.Background(), "qr_1", device)

		assert.Equal(t, apperrors.ErrCodeAlreadyScanned, apperrors.GetCode(err))
		repo.AssertNotCalled(t, "MarkScanned", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("scan of a confirmed session fails with AlreadyUsed", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		done := waitingSession("qr_1")
		done.Status = model.SessionStatusConfirmed
		repo.On("FindByID", mock.Anything, "qr_1").Return(done, nil)

		_, err := svc.ScanSession(context.Background(), "qr_1", device)

		assert.Equal(t, apperrors.ErrCodeAlreadyUsed, apperrors.GetCode(err))
	})

	t.Run("expiry takes precedence over status guards", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		// Already scanned AND past deadline: the error must be Expired, not AlreadyScanned.
		stale := scannedSession("qr_1")
		stale.ExpiresAt = testNow.Add(-time.Second)
		repo.On("FindByID", mock.Anything, "qr_1").Return(stale, nil)
		repo.On("MarkExpired", mock.Anything, "qr_1").Return(nil)

		_, err := svc.ScanSession(context.Background(), "qr_1", device)

		assert.Equal(t, apperrors.ErrCodeSessionExpired, apperrors.GetCode(err))
		repo.AssertExpectations(t)
	})

	t.Run("losing the race to another scanner reports AlreadyScanned", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		repo.On("FindByID", mock.Anything, "qr_1").Return(waitingSession("qr_1"), nil).Once()
		repo.On("MarkScanned", mock.Anything, "qr_1", device, testNow).Return(nil, nil)
		repo.On("FindByID", mock.Anything, "qr_1").Return(scannedSession("qr_1"), nil).Once()

		_, err := svc.ScanSession(context.Background(), "qr_1", device)

		assert.Equal(t, apperrors.ErrCodeAlreadyScanned, apperrors.GetCode(err))
	})

	t.Run("losing the race to a concurrent expiry reports SessionExpired", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		expired := waitingSession("qr_1")
		expired.Status = model.SessionStatusExpired

		repo.On("FindByID", mock.Anything, "qr_1").Return(waitingSession("qr_1"), nil).Once()
		repo.On("MarkScanned", mock.Anything, "qr_1", device, testNow).Return(nil, nil)
		repo.On("FindByID", mock.Anything, "qr_1").Return(expired, nil).Once()

		_, err := svc.ScanSession(context.Background(), "qr_1", device)

		assert.Equal(t, apperrors.ErrCodeSessionExpired, apperrors.GetCode(err))
	})

	t.Run("unknown session fails with NotFound", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		repo.On("FindByID", mock.Anything, "qr_x").Return(nil, nil)

		_, err := svc.ScanSession(context.Background(), "qr_x", device)

		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestQRLoginService_ConfirmSession(t *testing.T) {
	verifiedUser := &model.PublicUser{Email: "a@b.com", Name: "Alice", Role: model.UserRoleClient}

	t.Run("confirms a scanned session with valid credentials", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, &stubVerifier{user: verifiedUser})

		confirmed := scannedSession("qr_1")
		confirmed.Status = model.SessionStatusConfirmed
		repo.On("FindByID", mock.Anything, "qr_1").Return(scannedSession("qr_1"), nil)
		repo.On("MarkConfirmed", mock.Anything, "qr_1", mock.MatchedBy(func(data json.RawMessage) bool {
			var u model.PublicUser
			return json.Unmarshal(data, &u) == nil && u.Email == "a@b.com"
		}), testNow).Return(confirmed, nil)

		updated, err := svc.ConfirmSession(context.Background(), ConfirmParams{
			SessionID: "qr_1",
			Email:     "a@b.com",
			Password:  "secret",
		})

		assert.NoError(t, err)
		assert.Equal(t, model.SessionStatusConfirmed, updated.Status)
		repo.AssertExpectations(t)
	})

	t.Run("re-confirming a confirmed session is an idempotent success", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		// Even past the deadline: confirmed outlives expiry.
		done := waitingSession("qr_1")
		done.Status = model.SessionStatusConfirmed
		done.ExpiresAt = testNow.Add(-time.Hour)
		repo.On("FindByID", mock.Anything, "qr_1").Return(done, nil)

		updated, err := svc.ConfirmSession(context.Background(), ConfirmParams{SessionID: "qr_1"})

		assert.NoError(t, err)
		assert.Equal(t, model.SessionStatusConfirmed, updated.Status)
		repo.AssertNotCalled(t, "MarkConfirmed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "MarkExpired", mock.Anything, mock.Anything)
	})

	t.Run("confirming a waiting session fails with NotScanned", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		repo.On("FindByID", mock.Anything, "qr_1").Return(waitingSession("qr_1"), nil)

		_, err := svc.ConfirmSession(context.Background(), ConfirmParams{
			SessionID: "qr_1",
			Email:     "a@b.com",
			Password:  "secret",
		})

		assert.Equal(t, apperrors.ErrCodeNotScanned, apperrors.GetCode(err))
	})

	t.Run("expiry takes precedence over NotScanned", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		stale := waitingSession("qr_1")
		stale.ExpiresAt = testNow.Add(-time.Second)
		repo.On("FindByID", mock.Anything, "qr_1").Return(stale, nil)
		repo.On("MarkExpired", mock.Anything, "qr_1").Return(nil)

		_, err := svc.ConfirmSession(context.Background(), ConfirmParams{SessionID: "qr_1"})

		assert.Equal(t, apperrors.ErrCodeSessionExpired, apperrors.GetCode(err))
	})

	t.Run("invalid credentials leave the session scanned", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, &stubVerifier{user: nil})

		repo.On("FindByID", mock.Anything, "qr_1").Return(scannedSession("qr_1"), nil)

		_, err := svc.ConfirmSession(context.Background(), ConfirmParams{
			SessionID: "qr_1",
			Email:     "a@b.com",
			Password:  "wrong",
		})

		assert.Equal(t, apperrors.ErrCodeInvalidCredentials, apperrors.GetCode(err))
		repo.AssertNotCalled(t, "MarkConfirmed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing credentials fail for a login session", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		repo.On("FindByID", mock.Anything, "qr_1").Return(scannedSession("qr_1"), nil)

		_, err := svc.ConfirmSession(context.Background(), ConfirmParams{SessionID: "qr_1"})

		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})

	t.Run("mobile_to_web_login trusts the supplied user data", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		session := scannedSession("qr_1")
		session.Type = model.SessionTypeMobileToWeb
		confirmed := *session
		confirmed.Status = model.SessionStatusConfirmed

		payload := json.RawMessage(`{"email":"m@b.com"}`)
		repo.On("FindByID", mock.Anything, "qr_1").Return(session, nil)
		repo.On("MarkConfirmed", mock.Anything, "qr_1", payload, testNow).Return(&confirmed, nil)

		updated, err := svc.ConfirmSession(context.Background(), ConfirmParams{
			SessionID: "qr_1",
			UserData:  payload,
		})

		assert.NoError(t, err)
		assert.Equal(t, model.SessionStatusConfirmed, updated.Status)
		repo.AssertExpectations(t)
	})

	t.Run("reject transitions scanned to rejected", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		rejected := scannedSession("qr_1")
		rejected.Status = model.SessionStatusRejected
		repo.On("FindByID", mock.Anything, "qr_1").Return(scannedSession("qr_1"), nil)
		repo.On("MarkRejected", mock.Anything, "qr_1", testNow).Return(rejected, nil)

		updated, err := svc.ConfirmSession(context.Background(), ConfirmParams{
			SessionID: "qr_1",
			Reject:    true,
		})

		assert.NoError(t, err)
		assert.Equal(t, model.SessionStatusRejected, updated.Status)
	})

	t.Run("confirming a rejected session fails with SessionRejected", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		rejected := scannedSession("qr_1")
		rejected.Status = model.SessionStatusRejected
		repo.On("FindByID", mock.Anything, "qr_1").Return(rejected, nil)

		_, err := svc.ConfirmSession(context.Background(), ConfirmParams{
			SessionID: "qr_1",
			Email:     "a@b.com",
			Password:  "secret",
		})

		assert.Equal(t, apperrors.ErrCodeRejected, apperrors.GetCode(err))
	})

	t.Run("losing the confirm race against another confirm succeeds idempotently", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, &stubVerifier{user: verifiedUser})

		confirmed := scannedSession("qr_1")
		confirmed.Status = model.SessionStatusConfirmed

		repo.On("FindByID", mock.Anything, "qr_1").Return(scannedSession("qr_1"), nil).Once()
		repo.On("MarkConfirmed", mock.Anything, "qr_1", mock.Anything, testNow).Return(nil, nil)
		repo.On("FindByID", mock.Anything, "qr_1").Return(confirmed, nil).Once()

		updated, err := svc.ConfirmSession(context.Background(), ConfirmParams{
			SessionID: "qr_1",
			Email:     "a@b.com",
			Password:  "secret",
		})

		assert.NoError(t, err)
		assert.Equal(t, model.SessionStatusConfirmed, updated.Status)
	})

	t.Run("losing the confirm race against a reject fails with SessionRejected", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, &stubVerifier{user: verifiedUser})

		rejected := scannedSession("qr_1")
		rejected.Status = model.SessionStatusRejected

		repo.On("FindByID", mock.Anything, "qr_1").Return(scannedSession("qr_1"), nil).Once()
		repo.On("MarkConfirmed", mock.Anything, "qr_1", mock.Anything, testNow).Return(nil, nil)
		repo.On("FindByID", mock.Anything, "qr_1").Return(rejected, nil).Once()

		_, err := svc.ConfirmSession(context.Background(), ConfirmParams{
			SessionID: "qr_1",
			Email:     "a@b.com",
			Password:  "secret",
		})

		assert.Equal(t, apperrors.ErrCodeRejected, apperrors.GetCode(err))
	})
}

func TestQRLoginService_DeleteSession(t *testing.T) {
	t.Run("deletes an existing session", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		repo.On("Delete", mock.Anything, "qr_1").Return(true, nil)

		assert.NoError(t, svc.DeleteSession(context.Background(), "qr_1"))
	})

	t.Run("returns NotFound for an unknown session", func(t *testing.T) {
		repo := new(mockQRSessionRepo)
		svc := newTestQRService(repo, nil)

		repo.On("Delete", mock.Anything, "qr_x").Return(false, nil)

		err := svc.DeleteSession(context.Background(), "qr_x")

		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}
