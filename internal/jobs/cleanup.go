package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/livraison-express/api-server-go/internal/repository"
)

const cleanupPassTimeout = 30 * time.Second

// CleanupJob sweeps expired handshake state on a fixed interval: QR sessions
// past their deadline that never reached confirmed, stale pending
// registrations, and consumed-or-expired reset codes. Confirmed QR sessions
// are deliberately retained past expiry until the consuming client deletes
// them, since they still carry a login result the web client may not have
// fetched yet.
type CleanupJob struct {
	sessionRepo  repository.QRSessionRepository
	pendingRepo  repository.PendingVerificationRepository
	userRepo     repository.UserRepository
	interval     time.Duration
	startupDelay time.Duration
	done         chan struct{}
}

func NewCleanupJob(
	sessionRepo repository.QRSessionRepository,
	pendingRepo repository.PendingVerificationRepository,
	userRepo repository.UserRepository,
	interval time.Duration,
	startupDelay time.Duration,
) *CleanupJob {
	return &CleanupJob{
		sessionRepo:  sessionRepo,
		pendingRepo:  pendingRepo,
		userRepo:     userRepo,
		interval:     interval,
		startupDelay: startupDelay,
		done:         make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().
		Dur("interval", j.interval).
		Dur("startupDelay", j.startupDelay).
		Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	// First pass waits for the store connection to settle.
	select {
	case <-j.done:
		return
	case <-time.After(j.startupDelay):
	}

	j.cleanup()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

// cleanup runs one sweep. A failing target logs and is retried on the next
// scheduled pass; it never stops the job.
func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupPassTimeout)
	defer cancel()

	j.runCleanup(ctx, "qr sessions", j.sessionRepo.DeleteExpiredUnconfirmed)
	j.runCleanup(ctx, "pending verifications", j.pendingRepo.DeleteExpired)
	j.runCleanup(ctx, "reset codes", j.userRepo.ClearExpiredResetCodes)
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
