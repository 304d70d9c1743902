package multipart

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-logr/logr"
	"gorm.io/gorm"

	"github.com/vaultdrive/vaultdrive/clock"
	"github.com/vaultdrive/vaultdrive/quota"
	"github.com/vaultdrive/vaultdrive/xfererr"
)

const (
	sweepRetryAttempts = 3
	sweepRetryDelay    = 1 * time.Second
	sweepRetryMaxDelay = 10 * time.Second
)

// Sweeper periodically reclaims expired multipart sessions (spec §4.6.5):
// abort the provider upload, release its quota reservation, delete the row.
// Every step is idempotent, so a sweep racing a client's own Complete/Abort
// call (or a second sweeper tick) is safe.
type Sweeper struct {
	db       *gorm.DB
	provider Provider
	quota    *quota.Ledger
	clock    clock.Clock
	logger   logr.Logger
	metrics  *Metrics
}

// NewSweeper builds a Sweeper. metrics may be nil.
func NewSweeper(db *gorm.DB, provider Provider, ledger *quota.Ledger, clk clock.Clock, logger logr.Logger, metrics *Metrics) *Sweeper {
	return &Sweeper{db: db, provider: provider, quota: ledger, clock: clk, logger: logger.WithName("multipart-sweeper"), metrics: metrics}
}

// Run blocks, sweeping expired sessions once per interval until ctx is
// canceled. Intended to be started as a single background goroutine from
// the composition root.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Error(err, "multipart sweep failed")
			}
		}
	}
}

// SweepOnce reclaims every session whose token has already expired.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	var expired []Session
	if err := s.db.WithContext(ctx).Where("expires_at < ?", s.clock.Now()).Find(&expired).Error; err != nil {
		return err
	}

	for _, session := range expired {
		s.reclaim(ctx, session)
	}
	return nil
}

// reclaim retries the provider abort a few times (transient S3/filesystem
// errors are common under sweep load) before giving up and logging; every
// step still runs even if an earlier one failed, matching Coordinator.Abort's
// best-effort contract.
func (s *Sweeper) reclaim(ctx context.Context, session Session) {
	err := retry.Do(
		func() error {
			return s.provider.AbortMultipart(ctx, session.OwnerID, session.FileID, session.UploadID)
		},
		retry.Context(ctx),
		retry.Attempts(sweepRetryAttempts),
		retry.Delay(sweepRetryDelay),
		retry.MaxDelay(sweepRetryMaxDelay),
		retry.RetryIf(func(err error) bool {
			return xfererr.Is(err, xfererr.ProviderTransient)
		}),
	)
	if err != nil {
		s.logger.Error(err, "sweeper failed to abort provider upload", "sessionID", session.ID)
	}

	if err := s.quota.Release(ctx, session.OwnerID, session.TotalSize); err != nil {
		s.logger.Error(err, "sweeper failed to release reserved quota", "sessionID", session.ID)
	}
	if err := s.db.WithContext(ctx).Where("id = ?", session.ID).Delete(&Session{}).Error; err != nil {
		s.logger.Error(err, "sweeper failed to delete expired session", "sessionID", session.ID)
	}
	s.metrics.recordSwept()
}
