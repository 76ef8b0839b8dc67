package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/store"
	"github.com/aussiebroadwan/gatekeep/internal/auth/telemetry"
)

// limiterIdle is how long a limiter entry may sit untouched before it is
// pruned. It exceeds every limiter window, so pruning never forgives anyone.
const limiterIdle = 2 * time.Hour

// staleRequestAge is how long an expired email verification request is kept.
// Verify needs the row to answer a late code with a fresh one.
const staleRequestAge = 24 * time.Hour

// Pruner drops rate limiter entries idle for longer than maxIdle.
type Pruner interface {
	Prune(maxIdle time.Duration) int
}

// HousekeepingService periodically removes expired sessions, verification
// requests and reset sessions, and prunes idle rate limiter entries.
type HousekeepingService struct {
	Store    store.Store
	Pruners  []Pruner
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
	Interval time.Duration
	Now      func() time.Time

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration, pruners ...Pruner) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Pruners:  pruners,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one pass. Each step is independent; a failure is logged and
// the remaining steps still run.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	now := nowOr(s.Now)
	s.Logger.Debug("starting housekeeping cleanup")

	steps := []struct {
		target string
		fn     func(context.Context, time.Time) (int64, error)
	}{
		{"sessions", s.Store.Sessions().DeleteExpiredSessions},
		{"email_verification_requests", func(ctx context.Context, now time.Time) (int64, error) {
			return s.Store.EmailVerifications().DeleteExpiredRequests(ctx, now.Add(-staleRequestAge))
		}},
		{"password_reset_sessions", s.Store.PasswordResets().DeleteExpiredResetSessions},
	}

	var total int64
	for _, step := range steps {
		n, err := step.fn(ctx, now)
		if err != nil {
			s.Logger.Error("failed to delete expired rows", "target", step.target, "error", err)
			continue
		}
		s.Metrics.RecordHousekeepingPurged(ctx, step.target, n)
		total += n
	}

	var pruned int
	for _, p := range s.Pruners {
		pruned += p.Prune(limiterIdle)
	}
	s.Metrics.RecordHousekeepingPurged(ctx, "rate_limiters", int64(pruned))

	s.Logger.Info("housekeeping cleanup completed", "rows_deleted", total, "limiter_entries_pruned", pruned)
}
