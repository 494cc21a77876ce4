package usecase

import (
	"context"
	"errors"
	"time"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/internal/domain/repository"
	"rental-notify-service/pkg/clock"
	"rental-notify-service/pkg/logger"
	"rental-notify-service/pkg/metrics"
)

const (
	overdueLockKey   = "overdue-sweep"
	overdueBatchSize = 500
)

// OverdueSweeper reclassifies Pending and Accepted bookings past their grace period
type OverdueSweeper struct {
	bookingRepo     repository.BookingRepository
	statusEventRepo repository.StatusEventRepository
	locker          repository.Locker
	clock           clock.Clock
	metrics         *metrics.Metrics
	logger          logger.Logger
}

// NewOverdueSweeper creates a new overdue sweeper
func NewOverdueSweeper(
	bookingRepo repository.BookingRepository,
	statusEventRepo repository.StatusEventRepository,
	locker repository.Locker,
	clk clock.Clock,
	m *metrics.Metrics,
	logger logger.Logger,
) *OverdueSweeper {
	return &OverdueSweeper{
		bookingRepo:     bookingRepo,
		statusEventRepo: statusEventRepo,
		locker:          locker,
		clock:           clk,
		metrics:         m,
		logger:          logger,
	}
}

// Sweep moves every qualifying booking to Overdue and returns how many moved.
// Per-booking failures are logged and skipped.
func (s *OverdueSweeper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		s.metrics.SweepDuration.WithLabelValues("overdue").Observe(time.Since(start).Seconds())
	}()

	now := s.clock.Now()
	candidates, err := s.bookingRepo.FindOverdueCandidates(ctx, now.Add(-OverdueGrace), overdueBatchSize)
	if err != nil {
		s.metrics.ErrorsCount.WithLabelValues("overdue_query").Inc()
		return 0, err
	}

	moved := 0
	for _, b := range candidates {
		if ctx.Err() != nil {
			return moved, ctx.Err()
		}

		// the query is a hint; the predicate decides
		if !IsOverdue(b, now) {
			continue
		}

		err := s.bookingRepo.UpdateStatus(ctx, b.ID, b.Status, entity.BookingOverdue, now)
		if err != nil {
			if errors.Is(err, entity.ErrConflict) || errors.Is(err, entity.ErrNotFound) {
				s.logger.Debug("Booking changed before overdue write, skipping", "bookingID", b.ID)
				continue
			}
			s.logger.Error("Failed to mark booking overdue", "bookingID", b.ID, "error", err)
			s.metrics.ErrorsCount.WithLabelValues("overdue_update").Inc()
			continue
		}

		recordStatusEvent(ctx, s.statusEventRepo, s.logger, b, entity.BookingOverdue, entity.ActorOverdueSweep, now)
		s.metrics.OverdueTransitions.Inc()
		moved++

		s.logger.Info("Booking marked overdue",
			"bookingID", b.ID,
			"ownerID", b.OwnerID,
			"from", b.Status,
			"overdueHours", OverdueHours(b, now))
	}

	return moved, nil
}

// Run sweeps on every tick until ctx ends. A tick is skipped when another
// replica holds the sweep lease.
func (s *OverdueSweeper) Run(ctx context.Context, interval time.Duration) {
	s.logger.Info("Starting overdue sweeper", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.tick(ctx, interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Overdue sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx, interval)
		}
	}
}

func (s *OverdueSweeper) tick(ctx context.Context, interval time.Duration) {
	release, err := s.locker.TryLock(ctx, overdueLockKey, interval)
	if err != nil {
		s.logger.Error("Failed to acquire overdue sweep lock", "error", err)
		s.metrics.ErrorsCount.WithLabelValues("overdue_lock").Inc()
		return
	}
	if release == nil {
		s.logger.Debug("Overdue sweep held by another replica")
		return
	}
	defer release()

	moved, err := s.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Overdue sweep failed", "error", err)
		}
		return
	}
	if moved > 0 {
		s.logger.Info("Overdue sweep completed", "moved", moved)
	}
}
