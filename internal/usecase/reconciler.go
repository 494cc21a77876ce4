package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/internal/domain/repository"
	"rental-notify-service/pkg/clock"
	"rental-notify-service/pkg/logger"
	"rental-notify-service/pkg/metrics"
)

// ReconcilerConfig tunes the per-owner session loops
type ReconcilerConfig struct {
	OrphanSweepInterval time.Duration
	ResubscribeDelay    time.Duration
	ReviewScanLimit     int
}

// Reconciler turns booking and review changes into notifications for one owner at a time
type Reconciler struct {
	bookingRepo      repository.BookingRepository
	reviewRepo       repository.ReviewRepository
	notificationRepo repository.NotificationRepository
	clock            clock.Clock
	metrics          *metrics.Metrics
	logger           logger.Logger
	cfg              ReconcilerConfig
}

// NewReconciler creates a new reconciler
func NewReconciler(
	bookingRepo repository.BookingRepository,
	reviewRepo repository.ReviewRepository,
	notificationRepo repository.NotificationRepository,
	clk clock.Clock,
	m *metrics.Metrics,
	logger logger.Logger,
	cfg ReconcilerConfig,
) *Reconciler {
	if cfg.OrphanSweepInterval <= 0 {
		cfg.OrphanSweepInterval = 5 * time.Minute
	}
	if cfg.ResubscribeDelay <= 0 {
		cfg.ResubscribeDelay = 5 * time.Second
	}
	return &Reconciler{
		bookingRepo:      bookingRepo,
		reviewRepo:       reviewRepo,
		notificationRepo: notificationRepo,
		clock:            clk,
		metrics:          m,
		logger:           logger,
		cfg:              cfg,
	}
}

// dedupIndex caches ids known to exist in the store. It only saves store
// round trips; CreateIfAbsent stays the source of truth. Each index is owned
// by a single loop goroutine.
type dedupIndex map[string]struct{}

func (d dedupIndex) has(id string) bool {
	_, ok := d[id]
	return ok
}

func (d dedupIndex) add(id string) {
	d[id] = struct{}{}
}

// loadIndex performs the cold-start load for the given kinds. A failed load
// yields an empty index; events are then deduplicated by the store alone.
func (r *Reconciler) loadIndex(ctx context.Context, ownerID string, kinds []entity.NotificationKind) dedupIndex {
	index := make(dedupIndex)

	existing, err := r.notificationRepo.FindByOwnerAndKinds(ctx, ownerID, kinds)
	if err != nil {
		r.logger.Error("Failed to load existing notifications", "ownerID", ownerID, "error", err)
		r.metrics.ErrorsCount.WithLabelValues("cold_start").Inc()
		return index
	}

	for _, n := range existing {
		index.add(n.ID)
	}
	r.logger.Debug("Existing notifications loaded", "ownerID", ownerID, "count", len(index))
	return index
}

// processBookingChange maps one booking change and creates its notification if new.
// Failures are logged and swallowed.
func (r *Reconciler) processBookingChange(ctx context.Context, ownerID string, index dedupIndex, change entity.BookingChange) {
	n, ok := MapBookingChange(change, r.clock.Now())
	if !ok {
		r.metrics.NotificationsSkipped.WithLabelValues(metrics.SkipNoKind).Inc()
		return
	}
	r.createNotification(ctx, ownerID, index, n)
}

// processReviewChange maps one review change and creates its notification if new
func (r *Reconciler) processReviewChange(ctx context.Context, ownerID string, index dedupIndex, change entity.ReviewChange) {
	n, ok := MapReviewChange(change, r.clock.Now())
	if !ok {
		r.metrics.NotificationsSkipped.WithLabelValues(metrics.SkipNoKind).Inc()
		return
	}
	r.createNotification(ctx, ownerID, index, n)
}

func (r *Reconciler) createNotification(ctx context.Context, ownerID string, index dedupIndex, n *entity.Notification) {
	if index.has(n.ID) {
		r.metrics.NotificationsSkipped.WithLabelValues(metrics.SkipIndexed).Inc()
		return
	}

	now := r.clock.Now()
	n.RecipientID = ownerID
	n.Read = false
	n.ReadAt = nil
	n.CreatedAt = now
	n.UpdatedAt = now

	created, err := r.notificationRepo.CreateIfAbsent(ctx, n)
	if err != nil {
		r.logger.Error("Failed to save notification",
			"ownerID", ownerID,
			"notificationID", n.ID,
			"error", err)
		r.metrics.ErrorsCount.WithLabelValues("create_notification").Inc()
		return
	}

	index.add(n.ID)

	if !created {
		r.logger.Debug("Notification already exists, skipping", "notificationID", n.ID)
		r.metrics.NotificationsSkipped.WithLabelValues(metrics.SkipExists).Inc()
		return
	}

	r.logger.Info("Notification created",
		"ownerID", ownerID,
		"notificationID", n.ID,
		"kind", n.Kind)
	r.metrics.NotificationsCreated.WithLabelValues(string(n.Kind)).Inc()
}

// SweepOrphans deletes the owner's booking notifications whose booking is gone
// or now belongs to someone else. It returns the number deleted.
func (r *Reconciler) SweepOrphans(ctx context.Context, ownerID string) (int64, error) {
	start := time.Now()
	defer func() {
		r.metrics.SweepDuration.WithLabelValues("orphan").Observe(time.Since(start).Seconds())
	}()

	notifications, err := r.notificationRepo.FindByOwnerAndKinds(ctx, ownerID, entity.BookingKinds())
	if err != nil {
		return 0, fmt.Errorf("failed to list booking notifications: %w", err)
	}
	if len(notifications) == 0 {
		return 0, nil
	}

	bookingIDs := make([]string, 0, len(notifications))
	for _, n := range notifications {
		if n.BookingID != "" {
			bookingIDs = append(bookingIDs, n.BookingID)
		}
	}

	bookings, err := r.bookingRepo.FindByIDs(ctx, bookingIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load bookings: %w", err)
	}

	var orphans []string
	for _, n := range notifications {
		if n.BookingID == "" {
			continue
		}
		b, ok := bookings[n.BookingID]
		if !ok || b == nil || b.OwnerID != ownerID {
			orphans = append(orphans, n.ID)
		}
	}

	if len(orphans) == 0 {
		return 0, nil
	}

	deleted, err := r.notificationRepo.DeleteMany(ctx, orphans)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned notifications: %w", err)
	}

	r.logger.Info("Cleaned up orphaned notifications", "ownerID", ownerID, "count", deleted)
	r.metrics.OrphansDeleted.Add(float64(deleted))
	return deleted, nil
}

// Session is one owner's running reconciliation: booking and review
// subscriptions, the orphan sweep and, when a feed is attached, the live list.
type Session struct {
	ownerID string
	r       *Reconciler
	feed    *Feed
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

// Start launches a session for ownerID. feed may be nil.
func (r *Reconciler) Start(parent context.Context, ownerID string, feed *Feed) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ownerID: ownerID,
		r:       r,
		feed:    feed,
		cancel:  cancel,
	}

	s.spawn(func() { s.supervise(ctx, "bookings", s.runBookings) })
	s.spawn(func() { s.supervise(ctx, "reviews", s.runReviews) })
	s.spawn(func() { s.runOrphanSweep(ctx) })
	if feed != nil {
		s.spawn(func() { s.supervise(ctx, "feed", s.runFeed) })
	}

	r.logger.Info("Reconciliation session started", "ownerID", ownerID)
	return s
}

// OwnerID returns the owner the session serves
func (s *Session) OwnerID() string {
	return s.ownerID
}

// Stop cancels every loop and waits for them to return.
// A store write already in flight may still land.
func (s *Session) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.r.logger.Info("Reconciliation session stopped", "ownerID", s.ownerID)
	})
}

func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// supervise reruns a subscription until ctx ends. Every rerun rebuilds its
// state from scratch after ResubscribeDelay.
func (s *Session) supervise(ctx context.Context, name string, run func(context.Context) error) {
	for {
		err := run(ctx)
		if ctx.Err() != nil {
			return
		}

		s.r.logger.Error("Subscription ended, resubscribing",
			"ownerID", s.ownerID,
			"subscription", name,
			"error", err)
		s.r.metrics.ErrorsCount.WithLabelValues("subscribe_" + name).Inc()

		timer := time.NewTimer(s.r.cfg.ResubscribeDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Session) runBookings(ctx context.Context) error {
	index := s.r.loadIndex(ctx, s.ownerID, entity.BookingKinds())

	stream, err := s.r.bookingRepo.Watch(ctx, s.ownerID)
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())

	// Change streams start empty; replay current bookings as additions.
	// Anything already notified is caught by the index or the store.
	existing, err := s.r.bookingRepo.FindByOwner(ctx, s.ownerID)
	if err != nil {
		s.r.logger.Error("Failed to scan bookings", "ownerID", s.ownerID, "error", err)
		s.r.metrics.ErrorsCount.WithLabelValues("scan_bookings").Inc()
	}
	for _, b := range existing {
		s.r.processBookingChange(ctx, s.ownerID, index, entity.BookingChange{Type: entity.ChangeAdded, Booking: *b})
	}

	for {
		change, err := stream.Next(ctx)
		if err != nil {
			return streamErr(err)
		}
		s.r.processBookingChange(ctx, s.ownerID, index, change)
	}
}

func (s *Session) runReviews(ctx context.Context) error {
	index := s.r.loadIndex(ctx, s.ownerID, entity.ReviewKinds())

	stream, err := s.r.reviewRepo.Watch(ctx, s.ownerID)
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())

	existing, err := s.r.reviewRepo.FindByOwner(ctx, s.ownerID, s.r.cfg.ReviewScanLimit)
	if err != nil {
		s.r.logger.Error("Failed to scan reviews", "ownerID", s.ownerID, "error", err)
		s.r.metrics.ErrorsCount.WithLabelValues("scan_reviews").Inc()
	}
	for _, rv := range existing {
		s.r.processReviewChange(ctx, s.ownerID, index, entity.ReviewChange{Type: entity.ChangeAdded, Review: *rv})
	}

	for {
		change, err := stream.Next(ctx)
		if err != nil {
			return streamErr(err)
		}
		s.r.processReviewChange(ctx, s.ownerID, index, change)
	}
}

func (s *Session) runFeed(ctx context.Context) error {
	stream, err := s.r.notificationRepo.Watch(ctx, s.ownerID)
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())

	if err := s.feed.Reload(ctx, s.ownerID); err != nil {
		s.r.logger.Error("Failed to load notifications", "ownerID", s.ownerID, "error", err)
	}

	for {
		change, err := stream.Next(ctx)
		if err != nil {
			return streamErr(err)
		}
		// Deletes arrive for every owner; only ours change the list
		if change.Type == entity.ChangeRemoved && !s.feed.Holds(s.ownerID, change.NotificationID) {
			continue
		}
		if err := s.feed.Reload(ctx, s.ownerID); err != nil {
			s.r.logger.Error("Failed to reload notifications", "ownerID", s.ownerID, "error", err)
		}
	}
}

func (s *Session) runOrphanSweep(ctx context.Context) {
	sweep := func() {
		if _, err := s.r.SweepOrphans(ctx, s.ownerID); err != nil && ctx.Err() == nil {
			s.r.logger.Error("Error cleaning up orphaned notifications", "ownerID", s.ownerID, "error", err)
			s.r.metrics.ErrorsCount.WithLabelValues("orphan_sweep").Inc()
		}
	}

	sweep()

	ticker := time.NewTicker(s.r.cfg.OrphanSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

func streamErr(err error) error {
	if errors.Is(err, repository.ErrStreamClosed) {
		return err
	}
	return fmt.Errorf("change stream: %w", err)
}
