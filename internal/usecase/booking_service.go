package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/internal/domain/repository"
	"rental-notify-service/pkg/clock"
	"rental-notify-service/pkg/logger"
)

// BookingService serves owner booking reads and status commands
type BookingService struct {
	bookingRepo     repository.BookingRepository
	statusEventRepo repository.StatusEventRepository
	clock           clock.Clock
	logger          logger.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookingRepo repository.BookingRepository,
	statusEventRepo repository.StatusEventRepository,
	clk clock.Clock,
	logger logger.Logger,
) *BookingService {
	return &BookingService{
		bookingRepo:     bookingRepo,
		statusEventRepo: statusEventRepo,
		clock:           clk,
		logger:          logger,
	}
}

// ParseStatusFilter turns a query value into a status filter; "" and "all" mean none
func ParseStatusFilter(s string) (*entity.BookingStatus, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return nil, nil
	}
	status, err := entity.ParseBookingStatus(s)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// List returns the owner's bookings, newest first, optionally narrowed to an effective status
func (s *BookingService) List(ctx context.Context, ownerID string, status *entity.BookingStatus) ([]BookingView, error) {
	bookings, err := s.bookingRepo.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	now := s.clock.Now()
	views := make([]BookingView, 0, len(bookings))
	for _, b := range bookings {
		view := NewBookingView(b, now)
		if status != nil && view.EffectiveStatus != *status {
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

// Get returns one of the owner's bookings
func (s *BookingService) Get(ctx context.Context, ownerID, bookingID string) (*BookingView, error) {
	booking, err := s.load(ctx, ownerID, bookingID)
	if err != nil {
		return nil, err
	}

	view := NewBookingView(booking, s.clock.Now())
	return &view, nil
}

// UpdateStatus applies an owner command. Asking for the current status again
// changes nothing.
func (s *BookingService) UpdateStatus(ctx context.Context, ownerID, bookingID string, next entity.BookingStatus) (*BookingView, error) {
	if !next.IsValid() {
		return nil, entity.ErrInvalidStatus
	}

	booking, err := s.load(ctx, ownerID, bookingID)
	if err != nil {
		return nil, err
	}

	// Owners act on the status they are shown, which may already be Overdue
	// before the sweep persists it. The write still guards the stored status.
	now := s.clock.Now()
	current := EffectiveStatus(booking, now)
	if current == next {
		view := NewBookingView(booking, now)
		return &view, nil
	}

	if !current.CanTransitionTo(next) {
		return nil, &entity.TransitionError{From: current, To: next}
	}

	if err := s.bookingRepo.UpdateStatus(ctx, booking.ID, booking.Status, next, now); err != nil {
		return nil, err
	}

	s.logger.Info("Booking status updated",
		"bookingID", booking.ID,
		"ownerID", ownerID,
		"from", booking.Status,
		"to", next)

	recordStatusEvent(ctx, s.statusEventRepo, s.logger, booking, next, entity.ActorOwner, now)

	booking.Status = next
	booking.UpdatedAt = now
	view := NewBookingView(booking, now)
	return &view, nil
}

// History returns the recorded status changes of one of the owner's bookings
func (s *BookingService) History(ctx context.Context, ownerID, bookingID string) ([]*entity.BookingStatusEvent, error) {
	if _, err := s.load(ctx, ownerID, bookingID); err != nil {
		return nil, err
	}

	events, err := s.statusEventRepo.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load status history: %w", err)
	}
	if events == nil {
		events = []*entity.BookingStatusEvent{}
	}
	return events, nil
}

func (s *BookingService) load(ctx context.Context, ownerID, bookingID string) (*entity.Booking, error) {
	booking, err := s.bookingRepo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, fmt.Errorf("booking %s: %w", bookingID, entity.ErrNotFound)
	}
	if booking.OwnerID != ownerID {
		return nil, fmt.Errorf("booking %s: %w", bookingID, entity.ErrForbidden)
	}
	return booking, nil
}

// recordStatusEvent writes the audit entry; the status change stands even if it fails
func recordStatusEvent(ctx context.Context, repo repository.StatusEventRepository, log logger.Logger, b *entity.Booking, to entity.BookingStatus, actor string, at time.Time) {
	event := &entity.BookingStatusEvent{
		BookingID:  b.ID,
		OwnerID:    b.OwnerID,
		FromStatus: b.Status,
		ToStatus:   to,
		Actor:      actor,
		OccurredAt: at,
	}
	if err := repo.Create(ctx, event); err != nil {
		log.Error("Failed to record status event", "bookingID", b.ID, "error", err)
	}
}
