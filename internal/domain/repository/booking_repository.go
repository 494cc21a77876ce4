package repository

import (
	"context"
	"time"

	"rental-notify-service/internal/domain/entity"
)

// BookingRepository defines the interface for booking storage operations
type BookingRepository interface {
	// FindByID returns nil, nil when the booking does not exist
	FindByID(ctx context.Context, id string) (*entity.Booking, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*entity.Booking, error)
	FindByOwner(ctx context.Context, ownerID string) ([]*entity.Booking, error)
	// FindOverdueCandidates returns Pending/Accepted bookings whose dropoff is at or before cutoff
	FindOverdueCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Booking, error)
	// UpdateStatus writes to only when the stored status still equals from.
	// It returns entity.ErrConflict when it does not and entity.ErrNotFound when the booking is gone.
	UpdateStatus(ctx context.Context, id string, from, to entity.BookingStatus, updatedAt time.Time) error
	Watch(ctx context.Context, ownerID string) (ChangeStream[entity.BookingChange], error)
}
