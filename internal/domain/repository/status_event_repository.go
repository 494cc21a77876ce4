package repository

import (
	"context"

	"rental-notify-service/internal/domain/entity"
)

// StatusEventRepository stores the booking status audit trail
type StatusEventRepository interface {
	Create(ctx context.Context, event *entity.BookingStatusEvent) error
	ListByBooking(ctx context.Context, bookingID string) ([]*entity.BookingStatusEvent, error)
}
