package entity

import "time"

// Actors recorded on status events
const (
	ActorOwner        = "owner"
	ActorOverdueSweep = "overdue-sweep"
)

// BookingStatusEvent is one recorded transition of a booking
type BookingStatusEvent struct {
	ID         uint          `json:"id"`
	BookingID  string        `json:"bookingId"`
	OwnerID    string        `json:"ownerId"`
	FromStatus BookingStatus `json:"fromStatus"`
	ToStatus   BookingStatus `json:"toStatus"`
	Actor      string        `json:"actor"`
	OccurredAt time.Time     `json:"occurredAt"`
}
