package entity

import (
	"strings"
	"time"
)

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingPending   BookingStatus = "Pending"
	BookingAccepted  BookingStatus = "Accepted"
	BookingCancelled BookingStatus = "Cancelled"
	BookingCompleted BookingStatus = "Completed"
	BookingOverdue   BookingStatus = "Overdue"
)

// ownerTransitions lists the statuses an owner command may move a booking to.
// Overdue is never an owner target; only the overdue sweep sets it.
var ownerTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:  {BookingAccepted, BookingCancelled},
	BookingAccepted: {BookingCompleted},
	BookingOverdue:  {BookingCompleted},
}

// AllBookingStatuses returns every known status
func AllBookingStatuses() []BookingStatus {
	return []BookingStatus{
		BookingPending,
		BookingAccepted,
		BookingCancelled,
		BookingCompleted,
		BookingOverdue,
	}
}

// ParseBookingStatus accepts any casing ("accepted", "ACCEPTED") and returns
// the canonical status.
func ParseBookingStatus(s string) (BookingStatus, error) {
	s = strings.TrimSpace(s)
	for _, st := range AllBookingStatuses() {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

func (s BookingStatus) String() string {
	return string(s)
}

// IsValid reports whether s is a known status
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingPending, BookingAccepted, BookingCancelled, BookingCompleted, BookingOverdue:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for Cancelled and Completed
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCancelled || s == BookingCompleted
}

// CanBecomeOverdue returns true when the overdue sweep may reclassify s
func (s BookingStatus) CanBecomeOverdue() bool {
	return s == BookingPending || s == BookingAccepted
}

// CanTransitionTo reports whether an owner command may move s to next
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range ownerTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Booking is a rental booking document
type Booking struct {
	ID              string        `json:"id" bson:"_id"`
	OwnerID         string        `json:"ownerId" bson:"ownerId"`
	CustomerID      string        `json:"customerId" bson:"userId"`
	Status          BookingStatus `json:"status" bson:"status"`
	VehicleID       string        `json:"vehicleId,omitempty" bson:"vehicleId,omitempty"`
	VehicleBrand    string        `json:"vehicleBrand,omitempty" bson:"vehicleBrand,omitempty"`
	VehicleModel    string        `json:"vehicleModel,omitempty" bson:"vehicleModel,omitempty"`
	PickupAt        time.Time     `json:"pickupAt" bson:"pickupAt"`
	PickupLocation  string        `json:"pickupLocation,omitempty" bson:"pickupLocation,omitempty"`
	DropoffAt       time.Time     `json:"dropoffAt" bson:"dropoffAt"`
	DropoffLocation string        `json:"dropoffLocation,omitempty" bson:"dropoffLocation,omitempty"`
	DailyPrice      float64       `json:"dailyPrice,omitempty" bson:"dailyPrice,omitempty"`
	RentalAmount    float64       `json:"rentalAmount,omitempty" bson:"rentalAmount,omitempty"`
	HourlyRate      float64       `json:"hourlyRate,omitempty" bson:"hourlyRate,omitempty"`
	CreatedAt       time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// BasePrice is the daily price when set, otherwise the flat rental amount
func (b *Booking) BasePrice() float64 {
	if b.DailyPrice > 0 {
		return b.DailyPrice
	}
	return b.RentalAmount
}

// VehicleInfo is "<brand> <model>" trimmed
func (b *Booking) VehicleInfo() string {
	return strings.TrimSpace(b.VehicleBrand + " " + b.VehicleModel)
}

// BookingChangeType is the kind of change observed on a stream
type BookingChangeType string

const (
	ChangeAdded    BookingChangeType = "added"
	ChangeModified BookingChangeType = "modified"
	ChangeRemoved  BookingChangeType = "removed"
)

// BookingChange is one event on the owner's booking stream
type BookingChange struct {
	Type    BookingChangeType
	Booking Booking
}
