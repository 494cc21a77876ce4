package usecase

import (
	"time"

	"rental-notify-service/internal/domain/entity"

	"github.com/shopspring/decimal"
)

// OverdueGrace is how long after dropoff a live booking becomes Overdue
const OverdueGrace = time.Hour

// IsOverdue reports whether b should be reclassified Overdue at now.
// Only Pending and Accepted bookings qualify.
func IsOverdue(b *entity.Booking, now time.Time) bool {
	if !b.Status.CanBecomeOverdue() || b.DropoffAt.IsZero() {
		return false
	}
	return now.Sub(b.DropoffAt) >= OverdueGrace
}

// EffectiveStatus is the stored status, or Overdue when the predicate holds
func EffectiveStatus(b *entity.Booking, now time.Time) entity.BookingStatus {
	if IsOverdue(b, now) {
		return entity.BookingOverdue
	}
	return b.Status
}

// OverdueHours is the time past dropoff rounded up to whole hours
func OverdueHours(b *entity.Booking, now time.Time) int64 {
	if b.DropoffAt.IsZero() || !now.After(b.DropoffAt) {
		return 0
	}
	elapsed := now.Sub(b.DropoffAt)
	hours := int64(elapsed / time.Hour)
	if elapsed%time.Hour != 0 {
		hours++
	}
	return hours
}

// OverdueAmount is OverdueHours x HourlyRate for an Overdue booking, zero otherwise.
// A booking that is still stored as Pending/Accepted but already past the grace
// period accrues as if the sweep had run.
func OverdueAmount(b *entity.Booking, now time.Time) decimal.Decimal {
	if EffectiveStatus(b, now) != entity.BookingOverdue || b.HourlyRate <= 0 {
		return decimal.Zero
	}
	hours := OverdueHours(b, now)
	if hours < 1 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(b.HourlyRate).Mul(decimal.NewFromInt(hours))
}

// TotalPayable is the base price plus any overdue accrual
func TotalPayable(b *entity.Booking, now time.Time) decimal.Decimal {
	return decimal.NewFromFloat(b.BasePrice()).Add(OverdueAmount(b, now))
}

// BookingView is a booking with its derived, unpersisted figures
type BookingView struct {
	entity.Booking
	EffectiveStatus entity.BookingStatus `json:"effectiveStatus"`
	OverdueHours    int64                `json:"overdueHours"`
	OverdueAmount   decimal.Decimal      `json:"overdueAmount"`
	TotalPayable    decimal.Decimal      `json:"totalPayable"`
}

// NewBookingView evaluates b at now
func NewBookingView(b *entity.Booking, now time.Time) BookingView {
	view := BookingView{
		Booking:         *b,
		EffectiveStatus: EffectiveStatus(b, now),
		OverdueAmount:   OverdueAmount(b, now),
		TotalPayable:    TotalPayable(b, now),
	}
	if view.EffectiveStatus == entity.BookingOverdue {
		view.OverdueHours = OverdueHours(b, now)
	}
	return view
}
