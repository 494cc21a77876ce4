package usecase

import (
	"fmt"
	"math"
	"strings"
	"time"

	"rental-notify-service/internal/domain/entity"
)

const (
	excerptLength = 50
	maxStars      = 5
)

var bookingKinds = map[entity.BookingStatus]entity.NotificationKind{
	entity.BookingPending:   entity.KindNewBooking,
	entity.BookingAccepted:  entity.KindBookingConfirmed,
	entity.BookingCancelled: entity.KindBookingCancelled,
	entity.BookingCompleted: entity.KindBookingCompleted,
}

var bookingVerbs = map[entity.NotificationKind]string{
	entity.KindNewBooking:       "New booking request",
	entity.KindBookingConfirmed: "Booking confirmed",
	entity.KindBookingCancelled: "Booking cancelled",
	entity.KindBookingCompleted: "Booking completed",
}

// KindForStatus maps a booking status to its notification kind.
// Overdue has no kind: the automatic transition is not announced.
func KindForStatus(status entity.BookingStatus) (entity.NotificationKind, bool) {
	kind, ok := bookingKinds[status]
	return kind, ok
}

// BookingNotificationID is the idempotency key of a booking event
func BookingNotificationID(bookingID string, kind entity.NotificationKind) string {
	return fmt.Sprintf("booking_%s_%s", bookingID, kind)
}

// ReviewNotificationID is the idempotency key of a review event
func ReviewNotificationID(reviewID string) string {
	return "review_" + reviewID
}

// MapBookingChange returns the notification a booking change should produce, if any.
// The result has no recipient, read state or audit timestamps; callers set those.
func MapBookingChange(change entity.BookingChange, now time.Time) (*entity.Notification, bool) {
	if change.Type == entity.ChangeRemoved {
		return nil, false
	}

	b := change.Booking
	kind, ok := KindForStatus(b.Status)
	if !ok || b.ID == "" {
		return nil, false
	}

	model := b.VehicleModel
	if model == "" {
		model = "your vehicle"
	}
	vehicle := strings.TrimSpace(b.VehicleBrand + " " + model)

	title := "Booking Update"
	if kind == entity.KindNewBooking {
		title = "New Booking Request"
	}

	return &entity.Notification{
		ID:          BookingNotificationID(b.ID, kind),
		Kind:        kind,
		Title:       title,
		Message:     fmt.Sprintf("%s for %s", bookingVerbs[kind], vehicle),
		RoutePath:   "/bookings?id=" + b.ID,
		Time:        firstNonZero(b.UpdatedAt, b.CreatedAt, now),
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		VehicleInfo: b.VehicleInfo(),
	}, true
}

// MapReviewChange returns the feedback notification for a review change
func MapReviewChange(change entity.ReviewChange, now time.Time) (*entity.Notification, bool) {
	if change.Type == entity.ChangeRemoved || change.Review.ID == "" {
		return nil, false
	}

	r := change.Review
	rating := RoundRating(r.Rating)
	excerpt := Excerpt(r.Text)

	return &entity.Notification{
		ID:         ReviewNotificationID(r.ID),
		Kind:       entity.KindFeedbackReceived,
		Title:      fmt.Sprintf("New %d-Star Review", rating),
		Message:    fmt.Sprintf(`Someone left a %d-star review: "%s"`, rating, excerpt),
		RoutePath:  "/feedbacks",
		Time:       firstNonZero(r.Timestamp, now),
		BookingID:  r.BookingID,
		ReviewID:   r.ID,
		ReviewerID: r.ReviewerID,
		VehicleID:  r.VehicleID,
		Rating:     rating,
		Stars:      StarGlyphs(r.Rating),
		Excerpt:    excerpt,
		ReviewText: r.Text,
	}, true
}

// RoundRating rounds to the nearest whole star within 0..5
func RoundRating(rating float64) int {
	return int(math.Round(clampRating(rating)))
}

// StarGlyphs renders floor(rating) filled stars padded with empty ones to five
func StarGlyphs(rating float64) string {
	filled := int(math.Floor(clampRating(rating)))
	return strings.Repeat("★", filled) + strings.Repeat("☆", maxStars-filled)
}

// Excerpt is the first 50 characters of text, with "..." when cut
func Excerpt(text string) string {
	if text == "" {
		return "No comment"
	}
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return string(runes[:excerptLength]) + "..."
}

func clampRating(rating float64) float64 {
	if math.IsNaN(rating) || rating < 0 {
		return 0
	}
	if rating > maxStars {
		return maxStars
	}
	return rating
}

func firstNonZero(times ...time.Time) time.Time {
	for _, t := range times {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
