package entity

import "time"

// NotificationKind is the event type a notification records
type NotificationKind string

const (
	KindNewBooking       NotificationKind = "new-booking"
	KindBookingConfirmed NotificationKind = "booking-confirmed"
	KindBookingCancelled NotificationKind = "booking-cancelled"
	KindBookingCompleted NotificationKind = "booking-completed"
	KindFeedbackReceived NotificationKind = "feedback-received"
)

// BookingKinds are the kinds sourced from booking events
func BookingKinds() []NotificationKind {
	return []NotificationKind{
		KindNewBooking,
		KindBookingConfirmed,
		KindBookingCancelled,
		KindBookingCompleted,
	}
}

// ReviewKinds are the kinds sourced from review events
func ReviewKinds() []NotificationKind {
	return []NotificationKind{KindFeedbackReceived}
}

// IsBookingKind reports whether k is sourced from a booking
func (k NotificationKind) IsBookingKind() bool {
	for _, bk := range BookingKinds() {
		if bk == k {
			return true
		}
	}
	return false
}

// Notification is an in-app notification for an owner.
// ID is deterministic: the idempotency key of the source event.
type Notification struct {
	ID          string           `json:"id" bson:"_id"`
	RecipientID string           `json:"userId" bson:"userId"`
	Kind        NotificationKind `json:"type" bson:"type"`
	Title       string           `json:"title" bson:"title"`
	Message     string           `json:"message" bson:"message"`
	RoutePath   string           `json:"routePath" bson:"routePath"`
	Time        time.Time        `json:"time" bson:"time"`

	// booking kinds
	BookingID   string `json:"bookingId,omitempty" bson:"bookingId,omitempty"`
	CustomerID  string `json:"customerId,omitempty" bson:"customerId,omitempty"`
	VehicleInfo string `json:"vehicleInfo,omitempty" bson:"vehicleInfo,omitempty"`

	// feedback kind
	ReviewID   string `json:"reviewId,omitempty" bson:"reviewId,omitempty"`
	ReviewerID string `json:"reviewerId,omitempty" bson:"reviewerId,omitempty"`
	VehicleID  string `json:"vehicleId,omitempty" bson:"vehicleId,omitempty"`
	Rating     int    `json:"rating,omitempty" bson:"rating,omitempty"`
	Stars      string `json:"stars,omitempty" bson:"stars,omitempty"`
	Excerpt    string `json:"excerpt,omitempty" bson:"excerpt,omitempty"`
	ReviewText string `json:"reviewText,omitempty" bson:"reviewText,omitempty"`

	Read      bool       `json:"read" bson:"read"`
	ReadAt    *time.Time `json:"readAt" bson:"readAt"`
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// SourceID is the booking or review id the notification was generated from
func (n *Notification) SourceID() string {
	if n.Kind == KindFeedbackReceived {
		return n.ReviewID
	}
	return n.BookingID
}

// ReadState is the field set written by read-state updates
type ReadState struct {
	Read      bool
	ReadAt    *time.Time
	UpdatedAt time.Time
}

// NotificationChange is one change observed on an owner's notifications.
// Deletes carry only the id.
type NotificationChange struct {
	Type           BookingChangeType
	NotificationID string
}
