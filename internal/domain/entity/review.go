package entity

import "time"

// Review is customer feedback on a rented vehicle. Read-only here.
type Review struct {
	ID         string    `json:"id" bson:"_id"`
	OwnerID    string    `json:"ownerId" bson:"ownerId"`
	VehicleID  string    `json:"vehicleId,omitempty" bson:"vehicleId,omitempty"`
	ReviewerID string    `json:"reviewerId,omitempty" bson:"userId,omitempty"`
	BookingID  string    `json:"bookingId,omitempty" bson:"bookingId,omitempty"`
	Rating     float64   `json:"rating" bson:"rating"`
	Text       string    `json:"reviewText" bson:"reviewText"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

// ReviewChange is one event on the owner's review stream
type ReviewChange struct {
	Type   BookingChangeType
	Review Review
}
