package repository

import (
	"context"
	"fmt"
	"time"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBookingRepository implements BookingRepository
type MongoBookingRepository struct {
	collection *mongo.Collection
}

// NewMongoBookingRepository creates a new booking repository
func NewMongoBookingRepository(db *mongo.Database) repository.BookingRepository {
	collection := db.Collection("bookings")

	ctx := context.Background()

	// Owner listing and change stream scoping
	ownerIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "ownerId", Value: 1},
			{Key: "createdAt", Value: -1},
		},
	}

	// Overdue sweep candidates
	overdueIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "dropoffAt", Value: 1},
		},
	}

	collection.Indexes().CreateMany(ctx, []mongo.IndexModel{ownerIndex, overdueIndex})

	return &MongoBookingRepository{
		collection: collection,
	}
}

// FindByID finds a booking by id
func (r *MongoBookingRepository) FindByID(ctx context.Context, id string) (*entity.Booking, error) {
	var booking entity.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

// FindByIDs finds multiple bookings keyed by id (batch operation)
func (r *MongoBookingRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*entity.Booking, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return make(map[string]*entity.Booking), nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	result := make(map[string]*entity.Booking, len(ids))
	for cursor.Next(ctx) {
		var booking entity.Booking
		if err := cursor.Decode(&booking); err != nil {
			return nil, fmt.Errorf("decode booking: %w", err)
		}
		result[booking.ID] = &booking
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// FindByOwner lists an owner's bookings, newest first
func (r *MongoBookingRepository) FindByOwner(ctx context.Context, ownerID string) ([]*entity.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var bookings []*entity.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// FindOverdueCandidates finds Pending/Accepted bookings whose dropoff is at or before cutoff
func (r *MongoBookingRepository) FindOverdueCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Booking, error) {
	filter := bson.M{
		"status": bson.M{"$in": bson.A{entity.BookingPending, entity.BookingAccepted}},
		"dropoffAt": bson.M{
			"$lte": cutoff,
			"$gt":  time.Time{},
		},
	}

	opts := options.Find().SetSort(bson.D{{Key: "dropoffAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var bookings []*entity.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// UpdateStatus sets the status if it still equals from
func (r *MongoBookingRepository) UpdateStatus(ctx context.Context, id string, from, to entity.BookingStatus, updatedAt time.Time) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{
			"status":    to,
			"updatedAt": updatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	if result.MatchedCount > 0 {
		return nil
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check booking: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("booking %s: %w", id, entity.ErrNotFound)
	}
	return fmt.Errorf("booking %s is no longer %s: %w", id, from, entity.ErrConflict)
}

type bookingChangeEvent struct {
	OperationType string          `bson:"operationType"`
	FullDocument  *entity.Booking `bson:"fullDocument"`
}

// Watch opens a change stream over the owner's bookings
func (r *MongoBookingRepository) Watch(ctx context.Context, ownerID string) (repository.ChangeStream[entity.BookingChange], error) {
	stream, err := r.collection.Watch(ctx, ownerPipeline("ownerId", ownerID), updateLookup())
	if err != nil {
		return nil, fmt.Errorf("failed to watch bookings: %w", err)
	}

	return &mongoChangeStream[entity.BookingChange]{
		stream: stream,
		decode: func(cs *mongo.ChangeStream) (entity.BookingChange, bool, error) {
			var event bookingChangeEvent
			if err := cs.Decode(&event); err != nil {
				return entity.BookingChange{}, false, fmt.Errorf("decode booking change: %w", err)
			}
			if event.FullDocument == nil {
				return entity.BookingChange{}, false, nil
			}
			return entity.BookingChange{
				Type:    changeType(event.OperationType),
				Booking: *event.FullDocument,
			}, true, nil
		},
	}, nil
}
