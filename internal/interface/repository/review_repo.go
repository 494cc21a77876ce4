package repository

import (
	"context"
	"fmt"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoReviewRepository implements ReviewRepository
type MongoReviewRepository struct {
	collection *mongo.Collection
}

// NewMongoReviewRepository creates a new review repository
func NewMongoReviewRepository(db *mongo.Database) repository.ReviewRepository {
	collection := db.Collection("reviews")

	collection.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{
			{Key: "ownerId", Value: 1},
			{Key: "timestamp", Value: -1},
		},
	})

	return &MongoReviewRepository{
		collection: collection,
	}
}

// FindByOwner lists the owner's most recent reviews
func (r *MongoReviewRepository) FindByOwner(ctx context.Context, ownerID string, limit int) ([]*entity.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reviews []*entity.Review
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

type reviewChangeEvent struct {
	OperationType string         `bson:"operationType"`
	FullDocument  *entity.Review `bson:"fullDocument"`
}

// Watch opens a change stream over the owner's reviews
func (r *MongoReviewRepository) Watch(ctx context.Context, ownerID string) (repository.ChangeStream[entity.ReviewChange], error) {
	stream, err := r.collection.Watch(ctx, ownerPipeline("ownerId", ownerID), updateLookup())
	if err != nil {
		return nil, fmt.Errorf("failed to watch reviews: %w", err)
	}

	return &mongoChangeStream[entity.ReviewChange]{
		stream: stream,
		decode: func(cs *mongo.ChangeStream) (entity.ReviewChange, bool, error) {
			var event reviewChangeEvent
			if err := cs.Decode(&event); err != nil {
				return entity.ReviewChange{}, false, fmt.Errorf("decode review change: %w", err)
			}
			if event.FullDocument == nil {
				return entity.ReviewChange{}, false, nil
			}
			return entity.ReviewChange{
				Type:   changeType(event.OperationType),
				Review: *event.FullDocument,
			}, true, nil
		},
	}, nil
}
