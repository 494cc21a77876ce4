package repository

import (
	"context"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoChangeStream adapts a driver change stream to repository.ChangeStream
type mongoChangeStream[T any] struct {
	stream *mongo.ChangeStream
	decode func(*mongo.ChangeStream) (T, bool, error)
}

// Next returns the next decoded event. Events the decoder rejects are skipped.
func (s *mongoChangeStream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for s.stream.Next(ctx) {
		event, ok, err := s.decode(s.stream)
		if err != nil {
			return zero, err
		}
		if ok {
			return event, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, repository.ErrStreamClosed
}

func (s *mongoChangeStream[T]) Close(ctx context.Context) error {
	return s.stream.Close(ctx)
}

// ownerPipeline matches inserts and updates whose post-image belongs to owner
func ownerPipeline(ownerField, ownerID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.M{"$in": bson.A{"insert", "update", "replace"}}},
			{Key: "fullDocument." + ownerField, Value: ownerID},
		}}},
	}
}

func updateLookup() *options.ChangeStreamOptions {
	return options.ChangeStream().SetFullDocument(options.UpdateLookup)
}

func changeType(operationType string) entity.BookingChangeType {
	switch operationType {
	case "insert":
		return entity.ChangeAdded
	case "delete":
		return entity.ChangeRemoved
	default:
		return entity.ChangeModified
	}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
