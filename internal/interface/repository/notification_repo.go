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

// MongoNotificationRepository implements the NotificationRepository interface
type MongoNotificationRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoNotificationRepository creates a new MongoDB notification repository
func NewMongoNotificationRepository(db *mongo.Database) repository.NotificationRepository {
	collection := db.Collection("notifications")

	ctx := context.Background()

	// Cold-start loads filter by owner and kind
	ownerKindIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "type", Value: 1},
		},
	}

	// Live list is newest first
	ownerCreatedIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "createdAt", Value: -1},
		},
	}

	bookingIndex := mongo.IndexModel{
		Keys: bson.M{"bookingId": 1},
	}

	collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		ownerKindIndex,
		ownerCreatedIndex,
		bookingIndex,
	})

	return &MongoNotificationRepository{
		client:     db.Client(),
		collection: collection,
	}
}

// FindByOwner lists all notifications of an owner, newest first
func (r *MongoNotificationRepository) FindByOwner(ctx context.Context, ownerID string) ([]*entity.Notification, error) {
	return r.find(ctx, bson.M{"userId": ownerID})
}

// FindByOwnerAndKinds lists an owner's notifications of the given kinds
func (r *MongoNotificationRepository) FindByOwnerAndKinds(ctx context.Context, ownerID string, kinds []entity.NotificationKind) ([]*entity.Notification, error) {
	return r.find(ctx, bson.M{
		"userId": ownerID,
		"type":   bson.M{"$in": kinds},
	})
}

// FindByIDs finds notifications by id (batch operation)
func (r *MongoNotificationRepository) FindByIDs(ctx context.Context, ids []string) ([]*entity.Notification, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (r *MongoNotificationRepository) find(ctx context.Context, filter bson.M) ([]*entity.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var notifications []*entity.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// CreateIfAbsent inserts the notification only when its id is unused.
// The check and the write are a single upsert, so concurrent writers for the
// same id cannot both create it.
func (r *MongoNotificationRepository) CreateIfAbsent(ctx context.Context, n *entity.Notification) (bool, error) {
	doc, err := toInsertDoc(n)
	if err != nil {
		return false, err
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": n.ID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		// Two upserts racing on the same _id: the loser sees a duplicate key.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create notification: %w", err)
	}

	return result.UpsertedCount > 0, nil
}

// toInsertDoc encodes n without its _id, which the upsert takes from the filter
func toInsertDoc(n *entity.Notification) (bson.M, error) {
	raw, err := bson.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}
	delete(doc, "_id")
	return doc, nil
}

// UpdateReadState sets read/readAt on all ids inside one transaction
func (r *MongoNotificationRepository) UpdateReadState(ctx context.Context, ids []string, state entity.ReadState) error {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return entity.ErrEmptyIDs
	}

	_, err := r.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		result, err := r.collection.UpdateMany(sc, bson.M{"_id": bson.M{"$in": ids}}, readStateUpdate(state))
		if err != nil {
			return nil, err
		}
		if result.MatchedCount != int64(len(ids)) {
			return nil, fmt.Errorf("%d of %d notifications missing: %w",
				int64(len(ids))-result.MatchedCount, len(ids), entity.ErrNotFound)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to update read state: %w", err)
	}
	return nil
}

// MarkOwnerRead updates the owner's ids still in the opposite read state.
// Ids deleted since the caller loaded them simply do not match.
func (r *MongoNotificationRepository) MarkOwnerRead(ctx context.Context, ownerID string, ids []string, state entity.ReadState) (int64, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	modified, err := r.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		result, err := r.collection.UpdateMany(sc, ownerReadFilter(ownerID, ids, state), readStateUpdate(state))
		if err != nil {
			return nil, err
		}
		return result.ModifiedCount, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update read state: %w", err)
	}
	return modified.(int64), nil
}

func ownerReadFilter(ownerID string, ids []string, state entity.ReadState) bson.M {
	return bson.M{
		"_id":    bson.M{"$in": ids},
		"userId": ownerID,
		"read":   !state.Read,
	}
}

func readStateUpdate(state entity.ReadState) bson.M {
	return bson.M{
		"$set": bson.M{
			"read":      state.Read,
			"readAt":    state.ReadAt,
			"updatedAt": state.UpdatedAt,
		},
	}
}

// DeleteMany deletes all ids inside one transaction
func (r *MongoNotificationRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := r.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		result, err := r.collection.DeleteMany(sc, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return nil, err
		}
		return result.DeletedCount, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return deleted.(int64), nil
}

func (r *MongoNotificationRepository) withTransaction(ctx context.Context, fn func(mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	session, err := r.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	return session.WithTransaction(ctx, fn)
}

type notificationChangeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

// Watch opens a change stream over the owner's notifications. Deletes carry no
// post-image, so every delete is emitted with its id and the consumer decides
// whether it was one of the owner's.
func (r *MongoNotificationRepository) Watch(ctx context.Context, ownerID string) (repository.ChangeStream[entity.NotificationChange], error) {
	stream, err := r.collection.Watch(ctx, notificationPipeline(ownerID), updateLookup())
	if err != nil {
		return nil, fmt.Errorf("failed to watch notifications: %w", err)
	}

	return &mongoChangeStream[entity.NotificationChange]{
		stream: stream,
		decode: func(cs *mongo.ChangeStream) (entity.NotificationChange, bool, error) {
			var event notificationChangeEvent
			if err := cs.Decode(&event); err != nil {
				return entity.NotificationChange{}, false, fmt.Errorf("decode notification change: %w", err)
			}
			return entity.NotificationChange{
				Type:           changeType(event.OperationType),
				NotificationID: event.DocumentKey.ID,
			}, true, nil
		},
	}, nil
}

func notificationPipeline(ownerID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"$or": bson.A{
				bson.M{
					"operationType":       bson.M{"$in": bson.A{"insert", "update", "replace"}},
					"fullDocument.userId": ownerID,
				},
				bson.M{"operationType": "delete"},
			},
		}}},
	}
}
