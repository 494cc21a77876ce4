package repository

import (
	"context"

	"rental-notify-service/internal/domain/entity"
)

// ReviewRepository defines the interface for review reads
type ReviewRepository interface {
	FindByOwner(ctx context.Context, ownerID string, limit int) ([]*entity.Review, error)
	Watch(ctx context.Context, ownerID string) (ChangeStream[entity.ReviewChange], error)
}
