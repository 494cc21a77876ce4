package repository

import (
	"context"

	"rental-notify-service/internal/domain/entity"
)

// NotificationRepository defines the interface for notification storage operations
type NotificationRepository interface {
	FindByOwner(ctx context.Context, ownerID string) ([]*entity.Notification, error)
	FindByOwnerAndKinds(ctx context.Context, ownerID string, kinds []entity.NotificationKind) ([]*entity.Notification, error)
	FindByIDs(ctx context.Context, ids []string) ([]*entity.Notification, error)
	// CreateIfAbsent inserts n only if no document with n.ID exists.
	// created is false when another writer got there first.
	CreateIfAbsent(ctx context.Context, n *entity.Notification) (created bool, err error)
	// UpdateReadState applies state to every id in one transaction.
	// It fails with entity.ErrNotFound, writing nothing, if any id is missing.
	UpdateReadState(ctx context.Context, ids []string, state entity.ReadState) error
	// MarkOwnerRead applies a read state to those ids that still belong to
	// ownerID and are unread, in one transaction. Missing ids are skipped.
	// It returns how many notifications changed.
	MarkOwnerRead(ctx context.Context, ownerID string, ids []string, state entity.ReadState) (int64, error)
	// DeleteMany removes every id in one transaction; missing ids are ignored.
	DeleteMany(ctx context.Context, ids []string) (int64, error)
	// Watch emits the owner's inserts and updates, and every delete in the
	// collection; a delete carries no owner, so consumers match it by id
	Watch(ctx context.Context, ownerID string) (ChangeStream[entity.NotificationChange], error)
}
