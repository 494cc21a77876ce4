package usecase

import (
	"context"
	"sync"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/internal/domain/repository"
)

// FeedPublisher pushes a message to an owner's live clients
type FeedPublisher interface {
	Send(ownerID string, message interface{})
}

// FeedMessageType tags feed messages sent to live clients
const FeedMessageType = "notifications"

// FeedMessage carries an owner's full current notification list
type FeedMessage struct {
	Type          string                 `json:"type"`
	OwnerID       string                 `json:"ownerId"`
	Notifications []*entity.Notification `json:"notifications"`
	Unread        int                    `json:"unread"`
}

// Feed keeps the newest notification list of each owner with an active session
type Feed struct {
	notificationRepo repository.NotificationRepository
	publisher        FeedPublisher

	mu        sync.RWMutex
	snapshots map[string][]*entity.Notification
}

// NewFeed creates a feed. publisher may be nil.
func NewFeed(notificationRepo repository.NotificationRepository, publisher FeedPublisher) *Feed {
	return &Feed{
		notificationRepo: notificationRepo,
		publisher:        publisher,
		snapshots:        make(map[string][]*entity.Notification),
	}
}

// Reload replaces the owner's snapshot from the store and publishes it
func (f *Feed) Reload(ctx context.Context, ownerID string) error {
	notifications, err := f.notificationRepo.FindByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if notifications == nil {
		notifications = []*entity.Notification{}
	}

	f.mu.Lock()
	f.snapshots[ownerID] = notifications
	f.mu.Unlock()

	if f.publisher != nil {
		f.publisher.Send(ownerID, NewFeedMessage(ownerID, notifications))
	}
	return nil
}

// Snapshot returns the owner's last loaded list and whether one exists
func (f *Feed) Snapshot(ownerID string) ([]*entity.Notification, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	notifications, ok := f.snapshots[ownerID]
	return notifications, ok
}

// Holds reports whether the owner's snapshot contains notificationID. Without a
// snapshot every id counts, so the next change forces a load.
func (f *Feed) Holds(ownerID, notificationID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	notifications, ok := f.snapshots[ownerID]
	if !ok {
		return true
	}
	for _, n := range notifications {
		if n.ID == notificationID {
			return true
		}
	}
	return false
}

// Forget drops the owner's snapshot
func (f *Feed) Forget(ownerID string) {
	f.mu.Lock()
	delete(f.snapshots, ownerID)
	f.mu.Unlock()
}

// NewFeedMessage wraps an owner's list with its unread count
func NewFeedMessage(ownerID string, notifications []*entity.Notification) FeedMessage {
	return FeedMessage{
		Type:          FeedMessageType,
		OwnerID:       ownerID,
		Notifications: notifications,
		Unread:        CountUnread(notifications),
	}
}

// CountUnread counts the notifications not yet read
func CountUnread(notifications []*entity.Notification) int {
	unread := 0
	for _, n := range notifications {
		if !n.Read {
			unread++
		}
	}
	return unread
}
