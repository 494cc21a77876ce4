package usecase

import (
	"context"
	"fmt"
	"strings"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/internal/domain/repository"
	"rental-notify-service/pkg/clock"
	"rental-notify-service/pkg/logger"
)

// NotificationFilter selects notifications by read state
type NotificationFilter string

const (
	FilterAll    NotificationFilter = "all"
	FilterUnread NotificationFilter = "unread"
	FilterRead   NotificationFilter = "read"
)

// ParseNotificationFilter defaults empty input to FilterAll
func ParseNotificationFilter(s string) (NotificationFilter, error) {
	switch f := NotificationFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterUnread, FilterRead:
		return f, nil
	default:
		return "", fmt.Errorf("unknown notification filter %q", s)
	}
}

// NotificationCounts are the tab counters of an owner's notification list
type NotificationCounts struct {
	All    int `json:"all"`
	Unread int `json:"unread"`
	Read   int `json:"read"`
}

// NotificationList is a filtered notification list with counts over the unfiltered one
type NotificationList struct {
	Notifications []*entity.Notification `json:"notifications"`
	Counts        NotificationCounts     `json:"counts"`
}

// ReadStateManager mutates read state and deletes notifications on behalf of an owner
type ReadStateManager struct {
	notificationRepo repository.NotificationRepository
	feed             *Feed
	clock            clock.Clock
	logger           logger.Logger
}

// NewReadStateManager creates a read-state manager. feed may be nil.
func NewReadStateManager(notificationRepo repository.NotificationRepository, feed *Feed, clk clock.Clock, logger logger.Logger) *ReadStateManager {
	return &ReadStateManager{
		notificationRepo: notificationRepo,
		feed:             feed,
		clock:            clk,
		logger:           logger,
	}
}

// MarkRead marks every id read in one atomic write and returns how many
// distinct ids it covered
func (m *ReadStateManager) MarkRead(ctx context.Context, ownerID string, ids []string) (int, error) {
	ids, err := m.authorize(ctx, ownerID, ids, true)
	if err != nil {
		return 0, err
	}

	now := m.clock.Now()
	if err := m.notificationRepo.UpdateReadState(ctx, ids, entity.ReadState{Read: true, ReadAt: &now, UpdatedAt: now}); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// MarkUnread marks every id unread and clears readAt in one atomic write
func (m *ReadStateManager) MarkUnread(ctx context.Context, ownerID string, ids []string) (int, error) {
	ids, err := m.authorize(ctx, ownerID, ids, true)
	if err != nil {
		return 0, err
	}

	if err := m.notificationRepo.UpdateReadState(ctx, ids, entity.ReadState{Read: false, UpdatedAt: m.clock.Now()}); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// MarkAllRead marks the owner's unread notifications read and returns how many.
// The unread set comes from the live feed when the owner has one; notifications
// deleted since it was loaded are skipped.
func (m *ReadStateManager) MarkAllRead(ctx context.Context, ownerID string) (int, error) {
	notifications, err := m.current(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	var unread []string
	for _, n := range notifications {
		if !n.Read {
			unread = append(unread, n.ID)
		}
	}
	if len(unread) == 0 {
		return 0, nil
	}

	now := m.clock.Now()
	marked, err := m.notificationRepo.MarkOwnerRead(ctx, ownerID, unread, entity.ReadState{Read: true, ReadAt: &now, UpdatedAt: now})
	if err != nil {
		return 0, err
	}

	m.logger.Info("Marked all notifications read", "ownerID", ownerID, "count", marked)
	return int(marked), nil
}

// DeleteMany deletes every id in one atomic write. Ids already gone are ignored.
func (m *ReadStateManager) DeleteMany(ctx context.Context, ownerID string, ids []string) (int64, error) {
	ids, err := m.authorize(ctx, ownerID, ids, false)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := m.notificationRepo.DeleteMany(ctx, ids)
	if err != nil {
		return 0, err
	}

	m.logger.Info("Notifications deleted", "ownerID", ownerID, "count", deleted)
	return deleted, nil
}

// List returns the owner's notifications, newest first, narrowed by filter and a
// case-insensitive search over title, message and vehicle info
func (m *ReadStateManager) List(ctx context.Context, ownerID string, filter NotificationFilter, search string) (*NotificationList, error) {
	notifications, err := m.current(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	search = strings.ToLower(strings.TrimSpace(search))
	list := &NotificationList{Notifications: []*entity.Notification{}}

	for _, n := range notifications {
		list.Counts.All++
		if n.Read {
			list.Counts.Read++
		} else {
			list.Counts.Unread++
		}

		switch filter {
		case FilterUnread:
			if n.Read {
				continue
			}
		case FilterRead:
			if !n.Read {
				continue
			}
		}

		if search != "" && !matchesSearch(n, search) {
			continue
		}
		list.Notifications = append(list.Notifications, n)
	}

	return list, nil
}

func (m *ReadStateManager) current(ctx context.Context, ownerID string) ([]*entity.Notification, error) {
	if m.feed != nil {
		if snapshot, ok := m.feed.Snapshot(ownerID); ok {
			return snapshot, nil
		}
	}

	notifications, err := m.notificationRepo.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	return notifications, nil
}

// authorize collapses duplicate ids and checks each one belongs to ownerID.
// With requireAll set, ids that do not exist fail with ErrNotFound; otherwise
// they are dropped.
func (m *ReadStateManager) authorize(ctx context.Context, ownerID string, ids []string, requireAll bool) ([]string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, entity.ErrEmptyIDs
	}

	found, err := m.notificationRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}

	owned := make([]string, 0, len(found))
	for _, n := range found {
		if n.RecipientID != ownerID {
			m.logger.Warn("Notification does not belong to owner", "ownerID", ownerID, "notificationID", n.ID)
			return nil, fmt.Errorf("notification %s: %w", n.ID, entity.ErrForbidden)
		}
		owned = append(owned, n.ID)
	}

	if requireAll && len(owned) != len(ids) {
		return nil, fmt.Errorf("%d of %d notifications missing: %w", len(ids)-len(owned), len(ids), entity.ErrNotFound)
	}

	return owned, nil
}

func matchesSearch(n *entity.Notification, search string) bool {
	return strings.Contains(strings.ToLower(n.Title), search) ||
		strings.Contains(strings.ToLower(n.Message), search) ||
		strings.Contains(strings.ToLower(n.VehicleInfo), search)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
