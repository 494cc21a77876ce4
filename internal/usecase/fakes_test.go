package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/internal/domain/repository"
	"rental-notify-service/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics("test", prometheus.NewRegistry())
}

// --- change stream ---

type chanStream[T any] struct {
	events chan T
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

var _ repository.ChangeStream[entity.BookingChange] = (*chanStream[entity.BookingChange])(nil)

func newChanStream[T any]() *chanStream[T] {
	return &chanStream[T]{
		events: make(chan T, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *chanStream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case err := <-s.errs:
		return zero, err
	case e := <-s.events:
		return e, nil
	case <-s.closed:
		return zero, repository.ErrStreamClosed
	}
}

func (s *chanStream[T]) Close(context.Context) error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// --- booking repository ---

type mockBookingRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*entity.Booking, error)
	findByIDsFn      func(ctx context.Context, ids []string) (map[string]*entity.Booking, error)
	findByOwnerFn    func(ctx context.Context, ownerID string) ([]*entity.Booking, error)
	findCandidatesFn func(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Booking, error)
	updateStatusFn   func(ctx context.Context, id string, from, to entity.BookingStatus, updatedAt time.Time) error
	watchFn          func(ctx context.Context, ownerID string) (repository.ChangeStream[entity.BookingChange], error)
}

var _ repository.BookingRepository = (*mockBookingRepo)(nil)

func (m *mockBookingRepo) FindByID(ctx context.Context, id string) (*entity.Booking, error) {
	if m.findByIDFn == nil {
		return nil, nil
	}
	return m.findByIDFn(ctx, id)
}

func (m *mockBookingRepo) FindByIDs(ctx context.Context, ids []string) (map[string]*entity.Booking, error) {
	if m.findByIDsFn == nil {
		return map[string]*entity.Booking{}, nil
	}
	return m.findByIDsFn(ctx, ids)
}

func (m *mockBookingRepo) FindByOwner(ctx context.Context, ownerID string) ([]*entity.Booking, error) {
	if m.findByOwnerFn == nil {
		return nil, nil
	}
	return m.findByOwnerFn(ctx, ownerID)
}

func (m *mockBookingRepo) FindOverdueCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Booking, error) {
	if m.findCandidatesFn == nil {
		return nil, nil
	}
	return m.findCandidatesFn(ctx, cutoff, limit)
}

func (m *mockBookingRepo) UpdateStatus(ctx context.Context, id string, from, to entity.BookingStatus, updatedAt time.Time) error {
	if m.updateStatusFn == nil {
		return nil
	}
	return m.updateStatusFn(ctx, id, from, to, updatedAt)
}

func (m *mockBookingRepo) Watch(ctx context.Context, ownerID string) (repository.ChangeStream[entity.BookingChange], error) {
	if m.watchFn == nil {
		return newChanStream[entity.BookingChange](), nil
	}
	return m.watchFn(ctx, ownerID)
}

// --- review repository ---

type mockReviewRepo struct {
	findByOwnerFn func(ctx context.Context, ownerID string, limit int) ([]*entity.Review, error)
	watchFn       func(ctx context.Context, ownerID string) (repository.ChangeStream[entity.ReviewChange], error)
}

var _ repository.ReviewRepository = (*mockReviewRepo)(nil)

func (m *mockReviewRepo) FindByOwner(ctx context.Context, ownerID string, limit int) ([]*entity.Review, error) {
	if m.findByOwnerFn == nil {
		return nil, nil
	}
	return m.findByOwnerFn(ctx, ownerID, limit)
}

func (m *mockReviewRepo) Watch(ctx context.Context, ownerID string) (repository.ChangeStream[entity.ReviewChange], error) {
	if m.watchFn == nil {
		return newChanStream[entity.ReviewChange](), nil
	}
	return m.watchFn(ctx, ownerID)
}

// --- notification repository ---

// memNotificationRepo is an in-memory store with the same create-if-absent
// and all-or-nothing semantics as the Mongo one
type memNotificationRepo struct {
	mu      sync.Mutex
	docs    map[string]*entity.Notification
	creates int
	writes  int

	createErr error
	findErr   error
	watchFn   func(ctx context.Context, ownerID string) (repository.ChangeStream[entity.NotificationChange], error)
}

var _ repository.NotificationRepository = (*memNotificationRepo)(nil)

func newMemNotificationRepo(seed ...*entity.Notification) *memNotificationRepo {
	r := &memNotificationRepo{docs: make(map[string]*entity.Notification)}
	for _, n := range seed {
		r.docs[n.ID] = n
	}
	return r
}

func (r *memNotificationRepo) list(match func(*entity.Notification) bool) []*entity.Notification {
	var out []*entity.Notification
	for _, n := range r.docs {
		if match(n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *memNotificationRepo) FindByOwner(_ context.Context, ownerID string) ([]*entity.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.list(func(n *entity.Notification) bool { return n.RecipientID == ownerID }), nil
}

func (r *memNotificationRepo) FindByOwnerAndKinds(_ context.Context, ownerID string, kinds []entity.NotificationKind) ([]*entity.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.list(func(n *entity.Notification) bool {
		if n.RecipientID != ownerID {
			return false
		}
		for _, k := range kinds {
			if n.Kind == k {
				return true
			}
		}
		return false
	}), nil
}

func (r *memNotificationRepo) FindByIDs(_ context.Context, ids []string) ([]*entity.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return r.list(func(n *entity.Notification) bool { return want[n.ID] }), nil
}

func (r *memNotificationRepo) CreateIfAbsent(_ context.Context, n *entity.Notification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return false, r.createErr
	}
	if _, ok := r.docs[n.ID]; ok {
		return false, nil
	}
	cp := *n
	r.docs[n.ID] = &cp
	r.creates++
	return true, nil
}

func (r *memNotificationRepo) UpdateReadState(_ context.Context, ids []string, state entity.ReadState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(ids) == 0 {
		return entity.ErrEmptyIDs
	}
	for _, id := range ids {
		if _, ok := r.docs[id]; !ok {
			return entity.ErrNotFound
		}
	}
	for _, id := range ids {
		r.docs[id].Read = state.Read
		r.docs[id].ReadAt = state.ReadAt
		r.docs[id].UpdatedAt = state.UpdatedAt
	}
	r.writes++
	return nil
}

func (r *memNotificationRepo) MarkOwnerRead(_ context.Context, ownerID string, ids []string, state entity.ReadState) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		doc, ok := r.docs[id]
		if !ok || doc.RecipientID != ownerID || doc.Read == state.Read {
			continue
		}
		doc.Read = state.Read
		doc.ReadAt = state.ReadAt
		doc.UpdatedAt = state.UpdatedAt
		n++
	}
	r.writes++
	return n, nil
}

func (r *memNotificationRepo) DeleteMany(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.docs[id]; ok {
			delete(r.docs, id)
			n++
		}
	}
	r.writes++
	return n, nil
}

func (r *memNotificationRepo) Watch(ctx context.Context, ownerID string) (repository.ChangeStream[entity.NotificationChange], error) {
	if r.watchFn == nil {
		return newChanStream[entity.NotificationChange](), nil
	}
	return r.watchFn(ctx, ownerID)
}

func (r *memNotificationRepo) get(id string) (*entity.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.docs[id]
	if !ok {
		return nil, false
	}
	cp := *n
	return &cp, true
}

func (r *memNotificationRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

func (r *memNotificationRepo) createCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

// --- status events ---

type memStatusEventRepo struct {
	mu        sync.Mutex
	events    []*entity.BookingStatusEvent
	createErr error
}

var _ repository.StatusEventRepository = (*memStatusEventRepo)(nil)

func (r *memStatusEventRepo) Create(_ context.Context, e *entity.BookingStatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	e.ID = uint(len(r.events) + 1)
	r.events = append(r.events, e)
	return nil
}

func (r *memStatusEventRepo) ListByBooking(_ context.Context, bookingID string) ([]*entity.BookingStatusEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.BookingStatusEvent
	for _, e := range r.events {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memStatusEventRepo) all() []*entity.BookingStatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.BookingStatusEvent(nil), r.events...)
}

// --- locker ---

type stubLocker struct {
	grant    bool
	err      error
	released int
	mu       sync.Mutex
}

var _ repository.Locker = (*stubLocker)(nil)

func (l *stubLocker) TryLock(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	if !l.grant {
		return nil, nil
	}
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

// --- publisher ---

type recordingPublisher struct {
	mu   sync.Mutex
	sent []FeedMessage
}

func (p *recordingPublisher) Send(_ string, message interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg, ok := message.(FeedMessage); ok {
		p.sent = append(p.sent, msg)
	}
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func (p *recordingPublisher) last() (FeedMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		return FeedMessage{}, false
	}
	return p.sent[len(p.sent)-1], true
}

var errStoreDown = errors.New("store down")
