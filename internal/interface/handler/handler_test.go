package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/internal/domain/repository"
	"rental-notify-service/internal/infrastructure/router"
	"rental-notify-service/internal/interface/handler"
	"rental-notify-service/internal/usecase"
	"rental-notify-service/pkg/clock"
	"rental-notify-service/pkg/logger"
	"rental-notify-service/pkg/metrics"
	"rental-notify-service/pkg/notifier"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 1, 10, 12, 5, 0, 0, time.UTC)

// --- fakes ---

type idleStream[T any] struct{}

func (idleStream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	<-ctx.Done()
	return zero, ctx.Err()
}

func (idleStream[T]) Close(context.Context) error { return nil }

type bookingRepo struct {
	mu       sync.Mutex
	bookings map[string]*entity.Booking
}

var _ repository.BookingRepository = (*bookingRepo)(nil)

func (r *bookingRepo) FindByID(_ context.Context, id string) (*entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *bookingRepo) FindByIDs(_ context.Context, ids []string) (map[string]*entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]*entity.Booking{}
	for _, id := range ids {
		if b, ok := r.bookings[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func (r *bookingRepo) FindByOwner(_ context.Context, ownerID string) ([]*entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Booking
	for _, b := range r.bookings {
		if b.OwnerID == ownerID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *bookingRepo) FindOverdueCandidates(context.Context, time.Time, int) ([]*entity.Booking, error) {
	return nil, nil
}

func (r *bookingRepo) UpdateStatus(_ context.Context, id string, from, to entity.BookingStatus, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return entity.ErrNotFound
	}
	if b.Status != from {
		return entity.ErrConflict
	}
	b.Status = to
	b.UpdatedAt = updatedAt
	return nil
}

func (r *bookingRepo) Watch(context.Context, string) (repository.ChangeStream[entity.BookingChange], error) {
	return idleStream[entity.BookingChange]{}, nil
}

type reviewRepo struct{}

func (reviewRepo) FindByOwner(context.Context, string, int) ([]*entity.Review, error) { return nil, nil }

func (reviewRepo) Watch(context.Context, string) (repository.ChangeStream[entity.ReviewChange], error) {
	return idleStream[entity.ReviewChange]{}, nil
}

type notificationRepo struct {
	mu   sync.Mutex
	docs map[string]*entity.Notification
}

var _ repository.NotificationRepository = (*notificationRepo)(nil)

func (r *notificationRepo) FindByOwner(_ context.Context, ownerID string) ([]*entity.Notification, error) {
	return r.filter(func(n *entity.Notification) bool { return n.RecipientID == ownerID }), nil
}

func (r *notificationRepo) FindByOwnerAndKinds(_ context.Context, ownerID string, kinds []entity.NotificationKind) ([]*entity.Notification, error) {
	return r.filter(func(n *entity.Notification) bool {
		for _, k := range kinds {
			if n.RecipientID == ownerID && n.Kind == k {
				return true
			}
		}
		return false
	}), nil
}

func (r *notificationRepo) FindByIDs(_ context.Context, ids []string) ([]*entity.Notification, error) {
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return r.filter(func(n *entity.Notification) bool { return set[n.ID] }), nil
}

func (r *notificationRepo) CreateIfAbsent(_ context.Context, n *entity.Notification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[n.ID]; ok {
		return false, nil
	}
	cp := *n
	r.docs[n.ID] = &cp
	return true, nil
}

func (r *notificationRepo) UpdateReadState(_ context.Context, ids []string, state entity.ReadState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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
	return nil
}

func (r *notificationRepo) MarkOwnerRead(_ context.Context, ownerID string, ids []string, state entity.ReadState) (int64, error) {
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
	return n, nil
}

func (r *notificationRepo) DeleteMany(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.docs[id]; ok {
			delete(r.docs, id)
			n++
		}
	}
	return n, nil
}

func (r *notificationRepo) Watch(context.Context, string) (repository.ChangeStream[entity.NotificationChange], error) {
	return idleStream[entity.NotificationChange]{}, nil
}

func (r *notificationRepo) filter(match func(*entity.Notification) bool) []*entity.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Notification
	for _, n := range r.docs {
		if match(n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}

// --- harness ---

type harness struct {
	server   *httptest.Server
	bookings *bookingRepo
	notes    *notificationRepo
	sessions *usecase.SessionManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := logger.NewNop()
	clk := clock.NewFixed(now)
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("test", reg)

	bookings := &bookingRepo{bookings: map[string]*entity.Booking{
		"B1": {ID: "B1", OwnerID: "U1", Status: entity.BookingPending, DropoffAt: now.Add(24 * time.Hour), DailyPrice: 80},
		"B2": {ID: "B2", OwnerID: "U1", Status: entity.BookingAccepted, DropoffAt: time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC), HourlyRate: 50, DailyPrice: 200},
		"B3": {ID: "B3", OwnerID: "U2", Status: entity.BookingPending},
	}}
	notes := &notificationRepo{docs: map[string]*entity.Notification{
		"n1": {ID: "n1", RecipientID: "U1", Title: "New Booking Request", Kind: entity.KindNewBooking, BookingID: "B1"},
		"n2": {ID: "n2", RecipientID: "U1", Title: "Booking Update", Kind: entity.KindBookingConfirmed, BookingID: "B2"},
		"x1": {ID: "x1", RecipientID: "U2", Title: "Booking Update", Kind: entity.KindNewBooking, BookingID: "B3"},
	}}

	hub := notifier.NewHub(log)
	feed := usecase.NewFeed(notes, hub)
	reconciler := usecase.NewReconciler(bookings, reviewRepo{}, notes, clk, m, log, usecase.ReconcilerConfig{
		OrphanSweepInterval: time.Hour,
		ResubscribeDelay:    10 * time.Millisecond,
	})
	sessions := usecase.NewSessionManager(reconciler, feed, m, log)

	r := router.NewHTTPRouter(router.Handlers{
		Notifications: handler.NewNotificationHandler(usecase.NewReadStateManager(notes, feed, clk, log), sessions, log),
		Bookings:      handler.NewBookingHandler(usecase.NewBookingService(bookings, repositoryNop{}, clk, log), log),
		WS:            handler.NewWSHandler(hub, sessions, feed, nil, 30*time.Second, log),
	}, router.Options{AllowedOrigins: []string{"*"}, Gatherer: reg, RequestTimeout: 5 * time.Second})

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
		sessions.Shutdown()
	})

	return &harness{server: srv, bookings: bookings, notes: notes, sessions: sessions}
}

type repositoryNop struct{}

func (repositoryNop) Create(context.Context, *entity.BookingStatusEvent) error { return nil }

func (repositoryNop) ListByBooking(context.Context, string) ([]*entity.BookingStatusEvent, error) {
	return nil, nil
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) (int, handler.APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out handler.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// --- tests ---

func TestHealth(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListNotifications(t *testing.T) {
	h := newHarness(t)

	status, resp := h.do(t, http.MethodGet, "/api/v1/owners/U1/notifications?filter=unread", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", resp.Status)

	data := resp.Data.(map[string]interface{})
	assert.Len(t, data["notifications"], 2)
	counts := data["counts"].(map[string]interface{})
	assert.Equal(t, float64(2), counts["unread"])

	status, _ = h.do(t, http.MethodGet, "/api/v1/owners/U1/notifications?filter=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMarkReadEndpoints(t *testing.T) {
	h := newHarness(t)

	status, resp := h.do(t, http.MethodPost, "/api/v1/owners/U1/notifications/read", map[string][]string{"ids": {"n1", "n1", ""}})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, h.notes.docs["n1"].Read)
	assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["updated"])

	status, _ = h.do(t, http.MethodPost, "/api/v1/owners/U1/notifications/unread", map[string][]string{"ids": {"n1"}})
	require.Equal(t, http.StatusOK, status)
	assert.False(t, h.notes.docs["n1"].Read)

	status, resp = h.do(t, http.MethodPost, "/api/v1/owners/U1/notifications/read", map[string][]string{"ids": {}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "error", resp.Status)

	status, _ = h.do(t, http.MethodPost, "/api/v1/owners/U1/notifications/read", map[string][]string{"ids": {"x1"}})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(t, http.MethodPost, "/api/v1/owners/U1/notifications/read", map[string][]string{"ids": {"gone"}})
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = h.do(t, http.MethodPost, "/api/v1/owners/U1/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), resp.Data.(map[string]interface{})["updated"])

	status, resp = h.do(t, http.MethodPost, "/api/v1/owners/U1/notifications/delete", map[string][]string{"ids": {"n1", "n2"}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), resp.Data.(map[string]interface{})["deleted"])
}

func TestBookingEndpoints(t *testing.T) {
	h := newHarness(t)

	status, resp := h.do(t, http.MethodGet, "/api/v1/owners/U1/bookings?status=overdue", nil)
	require.Equal(t, http.StatusOK, status)
	list := resp.Data.([]interface{})
	require.Len(t, list, 1)
	b2 := list[0].(map[string]interface{})
	assert.Equal(t, "B2", b2["id"])
	assert.Equal(t, "Overdue", b2["effectiveStatus"])
	assert.Equal(t, "150", b2["overdueAmount"])

	status, _ = h.do(t, http.MethodGet, "/api/v1/owners/U1/bookings/B3", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(t, http.MethodGet, "/api/v1/owners/U1/bookings/none", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = h.do(t, http.MethodPatch, "/api/v1/owners/U1/bookings/B1/status", map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Accepted", resp.Data.(map[string]interface{})["status"])

	status, _ = h.do(t, http.MethodPatch, "/api/v1/owners/U1/bookings/B1/status", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = h.do(t, http.MethodPatch, "/api/v1/owners/U1/bookings/B1/status", map[string]string{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodGet, "/api/v1/owners/U1/bookings/B1/history", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestSessionEndpoints(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(t, http.MethodPost, "/api/v1/owners/U1/session", nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.True(t, h.sessions.Active("U1"))

	status, resp := h.do(t, http.MethodDelete, "/api/v1/owners/U1/session", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["active"])
	assert.False(t, h.sessions.Active("U1"))
}

func TestNotificationWebsocket(t *testing.T) {
	h := newHarness(t)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/v1/owners/U1/notifications/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg usecase.FeedMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, usecase.FeedMessageType, msg.Type)
	assert.Equal(t, "U1", msg.OwnerID)
	assert.Len(t, msg.Notifications, 2)
	assert.Equal(t, 2, msg.Unread)
	assert.True(t, h.sessions.Active("U1"))

	conn.Close()
	require.Eventually(t, func() bool { return !h.sessions.Active("U1") }, 2*time.Second, 10*time.Millisecond)
}
