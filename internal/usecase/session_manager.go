package usecase

import (
	"context"
	"sync"

	"rental-notify-service/pkg/logger"
	"rental-notify-service/pkg/metrics"
)

type managedSession struct {
	session *Session
	refs    int
}

// SessionManager runs at most one reconciliation session per owner and
// reference-counts its users
type SessionManager struct {
	ctx        context.Context
	cancel     context.CancelFunc
	reconciler *Reconciler
	feed       *Feed
	metrics    *metrics.Metrics
	logger     logger.Logger

	mu       sync.Mutex
	sessions map[string]*managedSession
	closed   bool
}

// NewSessionManager creates a session manager
func NewSessionManager(reconciler *Reconciler, feed *Feed, m *metrics.Metrics, logger logger.Logger) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		ctx:        ctx,
		cancel:     cancel,
		reconciler: reconciler,
		feed:       feed,
		metrics:    m,
		logger:     logger,
		sessions:   make(map[string]*managedSession),
	}
}

// Acquire starts the owner's session if none is running and takes a reference.
// It returns false after Shutdown.
func (m *SessionManager) Acquire(ownerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	if ms, ok := m.sessions[ownerID]; ok {
		ms.refs++
		return true
	}

	m.sessions[ownerID] = &managedSession{
		session: m.reconciler.Start(m.ctx, ownerID, m.feed),
		refs:    1,
	}
	m.metrics.ActiveSessions.Inc()
	return true
}

// Release drops a reference and stops the session when none remain.
// Releasing an owner without a session is a no-op.
func (m *SessionManager) Release(ownerID string) {
	m.mu.Lock()
	ms, ok := m.sessions[ownerID]
	if !ok {
		m.mu.Unlock()
		return
	}
	ms.refs--
	if ms.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, ownerID)
	m.mu.Unlock()

	m.stop(ms.session)
}

// Active reports whether the owner has a running session
func (m *SessionManager) Active(ownerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[ownerID]
	return ok
}

// Shutdown stops every session and waits for their loops to exit
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*managedSession)
	m.mu.Unlock()

	m.cancel()

	var wg sync.WaitGroup
	for _, ms := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			m.stop(s)
		}(ms.session)
	}
	wg.Wait()

	m.logger.Info("All reconciliation sessions stopped", "count", len(sessions))
}

func (m *SessionManager) stop(s *Session) {
	s.Stop()
	if m.feed != nil && !m.Active(s.OwnerID()) {
		m.feed.Forget(s.OwnerID())
	}
	m.metrics.ActiveSessions.Dec()
}
