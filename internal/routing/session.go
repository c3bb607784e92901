package routing

import (
	"context"
	"log"
	"sync"

	"route-optimizer/internal/models"
)

type session struct {
	generation uint64
	cancel     context.CancelFunc
	latest     *models.OptimizedRoute
}

// SessionManager runs at most one optimization per session. A new request
// cancels the one in flight, and a result is applied only if its request is
// still the session's newest.
type SessionManager struct {
	optimizer Optimizer
	sessions  map[string]*session
	mu        sync.Mutex
}

// NewSessionManager creates a session manager around optimizer
func NewSessionManager(optimizer Optimizer) *SessionManager {
	return &SessionManager{
		optimizer: optimizer,
		sessions:  make(map[string]*session),
	}
}

// Optimize runs req for sessionID. An empty sessionID runs the request
// without session tracking. If a newer request or Clear overtakes this one,
// the result is discarded and ErrSuperseded is returned.
func (m *SessionManager) Optimize(ctx context.Context, sessionID string, req *Request) (*models.OptimizedRoute, error) {
	if sessionID == "" {
		return m.optimizer.Optimize(ctx, req)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	s := m.sessions[sessionID]
	if s == nil {
		s = &session{}
		m.sessions[sessionID] = s
	}
	if s.cancel != nil {
		log.Printf("[SESSION] Cancelling in-flight request: session=%s generation=%d", sessionID, s.generation)
		s.cancel()
	}
	s.generation++
	generation := s.generation
	s.cancel = cancel
	m.mu.Unlock()

	route, err := m.optimizer.Optimize(runCtx, req)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions[sessionID] != s || s.generation != generation {
		log.Printf("[SESSION] Discarding stale result: session=%s generation=%d", sessionID, generation)
		return nil, ErrSuperseded
	}
	s.cancel = nil
	if err != nil {
		return nil, err
	}

	s.latest = route
	log.Printf("[SESSION] Applied route: session=%s generation=%d stops=%d", sessionID, generation, len(route.Locations))
	return route, nil
}

// Clear cancels any in-flight request for sessionID and forgets its route.
// It reports whether the session existed.
func (m *SessionManager) Clear(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	if s.cancel != nil {
		s.cancel()
	}
	delete(m.sessions, sessionID)
	log.Printf("[SESSION] Cleared session: id=%s", sessionID)
	return true
}

// Latest returns the last route applied to sessionID
func (m *SessionManager) Latest(sessionID string) (*models.OptimizedRoute, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.latest == nil {
		return nil, false
	}
	return s.latest, true
}
