package state

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps session contexts in process memory with idle expiry.
// Suitable for single-instance deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionContext
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultStoreTTL
	}
	return &MemoryStore{
		sessions: make(map[string]*SessionContext),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*SessionContext, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	m.mu.RLock()
	sc, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrStateNotFound
	}

	if sc.IdleExpired(m.now(), m.ttl) {
		m.mu.Lock()
		delete(m.sessions, sessionID)
		m.mu.Unlock()
		return nil, ErrStateNotFound
	}

	return clone(sc), nil
}

func (m *MemoryStore) Save(ctx context.Context, sc *SessionContext) error {
	if sc == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(sc.SessionID) == "" {
		return ErrInvalidSession
	}
	sc.EnsureEntities()

	m.mu.Lock()
	m.sessions[sc.SessionID] = clone(sc)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

// Sweep drops every expired session and returns how many were removed.
// Intended to run periodically from main.
func (m *MemoryStore) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, sc := range m.sessions {
		if sc.IdleExpired(now, m.ttl) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func clone(sc *SessionContext) *SessionContext {
	out := *sc
	out.Entities = sc.Entities.Clone()
	out.History = append([]Turn(nil), sc.History...)
	return &out
}
