// Package state holds the per-session context that carries resolved entities
// across turns, plus the persistence contract and its implementations.
package state

import (
	"errors"
	"time"

	entityx "github.com/omniretail/orchestrator/agent/entity"
)

var (
	ErrStateNotFound   = errors.New("session context not found")
	ErrNilSessionState = errors.New("session context is nil")
	ErrInvalidSession  = errors.New("session id is empty")
)

// Turn is one completed exchange kept in the session's conversation history.
type Turn struct {
	TurnID        string    `json:"turn_id"`
	Query         string    `json:"query"`
	Narrative     string    `json:"narrative"`
	AgentsInvoked []string  `json:"agents_invoked"`
	Timestamp     time.Time `json:"timestamp"`
}

// SessionContext is the long-lived per-session entity memory. Entities never
// decrease: a resolved value persists until a same-kind text-derived or
// capability-resolved value supersedes it, or the session is reset.
type SessionContext struct {
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id,omitempty"`
	Entities  entityx.Set `json:"entities"`
	History   []Turn      `json:"history,omitempty"`

	TurnCount     int       `json:"turn_count"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

func NewSessionContext(sessionID, userID string, now time.Time) *SessionContext {
	return &SessionContext{
		SessionID:     sessionID,
		UserID:        userID,
		Entities:      entityx.NewSet(),
		CreatedAt:     now.UTC(),
		LastUpdatedAt: now.UTC(),
	}
}

func (s *SessionContext) EnsureEntities() {
	if s.Entities == nil {
		s.Entities = entityx.NewSet()
	}
}

func (s *SessionContext) Touch(now time.Time) {
	s.LastUpdatedAt = now.UTC()
}

// Reconcile folds a turn's final entity set back into the stored context.
// Kinds with from_text or resolved_by_capability provenance overwrite the
// stored value; from_context kinds already equal the stored value and are
// left untouched. An identifier mentioned this turn always wins over one
// remembered from a previous turn; omission implies continuity.
func (s *SessionContext) Reconcile(final entityx.Set, now time.Time) {
	s.EnsureEntities()
	for kind, v := range final {
		if v.Provenance == entityx.FromContext {
			continue
		}
		s.Entities[kind] = v
	}
	s.TurnCount++
	s.Touch(now)
}

// RecordTurn appends to conversation history, trimming to maxHistory entries.
func (s *SessionContext) RecordTurn(turn Turn, maxHistory int) {
	s.History = append(s.History, turn)
	if maxHistory > 0 && len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
}

// IdleExpired reports whether the session passed its idle timeout at now.
func (s *SessionContext) IdleExpired(now time.Time, idleTimeout time.Duration) bool {
	if idleTimeout <= 0 {
		return false
	}
	return now.UTC().Sub(s.LastUpdatedAt) > idleTimeout
}
