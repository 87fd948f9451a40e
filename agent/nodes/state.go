// Package orchestratornode holds the per-node functions of the query
// handling pipeline. Every node takes the accumulated GraphState and returns
// it (or the final output); the graph wiring lives with the orchestrator.
package orchestratornode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
	executorx "github.com/omniretail/orchestrator/agent/executor"
	statex "github.com/omniretail/orchestrator/agent/state"
)

var (
	ErrInvalidQuery   = errors.New("query text is empty")
	ErrInvalidSession = errors.New("session id is empty")
	ErrQueryTooLong   = errors.New("query text exceeds maximum length")
)

// maxQueryLen bounds accepted query text; anything longer is rejected
// before any model or store is touched.
const maxQueryLen = 4000

type GraphInput struct {
	SessionID string
	UserID    string
	Text      string
}

type GraphState struct {
	SessionID string
	UserID    string
	Text      string
	TurnID    string
	Now       time.Time

	Session    *statex.SessionContext
	Entities   entityx.Set
	Candidates []contractx.Candidate
	Plan       contractx.Plan
	Exec       executorx.Result
	Bundle     contractx.SynthesisBundle
	Narrative  string

	// NotUnderstood marks a turn whose classifier produced no candidates;
	// the pipeline degrades to a clarifying reply instead of failing.
	NotUnderstood bool
}

func ValidateRequest(in GraphInput, nowFn func() time.Time, newID func() string) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidQuery
	}
	if len(text) > maxQueryLen {
		return nil, ErrQueryTooLong
	}

	return &GraphState{
		SessionID: sessionID,
		UserID:    strings.TrimSpace(in.UserID),
		Text:      text,
		TurnID:    newID(),
		Now:       nowFn().UTC(),
	}, nil
}
