// Package orchestrator is the engine's front door: it owns the per-turn
// pipeline graph, serializes turns per session, and applies backpressure
// when too many turns are in flight.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
	executorx "github.com/omniretail/orchestrator/agent/executor"
	nodex "github.com/omniretail/orchestrator/agent/nodes"
	plannerx "github.com/omniretail/orchestrator/agent/planner"
	statex "github.com/omniretail/orchestrator/agent/state"
)

var (
	ErrInvalidQuery   = nodex.ErrInvalidQuery
	ErrInvalidSession = nodex.ErrInvalidSession
	ErrQueryTooLong   = nodex.ErrQueryTooLong
)

type Config struct {
	// IdleTimeout expires a session context that has not seen a turn.
	IdleTimeout time.Duration `envconfig:"IDLE_TIMEOUT" split_words:"true" default:"30m"`
	// MaxHistory bounds the per-session conversation history.
	MaxHistory int `envconfig:"MAX_HISTORY" split_words:"true" default:"20"`
	// MaxInFlight caps concurrent turns across all sessions; further turns
	// are rejected rather than queued.
	MaxInFlight int `envconfig:"MAX_IN_FLIGHT" split_words:"true" default:"256"`
}

type Orchestrator struct {
	store       statex.Store
	classifier  contractx.Classifier
	synthesizer contractx.Synthesizer
	fallback    contractx.Synthesizer
	extractor   *entityx.Extractor
	planner     *plannerx.Planner
	executor    *executorx.Executor

	graphRunner compose.Runnable[nodex.GraphInput, contractx.OrchestrationResult]

	locks    *statex.SessionLocks
	inFlight chan struct{}

	idleTimeout time.Duration
	maxHistory  int

	now   func() time.Time
	newID func() string
}

func New(
	store statex.Store,
	clf contractx.Classifier,
	primary contractx.Synthesizer,
	fallback contractx.Synthesizer,
	extractor *entityx.Extractor,
	planner *plannerx.Planner,
	exec *executorx.Executor,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if clf == nil {
		return nil, errors.New("classifier is required")
	}
	if primary == nil {
		return nil, errors.New("synthesizer is required")
	}
	if fallback == nil {
		fallback = primary
	}
	if extractor == nil {
		extractor = entityx.NewExtractor()
	}
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if exec == nil {
		return nil, errors.New("executor is required")
	}

	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 20
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 256
	}

	o := &Orchestrator{
		store:       store,
		classifier:  clf,
		synthesizer: primary,
		fallback:    fallback,
		extractor:   extractor,
		planner:     planner,
		executor:    exec,
		locks:       statex.NewSessionLocks(),
		inFlight:    make(chan struct{}, cfg.MaxInFlight),
		idleTimeout: cfg.IdleTimeout,
		maxHistory:  cfg.MaxHistory,
		now:         time.Now,
		newID:       uuid.NewString,
	}

	graphRunner, err := o.compileHandleQueryGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleQuery runs one turn end to end. Turns for the same session are
// serialized; turns for different sessions run concurrently up to the
// in-flight cap.
func (o *Orchestrator) HandleQuery(ctx context.Context, q contractx.Query) (contractx.OrchestrationResult, error) {
	in := nodex.GraphInput{
		SessionID: q.SessionID,
		UserID:    q.UserID,
		Text:      q.Text,
	}
	// Reject malformed input before consuming an in-flight slot.
	if _, err := nodex.ValidateRequest(in, o.now, o.newID); err != nil {
		return contractx.OrchestrationResult{}, err
	}

	select {
	case o.inFlight <- struct{}{}:
		defer func() { <-o.inFlight }()
	default:
		return contractx.OrchestrationResult{}, fmt.Errorf("%w: too many turns in flight", contractx.ErrSessionLimit)
	}

	release := o.locks.Acquire(q.SessionID)
	defer release()

	return o.graphRunner.Invoke(ctx, in)
}

// ResetSession drops the session context. Resetting a session that does not
// exist succeeds; reset is idempotent.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSession
	}

	release := o.locks.Acquire(sessionID)
	defer release()

	err := o.store.Delete(ctx, sessionID)
	if err != nil && !errors.Is(err, statex.ErrStateNotFound) {
		return err
	}
	return nil
}

// History returns the recorded conversation turns for a session, oldest
// first. An unknown session yields an empty history.
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]statex.Turn, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	sc, err := o.store.Load(ctx, sessionID)
	if errors.Is(err, statex.ErrStateNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return append([]statex.Turn(nil), sc.History...), nil
}
