package contract

import (
	"context"
	"time"

	entityx "github.com/omniretail/orchestrator/agent/entity"
)

// Capability is an independently-addressable unit resolving one
// domain-specific query. Implementations own their backing store and must
// never share mutable state with each other. The metadata methods report the
// capability's catalog declaration; the registry rejects implementations
// whose metadata drifts from it.
type Capability interface {
	Name() string
	RequiredKinds() []entityx.Kind
	ProducedKinds() []entityx.Kind
	Tier() int
	Deadline() time.Duration
	Invoke(ctx context.Context, params entityx.Set) CapabilityResult
}

// Classifier maps raw query text to capability candidates with confidence.
// Implementations may be rule-based or model-backed; both sit behind this
// contract so tests can substitute a deterministic one.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]Candidate, error)
}

// Synthesizer turns a bundle of structured results into one narrative answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, bundle SynthesisBundle) (string, error)
}
