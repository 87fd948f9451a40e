package contract

import (
	"time"

	entityx "github.com/omniretail/orchestrator/agent/entity"
)

// Query is an accepted user query. Immutable once built.
type Query struct {
	Text       string    `json:"text"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Candidate is one classifier suggestion: a capability name with confidence.
type Candidate struct {
	Capability string  `json:"capability"`
	Confidence float64 `json:"confidence"`
}

// Status is the terminal outcome of a capability invocation.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
	StatusTimeout  Status = "timeout"
)

// Row is one structured record returned by a capability's backing store.
type Row map[string]any

// CapabilityResult is the immutable outcome of a single invocation.
type CapabilityResult struct {
	Capability       string      `json:"capability"`
	Status           Status      `json:"status"`
	Payload          []Row       `json:"payload,omitempty"`
	ProducedEntities entityx.Set `json:"produced_entities,omitempty"`
	Err              string      `json:"error,omitempty"`
	Elapsed          time.Duration `json:"elapsed,omitempty"`
}

// Invocation is one planned capability call with its bound parameters.
type Invocation struct {
	Capability string      `json:"capability"`
	Params     entityx.Set `json:"params"`
}

// Plan is an ordered list of tiers. Invocation order within a tier follows
// acceptance order and is stable.
type Plan struct {
	Tiers        [][]Invocation `json:"tiers"`
	Unresolvable []string       `json:"unresolvable,omitempty"`
}

// Empty reports whether the plan contains no invocations at all.
func (p Plan) Empty() bool {
	for _, tier := range p.Tiers {
		if len(tier) > 0 {
			return false
		}
	}
	return true
}

// Capabilities returns every planned capability name, tier by tier.
func (p Plan) Capabilities() []string {
	var names []string
	for _, tier := range p.Tiers {
		for _, inv := range tier {
			names = append(names, inv.Capability)
		}
	}
	return names
}

// SynthesisBundle is the sole input to the narrative-generation collaborator.
// Results are ordered by tier then invocation order.
type SynthesisBundle struct {
	QueryText    string             `json:"query_text"`
	Results      []CapabilityResult `json:"capability_results"`
	EntitiesUsed entityx.Set        `json:"entities_used"`
	// NoData requests an explicit "no data found" framing when every
	// invocation came back empty or failed.
	NoData bool `json:"no_data"`
}

// OrchestrationResult is the stable payload handed back to the transport
// layer after a turn completes.
type OrchestrationResult struct {
	NarrativeText    string      `json:"narrative_text"`
	AgentsInvoked    []string    `json:"agents_invoked"`
	PartialFailure   bool        `json:"partial_failure"`
	EntitiesResolved entityx.Set `json:"entities_resolved"`
	TurnID           string      `json:"turn_id"`
	Timestamp        time.Time   `json:"timestamp"`
}
