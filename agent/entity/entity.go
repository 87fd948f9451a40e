// Package entity defines the typed entity model shared by every component of
// the orchestration engine: entity kinds, resolved values with provenance, and
// the per-turn EntitySet with its override rules.
package entity

import "sort"

// Kind is a semantic category of extractable value.
type Kind string

const (
	KindOrderID        Kind = "order_id"
	KindProductName    Kind = "product_name"
	KindTicketID       Kind = "ticket_id"
	KindUserID         Kind = "user_id"
	KindTrackingNumber Kind = "tracking_number"
	KindAmount         Kind = "amount"
	KindDateRange      Kind = "date_range"
)

// Provenance records where a resolved value came from.
type Provenance string

const (
	FromText             Provenance = "from_text"
	FromContext          Provenance = "from_context"
	ResolvedByCapability Provenance = "resolved_by_capability"
)

// Value is a resolved entity value with its provenance. Source carries the
// capability name when Provenance is ResolvedByCapability.
type Value struct {
	Kind       Kind       `json:"kind"`
	Value      string     `json:"value"`
	Provenance Provenance `json:"provenance"`
	Source     string     `json:"source,omitempty"`
}

// Set maps entity kind to its single resolved value for a turn.
// At most one value per kind; a from_text value always beats a from_context
// value of the same kind.
type Set map[Kind]Value

func NewSet() Set {
	return make(Set, 8)
}

// Put inserts v, applying the override rule: an existing from_text value is
// only replaced by another from_text or a capability-resolved value; a
// from_context value never displaces anything already present.
func (s Set) Put(v Value) {
	existing, ok := s[v.Kind]
	if !ok {
		s[v.Kind] = v
		return
	}
	if v.Provenance == FromContext {
		return
	}
	if existing.Provenance == FromText && v.Provenance == FromContext {
		return
	}
	s[v.Kind] = v
}

func (s Set) Get(k Kind) (Value, bool) {
	v, ok := s[k]
	return v, ok
}

func (s Set) Has(k Kind) bool {
	_, ok := s[k]
	return ok
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Kinds returns the kinds present, sorted for deterministic logging and tests.
func (s Set) Kinds() []Kind {
	kinds := make([]Kind, 0, len(s))
	for k := range s {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
