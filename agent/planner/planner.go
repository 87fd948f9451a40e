// Package planner turns classifier candidates plus the turn's entity set into
// an ordered, tiered execution plan.
package planner

import (
	"sort"

	"github.com/rs/zerolog/log"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
	registryx "github.com/omniretail/orchestrator/agent/registry"
)

type Config struct {
	// ConfidenceThreshold is the minimum classifier confidence for a
	// candidate to be accepted into the plan.
	ConfidenceThreshold float64 `envconfig:"CONFIDENCE_THRESHOLD" split_words:"true" default:"0.5"`
}

type Planner struct {
	registry  *registryx.Registry
	threshold float64
}

func New(reg *registryx.Registry, cfg Config) *Planner {
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	return &Planner{registry: reg, threshold: threshold}
}

// Plan accepts candidates above the confidence threshold, force-includes any
// tier-0 capability whose output is a hard prerequisite for an accepted
// capability, binds parameters from the entity set, and orders the result
// into ascending tiers. Candidates are taken in descending confidence order
// (stable on ties), so invocation order within a tier does not depend on the
// classifier's output order.
//
// A capability whose requirements cannot be satisfied even after all earlier
// tiers run is dropped and recorded as unresolvable; that never fails the
// plan as a whole.
func (p *Planner) Plan(candidates []contractx.Candidate, set entityx.Set) contractx.Plan {
	candidates = append([]contractx.Candidate(nil), candidates...)
	SortCandidates(candidates)
	accepted := p.accept(candidates)
	accepted = p.forceIncludePrerequisites(accepted, set)

	// Kinds available per tier boundary: tier N sees the initial set plus
	// everything tiers < N can produce.
	available := availableKinds(set)

	maxTier := 0
	descs := make(map[string]registryx.Descriptor, len(accepted))
	for _, name := range accepted {
		d, ok := p.registry.Describe(name)
		if !ok {
			continue
		}
		descs[name] = d
		if d.Tier > maxTier {
			maxTier = d.Tier
		}
	}

	tiers := make([][]contractx.Invocation, maxTier+1)
	var unresolvable []string

	for tier := 0; tier <= maxTier; tier++ {
		for _, name := range accepted {
			d, ok := descs[name]
			if !ok || d.Tier != tier {
				continue
			}
			if !satisfiable(d.Required, available) {
				log.Info().
					Str("capability", name).
					Int("tier", tier).
					Msg("capability has no path to satisfy its requirements, dropping")
				unresolvable = append(unresolvable, name)
				continue
			}
			tiers[tier] = append(tiers[tier], contractx.Invocation{
				Capability: name,
				Params:     bindParams(d, set),
			})
		}
		// Whatever this tier's survivors produce is available to later tiers.
		for _, inv := range tiers[tier] {
			for _, kind := range descs[inv.Capability].Produced {
				available[kind] = struct{}{}
			}
		}
	}

	return contractx.Plan{Tiers: compact(tiers), Unresolvable: unresolvable}
}

func (p *Planner) accept(candidates []contractx.Candidate) []string {
	var accepted []string
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c.Confidence < p.threshold {
			continue
		}
		if _, ok := p.registry.Describe(c.Capability); !ok {
			log.Warn().Str("capability", c.Capability).Msg("classifier suggested unknown capability")
			continue
		}
		if _, dup := seen[c.Capability]; dup {
			continue
		}
		seen[c.Capability] = struct{}{}
		accepted = append(accepted, c.Capability)
	}
	return accepted
}

// forceIncludePrerequisites adds the canonical tier-0 producer for any
// required kind that no accepted capability can supply and the entity set
// does not already hold.
func (p *Planner) forceIncludePrerequisites(accepted []string, set entityx.Set) []string {
	producible := make(map[entityx.Kind]struct{})
	inPlan := make(map[string]struct{}, len(accepted))
	for _, name := range accepted {
		inPlan[name] = struct{}{}
		if d, ok := p.registry.Describe(name); ok {
			for _, kind := range d.Produced {
				producible[kind] = struct{}{}
			}
		}
	}

	out := accepted
	for _, name := range accepted {
		d, ok := p.registry.Describe(name)
		if !ok {
			continue
		}
		for _, kind := range d.Required {
			if set.Has(kind) {
				continue
			}
			if _, ok := producible[kind]; ok {
				continue
			}
			producer, found := p.registry.TierZeroProducer(kind)
			if !found {
				continue
			}
			if _, dup := inPlan[producer]; dup {
				continue
			}
			log.Info().
				Str("capability", name).
				Str("prerequisite", producer).
				Str("kind", string(kind)).
				Msg("force-including prerequisite capability")
			inPlan[producer] = struct{}{}
			out = append(out, producer)
			if pd, ok := p.registry.Describe(producer); ok {
				for _, produced := range pd.Produced {
					producible[produced] = struct{}{}
				}
			}
		}
	}

	// Keep acceptance order stable but canonical: tier-0 force-includes do
	// not reshuffle the originally accepted prefix.
	return out
}

func availableKinds(set entityx.Set) map[entityx.Kind]struct{} {
	out := make(map[entityx.Kind]struct{}, len(set))
	for _, kind := range set.Kinds() {
		out[kind] = struct{}{}
	}
	return out
}

func satisfiable(required []entityx.Kind, available map[entityx.Kind]struct{}) bool {
	for _, kind := range required {
		if _, ok := available[kind]; !ok {
			return false
		}
	}
	return true
}

// bindParams copies the required and optional kinds present in the entity set.
func bindParams(d registryx.Descriptor, set entityx.Set) entityx.Set {
	params := entityx.NewSet()
	for _, kind := range d.Required {
		if v, ok := set.Get(kind); ok {
			params.Put(v)
		}
	}
	for _, kind := range d.Optional {
		if v, ok := set.Get(kind); ok {
			params.Put(v)
		}
	}
	return params
}

// compact drops empty tiers while preserving relative order.
func compact(tiers [][]contractx.Invocation) [][]contractx.Invocation {
	out := make([][]contractx.Invocation, 0, len(tiers))
	for _, tier := range tiers {
		if len(tier) > 0 {
			out = append(out, tier)
		}
	}
	return out
}

// SortCandidates orders candidates by descending confidence, stable on the
// incoming order for ties. Plan applies it before acceptance.
func SortCandidates(candidates []contractx.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
}
