// Package executor runs a plan tier by tier: tiers strictly in order,
// invocations within a tier concurrently, every invocation driven to a
// terminal outcome. Failures are data, never control flow.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
	registryx "github.com/omniretail/orchestrator/agent/registry"
)

type Config struct {
	// DefaultDeadline applies to any capability without a catalog deadline.
	DefaultDeadline time.Duration `envconfig:"DEFAULT_DEADLINE" split_words:"true" default:"3s"`
	// TierBudget caps a whole tier; zero means the sum of member deadlines.
	TierBudget time.Duration `envconfig:"TIER_BUDGET" split_words:"true" default:"0s"`
}

// Result is the aggregate outcome of executing one plan.
type Result struct {
	Results []contractx.CapabilityResult
	// Unresolvable lists capabilities dropped at binding time because a
	// required entity was never produced by earlier tiers.
	Unresolvable []string
	// Entities is the working entity set after all tiers merged.
	Entities entityx.Set
	// PartialFailure is set when any invocation errored or timed out, or a
	// dependent capability had to be dropped.
	PartialFailure bool
}

type Executor struct {
	registry *registryx.Registry
	cfg      Config
}

func New(reg *registryx.Registry, cfg Config) *Executor {
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = 3 * time.Second
	}
	return &Executor{registry: reg, cfg: cfg}
}

// Execute runs the plan against the given entity set. The set is cloned;
// the caller's copy is never mutated. Tier N's parameter binding observes
// the fully-merged entity set from tier N-1.
func (e *Executor) Execute(ctx context.Context, plan contractx.Plan, set entityx.Set) Result {
	res := Result{Entities: set.Clone()}
	res.Unresolvable = append(res.Unresolvable, plan.Unresolvable...)
	if len(plan.Unresolvable) > 0 {
		res.PartialFailure = true
	}

	for tierIdx, tier := range plan.Tiers {
		ready, dropped := e.rebind(tier, res.Entities)
		if len(dropped) > 0 {
			res.Unresolvable = append(res.Unresolvable, dropped...)
			res.PartialFailure = true
		}
		if len(ready) == 0 {
			continue
		}

		outcomes := e.runTier(ctx, tierIdx, ready)
		res.Results = append(res.Results, outcomes...)

		// Merge produced entities from ok results, in invocation order so
		// first-writer-within-tier wins unless the canonical source shows up.
		for _, outcome := range outcomes {
			switch outcome.Status {
			case contractx.StatusError, contractx.StatusTimeout:
				res.PartialFailure = true
			}
			if outcome.Status != contractx.StatusOK {
				continue
			}
			e.merge(res.Entities, outcome)
		}
	}

	return res
}

// rebind binds each invocation's parameters against the current entity set,
// dropping invocations whose required kinds are still missing.
func (e *Executor) rebind(tier []contractx.Invocation, set entityx.Set) ([]contractx.Invocation, []string) {
	ready := make([]contractx.Invocation, 0, len(tier))
	var dropped []string

	for _, inv := range tier {
		d, ok := e.registry.Describe(inv.Capability)
		if !ok {
			dropped = append(dropped, inv.Capability)
			continue
		}

		params := entityx.NewSet()
		missing := false
		for _, kind := range d.Required {
			v, present := set.Get(kind)
			if !present {
				missing = true
				break
			}
			params.Put(v)
		}
		if missing {
			log.Info().
				Str("capability", inv.Capability).
				Msg("required entity never resolved, dropping invocation")
			dropped = append(dropped, inv.Capability)
			continue
		}
		for _, kind := range d.Optional {
			if v, present := set.Get(kind); present {
				params.Put(v)
			}
		}

		ready = append(ready, contractx.Invocation{Capability: inv.Capability, Params: params})
	}

	return ready, dropped
}

// runTier starts every invocation concurrently and joins on the tier
// completing or its budget elapsing. Siblings are never cancelled by one
// another's failure; a cancelled invocation is recorded as timeout.
func (e *Executor) runTier(ctx context.Context, tierIdx int, tier []contractx.Invocation) []contractx.CapabilityResult {
	budget := e.cfg.TierBudget
	if budget <= 0 {
		for _, inv := range tier {
			budget += e.deadlineFor(inv.Capability)
		}
	}
	tierCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	results := make([]contractx.CapabilityResult, len(tier))
	var wg sync.WaitGroup

	for i, inv := range tier {
		wg.Add(1)
		go func(slot int, inv contractx.Invocation) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("capability", inv.Capability).
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("capability invocation panicked")
					results[slot] = contractx.CapabilityResult{
						Capability: inv.Capability,
						Status:     contractx.StatusError,
						Err:        fmt.Sprintf("invocation panic: %v", r),
					}
				}
			}()
			results[slot] = e.invoke(tierCtx, inv)
		}(i, inv)
	}
	wg.Wait()

	log.Debug().
		Int("tier", tierIdx).
		Int("invocations", len(tier)).
		Msg("tier complete")

	return results
}

func (e *Executor) invoke(ctx context.Context, inv contractx.Invocation) contractx.CapabilityResult {
	impl, ok := e.registry.Get(inv.Capability)
	if !ok {
		return contractx.CapabilityResult{
			Capability: inv.Capability,
			Status:     contractx.StatusError,
			Err:        contractx.ErrUnknownCapability.Error(),
		}
	}

	deadline := e.deadlineFor(inv.Capability)
	invCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	out := impl.Invoke(invCtx, inv.Params)
	out.Capability = inv.Capability
	out.Elapsed = time.Since(start)

	// Deadline overruns surface as timeout regardless of what the
	// capability reported; timeout is treated as not-found for planning but
	// stays distinct in provenance.
	if invCtx.Err() != nil && out.Status != contractx.StatusOK {
		out.Status = contractx.StatusTimeout
		if out.Err == "" {
			out.Err = invCtx.Err().Error()
		}
	}

	log.Debug().
		Str("capability", inv.Capability).
		Str("status", string(out.Status)).
		Dur("elapsed", out.Elapsed).
		Msg("capability invocation finished")

	return out
}

func (e *Executor) deadlineFor(name string) time.Duration {
	if d, ok := e.registry.Describe(name); ok && time.Duration(d.Deadline) > 0 {
		return time.Duration(d.Deadline)
	}
	return e.cfg.DefaultDeadline
}

// merge folds one result's produced entities into the working set. Conflicts
// resolve canonical-source first, then first writer within the tier; the
// conflict is logged, never raised.
func (e *Executor) merge(set entityx.Set, outcome contractx.CapabilityResult) {
	for kind, v := range outcome.ProducedEntities {
		v.Kind = kind
		v.Provenance = entityx.ResolvedByCapability
		v.Source = outcome.Capability

		existing, present := set.Get(kind)
		if present && existing.Provenance == entityx.ResolvedByCapability && existing.Source != outcome.Capability {
			canonical, ok := e.registry.CanonicalSource(kind)
			if !ok || canonical != outcome.Capability {
				log.Warn().
					Str("kind", string(kind)).
					Str("kept", existing.Source).
					Str("ignored", outcome.Capability).
					Msg("conflicting produced entity, first writer kept")
				continue
			}
			log.Warn().
				Str("kind", string(kind)).
				Str("kept", outcome.Capability).
				Str("ignored", existing.Source).
				Msg("conflicting produced entity, canonical source wins")
		}
		set[kind] = v
	}
}
