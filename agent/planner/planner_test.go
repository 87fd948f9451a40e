package planner

import (
	"testing"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
	"github.com/omniretail/orchestrator/agent/registry/registrytest"
)

func newPlanner(t *testing.T) *Planner {
	t.Helper()
	reg := registrytest.NewRegistry(t)
	return New(reg, Config{ConfidenceThreshold: 0.5})
}

func setWith(values ...entityx.Value) entityx.Set {
	set := entityx.NewSet()
	for _, v := range values {
		set.Put(v)
	}
	return set
}

func tierNames(plan contractx.Plan) [][]string {
	out := make([][]string, len(plan.Tiers))
	for i, tier := range plan.Tiers {
		for _, inv := range tier {
			out[i] = append(out[i], inv.Capability)
		}
	}
	return out
}

func TestPlanAcceptsAboveThreshold(t *testing.T) {
	t.Parallel()

	p := newPlanner(t)
	set := setWith(entityx.Value{Kind: entityx.KindOrderID, Value: "10045", Provenance: entityx.FromText})

	plan := p.Plan([]contractx.Candidate{
		{Capability: "catalog-resolve", Confidence: 0.9},
		{Capability: "logistics-lookup", Confidence: 0.85},
		{Capability: "payments-lookup", Confidence: 0.3}, // below threshold
		{Capability: "made-up-agent", Confidence: 0.99},  // unknown, dropped
	}, set)

	got := tierNames(plan)
	if len(got) != 2 {
		t.Fatalf("tiers = %v, want 2", got)
	}
	if len(got[0]) != 1 || got[0][0] != "catalog-resolve" {
		t.Fatalf("tier 0 = %v", got[0])
	}
	if len(got[1]) != 1 || got[1][0] != "logistics-lookup" {
		t.Fatalf("tier 1 = %v", got[1])
	}
	if len(plan.Unresolvable) != 0 {
		t.Fatalf("unresolvable = %v", plan.Unresolvable)
	}
}

func TestPlanForceIncludesResolver(t *testing.T) {
	t.Parallel()

	// Tier-1 capabilities need order_id, which only the text "my gaming
	// monitor order" implies. catalog-resolve must be pulled in at tier 0.
	p := newPlanner(t)
	set := setWith(entityx.Value{Kind: entityx.KindProductName, Value: "gaming monitor", Provenance: entityx.FromText})

	plan := p.Plan([]contractx.Candidate{
		{Capability: "logistics-lookup", Confidence: 0.8},
		{Capability: "support-ticket-lookup", Confidence: 0.7},
	}, set)

	got := tierNames(plan)
	if len(got) != 2 {
		t.Fatalf("tiers = %v, want 2", got)
	}
	if len(got[0]) != 1 || got[0][0] != "catalog-resolve" {
		t.Fatalf("tier 0 = %v, want forced catalog-resolve", got[0])
	}
	if len(got[1]) != 2 || got[1][0] != "logistics-lookup" || got[1][1] != "support-ticket-lookup" {
		t.Fatalf("tier 1 = %v", got[1])
	}
}

func TestPlanNoForceIncludeWhenOrderIDKnown(t *testing.T) {
	t.Parallel()

	p := newPlanner(t)
	set := setWith(entityx.Value{Kind: entityx.KindOrderID, Value: "10045", Provenance: entityx.FromContext})

	plan := p.Plan([]contractx.Candidate{
		{Capability: "logistics-lookup", Confidence: 0.8},
	}, set)

	got := tierNames(plan)
	if len(got) != 1 || len(got[0]) != 1 || got[0][0] != "logistics-lookup" {
		t.Fatalf("plan = %v, want single logistics-lookup tier", got)
	}
}

func TestPlanUnresolvableDropped(t *testing.T) {
	t.Parallel()

	// user_id is required by payments-balance, cannot be produced by any
	// capability, and is absent from the set: the candidate is dropped and
	// recorded, the rest of the plan survives.
	p := newPlanner(t)
	set := setWith(entityx.Value{Kind: entityx.KindOrderID, Value: "10045", Provenance: entityx.FromText})

	plan := p.Plan([]contractx.Candidate{
		{Capability: "payments-balance", Confidence: 0.9},
		{Capability: "payments-lookup", Confidence: 0.8},
	}, set)

	got := tierNames(plan)
	if len(got) != 1 || len(got[0]) != 1 || got[0][0] != "payments-lookup" {
		t.Fatalf("plan = %v", got)
	}
	if len(plan.Unresolvable) != 1 || plan.Unresolvable[0] != "payments-balance" {
		t.Fatalf("unresolvable = %v", plan.Unresolvable)
	}
}

func TestPlanSingleTierParallel(t *testing.T) {
	t.Parallel()

	p := newPlanner(t)
	set := setWith(entityx.Value{Kind: entityx.KindUserID, Value: "u-883", Provenance: entityx.FromText})

	plan := p.Plan([]contractx.Candidate{
		{Capability: "payments-balance", Confidence: 0.9},
		{Capability: "catalog-recent-orders", Confidence: 0.75},
	}, set)

	got := tierNames(plan)
	if len(got) != 1 {
		t.Fatalf("tiers = %v, want a single tier", got)
	}
	if len(got[0]) != 2 || got[0][0] != "payments-balance" || got[0][1] != "catalog-recent-orders" {
		t.Fatalf("tier 0 = %v", got[0])
	}
}

func TestPlanBindsParams(t *testing.T) {
	t.Parallel()

	p := newPlanner(t)
	set := setWith(
		entityx.Value{Kind: entityx.KindOrderID, Value: "10045", Provenance: entityx.FromText},
		entityx.Value{Kind: entityx.KindUserID, Value: "u-883", Provenance: entityx.FromText},
		entityx.Value{Kind: entityx.KindDateRange, Value: "today", Provenance: entityx.FromText},
	)

	plan := p.Plan([]contractx.Candidate{
		{Capability: "payments-lookup", Confidence: 0.9},
	}, set)

	if len(plan.Tiers) != 1 || len(plan.Tiers[0]) != 1 {
		t.Fatalf("plan = %v", tierNames(plan))
	}
	params := plan.Tiers[0][0].Params
	if v, _ := params.Get(entityx.KindOrderID); v.Value != "10045" {
		t.Fatalf("order_id param = %+v", v)
	}
	if v, _ := params.Get(entityx.KindUserID); v.Value != "u-883" {
		t.Fatalf("user_id param = %+v", v)
	}
	// date_range is neither required nor optional for payments-lookup.
	if params.Has(entityx.KindDateRange) {
		t.Fatal("date_range should not be bound for payments-lookup")
	}
}

func TestPlanOrdersTierByConfidence(t *testing.T) {
	t.Parallel()

	// The classifier's output order must not leak into the plan: within a
	// tier the higher-confidence candidate is invoked first.
	p := newPlanner(t)
	set := setWith(entityx.Value{Kind: entityx.KindUserID, Value: "u-883", Provenance: entityx.FromText})

	plan := p.Plan([]contractx.Candidate{
		{Capability: "catalog-recent-orders", Confidence: 0.6},
		{Capability: "payments-balance", Confidence: 0.9},
	}, set)

	got := tierNames(plan)
	if len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("plan = %v", got)
	}
	if got[0][0] != "payments-balance" || got[0][1] != "catalog-recent-orders" {
		t.Fatalf("tier 0 = %v, want confidence order", got[0])
	}
}

func TestPlanDeduplicatesCandidates(t *testing.T) {
	t.Parallel()

	p := newPlanner(t)
	set := setWith(entityx.Value{Kind: entityx.KindOrderID, Value: "10045", Provenance: entityx.FromText})

	plan := p.Plan([]contractx.Candidate{
		{Capability: "logistics-lookup", Confidence: 0.8},
		{Capability: "logistics-lookup", Confidence: 0.95},
	}, set)

	got := tierNames(plan)
	if len(got) != 1 || len(got[0]) != 1 {
		t.Fatalf("plan = %v, want logistics-lookup once", got)
	}
}

func TestPlanEmptyCandidates(t *testing.T) {
	t.Parallel()

	p := newPlanner(t)
	plan := p.Plan(nil, entityx.NewSet())
	if len(plan.Tiers) != 0 || len(plan.Unresolvable) != 0 {
		t.Fatalf("plan = %+v, want empty", plan)
	}
}

func TestSortCandidates(t *testing.T) {
	t.Parallel()

	candidates := []contractx.Candidate{
		{Capability: "a", Confidence: 0.5},
		{Capability: "b", Confidence: 0.9},
		{Capability: "c", Confidence: 0.9},
	}
	SortCandidates(candidates)
	if candidates[0].Capability != "b" || candidates[1].Capability != "c" || candidates[2].Capability != "a" {
		t.Fatalf("sorted = %v", candidates)
	}
}
