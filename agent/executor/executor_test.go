package executor

import (
	"context"
	"testing"
	"time"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
	registryx "github.com/omniretail/orchestrator/agent/registry"
	"github.com/omniretail/orchestrator/agent/registry/registrytest"
)

func planOf(tiers ...[]string) contractx.Plan {
	plan := contractx.Plan{}
	for _, names := range tiers {
		tier := make([]contractx.Invocation, 0, len(names))
		for _, name := range names {
			tier = append(tier, contractx.Invocation{Capability: name, Params: entityx.NewSet()})
		}
		plan.Tiers = append(plan.Tiers, tier)
	}
	return plan
}

func TestExecuteRebindsProducedEntities(t *testing.T) {
	t.Parallel()

	var logisticsParams entityx.Set
	resolve := registrytest.FakeFor(t, "catalog-resolve", func(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
		return contractx.CapabilityResult{
			Capability: "catalog-resolve",
			Status:     contractx.StatusOK,
			Payload:    []contractx.Row{{"order_id": int64(10045)}},
			ProducedEntities: entityx.Set{
				entityx.KindOrderID: {Kind: entityx.KindOrderID, Value: "10045"},
			},
		}
	})
	logistics := registrytest.FakeFor(t, "logistics-lookup", func(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
		logisticsParams = params.Clone()
		return contractx.CapabilityResult{
			Capability: "logistics-lookup",
			Status:     contractx.StatusOK,
			Payload:    []contractx.Row{{"status": "in_transit"}},
		}
	})

	reg := registrytest.NewRegistry(t, resolve, logistics)
	exec := New(reg, Config{})

	set := entityx.NewSet()
	set.Put(entityx.Value{Kind: entityx.KindProductName, Value: "gaming monitor", Provenance: entityx.FromText})

	res := exec.Execute(context.Background(), planOf(
		[]string{"catalog-resolve"},
		[]string{"logistics-lookup"},
	), set)

	if res.PartialFailure {
		t.Fatalf("unexpected partial failure: %+v", res)
	}
	if len(res.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(res.Results))
	}

	// Tier 1 must see the order id that tier 0 produced.
	v, ok := logisticsParams.Get(entityx.KindOrderID)
	if !ok || v.Value != "10045" {
		t.Fatalf("logistics order_id param = %+v", v)
	}

	merged, _ := res.Entities.Get(entityx.KindOrderID)
	if merged.Provenance != entityx.ResolvedByCapability || merged.Source != "catalog-resolve" {
		t.Fatalf("merged order_id = %+v", merged)
	}
	// Caller's set is never mutated.
	if set.Has(entityx.KindOrderID) {
		t.Fatal("input set was mutated")
	}
}

func TestExecuteDropsStillMissingDependent(t *testing.T) {
	t.Parallel()

	resolve := registrytest.FakeFor(t, "catalog-resolve", func(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
		return contractx.CapabilityResult{Capability: "catalog-resolve", Status: contractx.StatusNotFound}
	})

	reg := registrytest.NewRegistry(t, resolve)
	exec := New(reg, Config{})

	res := exec.Execute(context.Background(), planOf(
		[]string{"catalog-resolve"},
		[]string{"logistics-lookup"},
	), entityx.NewSet())

	if !res.PartialFailure {
		t.Fatal("expected partial failure when the dependent tier is dropped")
	}
	if len(res.Unresolvable) != 1 || res.Unresolvable[0] != "logistics-lookup" {
		t.Fatalf("unresolvable = %v", res.Unresolvable)
	}
	if len(res.Results) != 1 || res.Results[0].Status != contractx.StatusNotFound {
		t.Fatalf("results = %+v", res.Results)
	}
}

func TestExecuteSiblingFailureIsTolerated(t *testing.T) {
	t.Parallel()

	balance := registrytest.FakeFor(t, "payments-balance", func(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
		return contractx.CapabilityResult{
			Capability: "payments-balance",
			Status:     contractx.StatusError,
			Err:        "connection refused",
		}
	})
	recent := registrytest.FakeFor(t, "catalog-recent-orders", func(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
		return contractx.CapabilityResult{
			Capability: "catalog-recent-orders",
			Status:     contractx.StatusOK,
			Payload:    []contractx.Row{{"order_id": int64(188)}},
		}
	})

	reg := registrytest.NewRegistry(t, balance, recent)
	exec := New(reg, Config{})

	set := entityx.NewSet()
	set.Put(entityx.Value{Kind: entityx.KindUserID, Value: "u-883", Provenance: entityx.FromText})

	res := exec.Execute(context.Background(), planOf([]string{"payments-balance", "catalog-recent-orders"}), set)

	if !res.PartialFailure {
		t.Fatal("expected partial failure")
	}
	if len(res.Results) != 2 {
		t.Fatalf("results = %d, want both siblings recorded", len(res.Results))
	}
	byName := map[string]contractx.Status{}
	for _, r := range res.Results {
		byName[r.Capability] = r.Status
	}
	if byName["payments-balance"] != contractx.StatusError {
		t.Fatalf("payments-balance status = %v", byName["payments-balance"])
	}
	if byName["catalog-recent-orders"] != contractx.StatusOK {
		t.Fatalf("catalog-recent-orders status = %v", byName["catalog-recent-orders"])
	}
}

func TestExecuteDeadlineOverrunIsTimeout(t *testing.T) {
	t.Parallel()

	slow := registrytest.FakeFor(t, "catalog-resolve", func(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
		<-ctx.Done()
		return contractx.CapabilityResult{Capability: "catalog-resolve", Status: contractx.StatusError}
	})
	slow.Desc.Deadline = registryx.Duration(20 * time.Millisecond)

	reg := registrytest.NewRegistry(t, slow)
	exec := New(reg, Config{})

	res := exec.Execute(context.Background(), planOf([]string{"catalog-resolve"}), entityx.NewSet())

	if !res.PartialFailure {
		t.Fatal("expected partial failure")
	}
	if len(res.Results) != 1 || res.Results[0].Status != contractx.StatusTimeout {
		t.Fatalf("results = %+v, want timeout", res.Results)
	}
	if res.Results[0].Err == "" {
		t.Fatal("timeout result should carry an error message")
	}
}

func TestExecutePanicBecomesError(t *testing.T) {
	t.Parallel()

	boom := registrytest.FakeFor(t, "catalog-resolve", func(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
		panic("store exploded")
	})

	reg := registrytest.NewRegistry(t, boom)
	exec := New(reg, Config{})

	res := exec.Execute(context.Background(), planOf([]string{"catalog-resolve"}), entityx.NewSet())

	if len(res.Results) != 1 || res.Results[0].Status != contractx.StatusError {
		t.Fatalf("results = %+v, want error from panic", res.Results)
	}
	if !res.PartialFailure {
		t.Fatal("expected partial failure")
	}
}

func TestExecuteCanonicalSourceWinsMerge(t *testing.T) {
	t.Parallel()

	// support-ticket-lookup fabricates an order_id; catalog-resolve is the
	// canonical source and must win even when it merges second.
	ticket := registrytest.FakeFor(t, "support-ticket-lookup", func(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
		return contractx.CapabilityResult{
			Capability: "support-ticket-lookup",
			Status:     contractx.StatusOK,
			Payload:    []contractx.Row{{"ticket_id": "T-1"}},
			ProducedEntities: entityx.Set{
				entityx.KindOrderID: {Kind: entityx.KindOrderID, Value: "99999"},
			},
		}
	})
	ticket.Desc.Tier = 0
	ticket.Desc.Required = nil

	resolve := registrytest.FakeFor(t, "catalog-resolve", func(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
		return contractx.CapabilityResult{
			Capability: "catalog-resolve",
			Status:     contractx.StatusOK,
			Payload:    []contractx.Row{{"order_id": int64(10045)}},
			ProducedEntities: entityx.Set{
				entityx.KindOrderID: {Kind: entityx.KindOrderID, Value: "10045"},
			},
		}
	})

	reg := registrytest.NewRegistry(t, ticket, resolve)
	exec := New(reg, Config{})

	res := exec.Execute(context.Background(), contractx.Plan{
		Tiers: [][]contractx.Invocation{{
			{Capability: "support-ticket-lookup", Params: entityx.NewSet()},
			{Capability: "catalog-resolve", Params: entityx.NewSet()},
		}},
	}, entityx.NewSet())

	v, ok := res.Entities.Get(entityx.KindOrderID)
	if !ok || v.Value != "10045" || v.Source != "catalog-resolve" {
		t.Fatalf("merged order_id = %+v, want canonical catalog-resolve value", v)
	}
}

func TestExecutePlanUnresolvableCarriesOver(t *testing.T) {
	t.Parallel()

	reg := registrytest.NewRegistry(t)
	exec := New(reg, Config{DefaultDeadline: time.Second})

	res := exec.Execute(context.Background(), contractx.Plan{Unresolvable: []string{"payments-balance"}}, entityx.NewSet())

	if !res.PartialFailure {
		t.Fatal("planner-dropped capabilities must flag partial failure")
	}
	if len(res.Unresolvable) != 1 || res.Unresolvable[0] != "payments-balance" {
		t.Fatalf("unresolvable = %v", res.Unresolvable)
	}
}
