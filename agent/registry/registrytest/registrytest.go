// Package registrytest builds registries backed by the real embedded catalog
// with stub or caller-supplied capability implementations, for use in tests of
// the planner, executor, and orchestrator.
package registrytest

import (
	"context"
	"testing"
	"time"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
	registryx "github.com/omniretail/orchestrator/agent/registry"
)

// Fake is a scriptable capability implementation. Metadata comes from the
// catalog descriptor; behavior comes from InvokeFunc.
type Fake struct {
	Desc       registryx.Descriptor
	InvokeFunc func(ctx context.Context, params entityx.Set) contractx.CapabilityResult
}

func (f *Fake) Name() string                  { return f.Desc.Name }
func (f *Fake) Tier() int                     { return f.Desc.Tier }
func (f *Fake) Deadline() time.Duration       { return time.Duration(f.Desc.Deadline) }
func (f *Fake) RequiredKinds() []entityx.Kind { return f.Desc.Required }
func (f *Fake) ProducedKinds() []entityx.Kind { return f.Desc.Produced }

func (f *Fake) Invoke(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
	if f.InvokeFunc == nil {
		return contractx.CapabilityResult{Capability: f.Desc.Name, Status: contractx.StatusOK}
	}
	return f.InvokeFunc(ctx, params)
}

// NewRegistry builds a registry over the embedded catalog. Each override
// replaces the default no-op stub for the capability of the same name; a
// *Fake override's Desc also replaces the catalog descriptor, so tests can
// reshape tiers and deadlines.
func NewRegistry(t *testing.T, overrides ...contractx.Capability) *registryx.Registry {
	t.Helper()

	descs, err := registryx.LoadDescriptors()
	if err != nil {
		t.Fatalf("load capability catalog: %v", err)
	}

	byName := make(map[string]contractx.Capability, len(overrides))
	for _, c := range overrides {
		byName[c.Name()] = c
	}

	impls := make([]contractx.Capability, 0, len(descs))
	for i, d := range descs {
		impl, ok := byName[d.Name]
		if !ok {
			impls = append(impls, &Fake{Desc: d})
			continue
		}
		if fake, isFake := impl.(*Fake); isFake {
			descs[i] = fake.Desc
		}
		impls = append(impls, impl)
	}

	reg, err := registryx.New(descs, impls...)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

// FakeFor returns a Fake bound to the named catalog descriptor.
func FakeFor(t *testing.T, name string, invoke func(ctx context.Context, params entityx.Set) contractx.CapabilityResult) *Fake {
	t.Helper()

	descs, err := registryx.LoadDescriptors()
	if err != nil {
		t.Fatalf("load capability catalog: %v", err)
	}
	d, ok := registryx.FindDescriptor(descs, name)
	if !ok {
		t.Fatalf("capability %q not in catalog", name)
	}
	return &Fake{Desc: d, InvokeFunc: invoke}
}
