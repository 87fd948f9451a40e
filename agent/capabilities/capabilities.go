// Package capabilities holds the pieces shared by every capability
// implementation: descriptor-backed metadata and result constructors.
// Each concrete capability lives in its own subpackage and owns its
// backing store; nothing mutable is shared between them.
package capabilities

import (
	"time"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
	registryx "github.com/omniretail/orchestrator/agent/registry"
)

// Base satisfies the metadata half of the capability contract from the
// static catalog descriptor, so implementations only write Invoke.
type Base struct {
	desc registryx.Descriptor
}

func NewBase(desc registryx.Descriptor) Base {
	return Base{desc: desc}
}

func (b Base) Name() string { return b.desc.Name }

func (b Base) Tier() int { return b.desc.Tier }

func (b Base) Deadline() time.Duration { return time.Duration(b.desc.Deadline) }

func (b Base) RequiredKinds() []entityx.Kind {
	return append([]entityx.Kind(nil), b.desc.Required...)
}

func (b Base) ProducedKinds() []entityx.Kind {
	return append([]entityx.Kind(nil), b.desc.Produced...)
}

// OK builds a successful result. An empty payload is reported as not_found
// so callers never have to distinguish "ok but empty" from "no data".
func OK(name string, rows []contractx.Row, produced entityx.Set) contractx.CapabilityResult {
	if len(rows) == 0 {
		return NotFound(name)
	}
	return contractx.CapabilityResult{
		Capability:       name,
		Status:           contractx.StatusOK,
		Payload:          rows,
		ProducedEntities: produced,
	}
}

func NotFound(name string) contractx.CapabilityResult {
	return contractx.CapabilityResult{
		Capability: name,
		Status:     contractx.StatusNotFound,
	}
}

func Failure(name string, err error) contractx.CapabilityResult {
	return contractx.CapabilityResult{
		Capability: name,
		Status:     contractx.StatusError,
		Err:        err.Error(),
	}
}

// Produced builds the entity set a capability publishes from its rows.
func Produced(capability string, values map[entityx.Kind]string) entityx.Set {
	if len(values) == 0 {
		return nil
	}
	set := entityx.NewSet()
	for kind, val := range values {
		if val == "" {
			continue
		}
		set.Put(entityx.Value{
			Kind:       kind,
			Value:      val,
			Provenance: entityx.ResolvedByCapability,
			Source:     capability,
		})
	}
	return set
}
