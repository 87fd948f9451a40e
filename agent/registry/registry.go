// Package registry holds the static capability catalog: which capabilities
// exist, what entity kinds they require and produce, their dependency tier,
// deadline, and which capability is the canonical source for each kind.
// The catalog is declared in an embedded YAML file, built once at startup,
// and passed explicitly to the planner.
package registry

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
)

//go:embed capabilities.yaml
var catalogRaw []byte

// Duration wraps time.Duration for YAML decoding of values like "3s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Descriptor is one capability's static declaration.
type Descriptor struct {
	Name         string         `yaml:"name"`
	Tier         int            `yaml:"tier"`
	Required     []entityx.Kind `yaml:"required"`
	Optional     []entityx.Kind `yaml:"optional"`
	Produced     []entityx.Kind `yaml:"produced"`
	Deadline     Duration       `yaml:"deadline"`
	CanonicalFor []entityx.Kind `yaml:"canonical_for"`
}

type catalogFile struct {
	Capabilities []Descriptor `yaml:"capabilities"`
}

// LoadDescriptors parses the embedded capability catalog.
func LoadDescriptors() ([]Descriptor, error) {
	var file catalogFile
	if err := yaml.Unmarshal(catalogRaw, &file); err != nil {
		return nil, fmt.Errorf("parse capability catalog: %w", err)
	}
	if len(file.Capabilities) == 0 {
		return nil, fmt.Errorf("capability catalog is empty")
	}

	seen := make(map[string]struct{}, len(file.Capabilities))
	for _, d := range file.Capabilities {
		if d.Name == "" {
			return nil, fmt.Errorf("capability with empty name in catalog")
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("duplicate capability %q in catalog", d.Name)
		}
		seen[d.Name] = struct{}{}
		if d.Tier < 0 {
			return nil, fmt.Errorf("capability %q has negative tier", d.Name)
		}
	}
	return file.Capabilities, nil
}

// Descriptor lookup by name.
func FindDescriptor(descs []Descriptor, name string) (Descriptor, bool) {
	for _, d := range descs {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Registry is the read-only capability catalog built at startup.
type Registry struct {
	names     []string
	caps      map[string]contractx.Capability
	descs     map[string]Descriptor
	canonical map[entityx.Kind]string
}

// New builds the registry from the declared descriptors and their
// implementations. Every descriptor must have a matching implementation
// whose self-reported metadata agrees with the catalog declaration.
func New(descs []Descriptor, caps ...contractx.Capability) (*Registry, error) {
	byName := make(map[string]contractx.Capability, len(caps))
	for _, c := range caps {
		if c == nil {
			continue
		}
		byName[c.Name()] = c
	}

	r := &Registry{
		caps:      make(map[string]contractx.Capability, len(descs)),
		descs:     make(map[string]Descriptor, len(descs)),
		canonical: make(map[entityx.Kind]string),
	}

	for _, d := range descs {
		impl, ok := byName[d.Name]
		if !ok {
			return nil, fmt.Errorf("%w: no implementation for %q", contractx.ErrUnknownCapability, d.Name)
		}
		if err := checkMetadata(d, impl); err != nil {
			return nil, err
		}
		r.names = append(r.names, d.Name)
		r.caps[d.Name] = impl
		r.descs[d.Name] = d
		for _, kind := range d.CanonicalFor {
			if prev, taken := r.canonical[kind]; taken {
				return nil, fmt.Errorf("kind %q has two canonical sources: %s and %s", kind, prev, d.Name)
			}
			r.canonical[kind] = d.Name
		}
	}

	return r, nil
}

// checkMetadata rejects an implementation whose self-reported metadata has
// drifted from its catalog declaration.
func checkMetadata(d Descriptor, impl contractx.Capability) error {
	if impl.Tier() != d.Tier {
		return fmt.Errorf("capability %q: implementation tier %d does not match catalog tier %d", d.Name, impl.Tier(), d.Tier)
	}
	if impl.Deadline() != time.Duration(d.Deadline) {
		return fmt.Errorf("capability %q: implementation deadline %v does not match catalog deadline %v", d.Name, impl.Deadline(), time.Duration(d.Deadline))
	}
	if !sameKinds(impl.RequiredKinds(), d.Required) {
		return fmt.Errorf("capability %q: implementation required kinds %v do not match catalog %v", d.Name, impl.RequiredKinds(), d.Required)
	}
	if !sameKinds(impl.ProducedKinds(), d.Produced) {
		return fmt.Errorf("capability %q: implementation produced kinds %v do not match catalog %v", d.Name, impl.ProducedKinds(), d.Produced)
	}
	return nil
}

func sameKinds(a, b []entityx.Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (r *Registry) Get(name string) (contractx.Capability, bool) {
	c, ok := r.caps[name]
	return c, ok
}

func (r *Registry) Describe(name string) (Descriptor, bool) {
	d, ok := r.descs[name]
	return d, ok
}

// Names returns capability names in catalog declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// CanonicalSource returns the configured canonical producer for a kind.
func (r *Registry) CanonicalSource(kind entityx.Kind) (string, bool) {
	name, ok := r.canonical[kind]
	return name, ok
}

// TierZeroProducer finds a tier-0 capability producing the given kind,
// preferring the canonical source.
func (r *Registry) TierZeroProducer(kind entityx.Kind) (string, bool) {
	if name, ok := r.canonical[kind]; ok {
		if d := r.descs[name]; d.Tier == 0 {
			return name, true
		}
	}
	for _, name := range r.names {
		d := r.descs[name]
		if d.Tier != 0 {
			continue
		}
		for _, produced := range d.Produced {
			if produced == kind {
				return name, true
			}
		}
	}
	return "", false
}
