// Package catalog holds particle specifications: the named connections and
// slot requirements a particle declares, and a lookup-by-name catalog used by
// planning strategies.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/smalls/arcs/pkg/types"
)

// ErrNotFound is returned when no particle specification has the requested name.
var ErrNotFound = errors.New("particle spec not found")

// ParticleSpec describes a particle available for composition.
type ParticleSpec struct {
	// Name is the unique particle name.
	Name string `json:"name"`

	// Description is a human-readable summary.
	Description string `json:"description,omitempty"`

	// Verbs are the actions this particle can satisfy.
	Verbs []string `json:"verbs,omitempty"`

	// Connections are the named view connections, in declaration order.
	Connections []ConnectionSpec `json:"connections,omitempty"`

	// Slots are the named slots the particle consumes.
	Slots []SlotSpec `json:"slots,omitempty"`
}

// ConnectionSpec is a declared particle connection.
type ConnectionSpec struct {
	Name      string          `json:"name"`
	Direction types.Direction `json:"direction"`
	Type      *types.Type     `json:"type"`
	Tags      []string        `json:"tags,omitempty"`

	// Optional connections may stay unbound in a resolved recipe.
	Optional bool `json:"optional,omitempty"`
}

// SlotSpec is a consumed slot declaration.
type SlotSpec struct {
	Name       string             `json:"name"`
	Required   bool               `json:"required,omitempty"`
	FormFactor string             `json:"formFactor,omitempty"`
	Provides   []ProvidedSlotSpec `json:"provides,omitempty"`
}

// ProvidedSlotSpec is a slot exposed to other particles while consuming a parent slot.
type ProvidedSlotSpec struct {
	Name       string `json:"name"`
	FormFactor string `json:"formFactor,omitempty"`

	// Views names the particle connections whose views constrain what renders here.
	Views []string `json:"views,omitempty"`
}

// Connection returns the declared connection with the given name.
func (p *ParticleSpec) Connection(name string) (*ConnectionSpec, bool) {
	for i := range p.Connections {
		if p.Connections[i].Name == name {
			return &p.Connections[i], true
		}
	}
	return nil, false
}

// Slot returns the declared consumed slot with the given name.
func (p *ParticleSpec) Slot(name string) (*SlotSpec, bool) {
	for i := range p.Slots {
		if p.Slots[i].Name == name {
			return &p.Slots[i], true
		}
	}
	return nil, false
}

// Validate checks internal consistency of the specification.
func (p *ParticleSpec) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("particle spec has no name")
	}
	seen := make(map[string]bool)
	for _, c := range p.Connections {
		if c.Name == "" {
			return fmt.Errorf("particle %s: connection has no name", p.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("particle %s: duplicate connection %s", p.Name, c.Name)
		}
		seen[c.Name] = true
		if err := c.Direction.Validate(); err != nil {
			return fmt.Errorf("particle %s: connection %s: %w", p.Name, c.Name, err)
		}
	}
	slots := make(map[string]bool)
	for _, s := range p.Slots {
		if s.Name == "" {
			return fmt.Errorf("particle %s: slot has no name", p.Name)
		}
		if slots[s.Name] {
			return fmt.Errorf("particle %s: duplicate slot %s", p.Name, s.Name)
		}
		slots[s.Name] = true
		for _, ps := range s.Provides {
			for _, v := range ps.Views {
				if !seen[v] {
					return fmt.Errorf("particle %s: provided slot %s references unknown connection %s", p.Name, ps.Name, v)
				}
			}
		}
	}
	return nil
}

// Catalog looks up particle specifications by name.
type Catalog interface {
	// Lookup returns the spec with the given name, or ErrNotFound.
	Lookup(ctx context.Context, name string) (*ParticleSpec, error)

	// List returns every spec sorted by name.
	List(ctx context.Context) ([]*ParticleSpec, error)
}

// Memory is an in-memory Catalog safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	specs map[string]*ParticleSpec
}

// NewMemory creates a catalog holding the given specs.
func NewMemory(specs ...*ParticleSpec) (*Memory, error) {
	m := &Memory{specs: make(map[string]*ParticleSpec)}
	for _, s := range specs {
		if err := m.Register(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register validates and adds a spec, replacing any spec with the same name.
func (m *Memory) Register(spec *ParticleSpec) error {
	if spec == nil {
		return fmt.Errorf("particle spec is nil")
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.specs[spec.Name] = spec
	return nil
}

// Lookup implements Catalog.
func (m *Memory) Lookup(_ context.Context, name string) (*ParticleSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	spec, ok := m.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return spec, nil
}

// List implements Catalog.
func (m *Memory) List(_ context.Context) ([]*ParticleSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ParticleSpec, 0, len(m.specs))
	for _, s := range m.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
