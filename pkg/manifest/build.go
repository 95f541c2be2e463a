package manifest

import (
	"fmt"
	"strings"

	"github.com/smalls/arcs/pkg/catalog"
	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/stores"
	"github.com/smalls/arcs/pkg/types"
)

// Catalog returns the declared particles as an in-memory catalog.
func (m *Manifest) Catalog() (*catalog.Memory, error) {
	specs := make([]*catalog.ParticleSpec, 0, len(m.Particles))
	for _, p := range m.Particles {
		spec, err := p.Spec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return catalog.NewMemory(specs...)
}

// Spec converts the declaration to a particle specification.
func (p Particle) Spec() (*catalog.ParticleSpec, error) {
	spec := &catalog.ParticleSpec{
		Name:        p.Name,
		Description: p.Description,
		Verbs:       p.Verbs,
	}
	for _, c := range p.Connections {
		t, err := types.Parse(c.Type)
		if err != nil {
			return nil, fmt.Errorf("particle %s: connection %s: %w", p.Name, c.Name, err)
		}
		spec.Connections = append(spec.Connections, catalog.ConnectionSpec{
			Name:      c.Name,
			Direction: types.Direction(c.Direction),
			Type:      t,
			Tags:      c.Tags,
			Optional:  c.Optional,
		})
	}
	for _, s := range p.Slots {
		slot := catalog.SlotSpec{Name: s.Name, Required: s.Required, FormFactor: s.FormFactor}
		for _, ps := range s.Provides {
			slot.Provides = append(slot.Provides, catalog.ProvidedSlotSpec{
				Name:       ps.Name,
				FormFactor: ps.FormFactor,
				Views:      ps.Views,
			})
		}
		spec.Slots = append(spec.Slots, slot)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// StoreList returns the declared stores.
func (m *Manifest) StoreList() ([]stores.Store, error) {
	out := make([]stores.Store, 0, len(m.Stores))
	for _, s := range m.Stores {
		t, err := types.Parse(s.Type)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", s.ID, err)
		}
		out = append(out, stores.Store{
			ID:          s.ID,
			Name:        s.Name,
			Type:        t,
			Tags:        s.Tags,
			Description: s.Description,
			Remote:      s.Remote,
		})
	}
	return out, nil
}

// RemoteSlotList returns the declared remote slots.
func (m *Manifest) RemoteSlotList() []stores.RemoteSlot {
	out := make([]stores.RemoteSlot, len(m.RemoteSlots))
	for i, s := range m.RemoteSlots {
		out[i] = stores.RemoteSlot{ID: s.ID, Name: s.Name, FormFactor: s.FormFactor}
	}
	return out
}

// Registry returns an in-memory registry holding the declared stores and
// remote slots.
func (m *Manifest) Registry() (*stores.Memory, error) {
	list, err := m.StoreList()
	if err != nil {
		return nil, err
	}
	reg, err := stores.NewMemory(list...)
	if err != nil {
		return nil, err
	}
	for _, s := range m.RemoteSlotList() {
		if err := reg.PutRemoteSlot(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Seeds builds the declared recipes.
func (m *Manifest) Seeds() ([]*recipe.Recipe, error) {
	out := make([]*recipe.Recipe, 0, len(m.Recipes))
	for _, r := range m.Recipes {
		built, err := r.Build()
		if err != nil {
			return nil, fmt.Errorf("recipe %s: %w", r.Name, err)
		}
		out = append(out, built)
	}
	return out, nil
}

// Build converts the declaration to a normalized recipe. Particles are bound
// by name only; specifications are resolved during planning.
func (r Recipe) Build() (*recipe.Recipe, error) {
	b := recipe.NewBuilder(r.Name)

	views := make(map[string]recipe.View, len(r.Views))
	for _, v := range r.Views {
		h := b.AddView()
		b.SetViewLocalName(h, v.Name)
		if v.Fate != "" {
			fate := recipe.Fate(v.Fate)
			if err := fate.Validate(); err != nil {
				return nil, fmt.Errorf("view %s: %w", v.Name, err)
			}
			b.SetViewFate(h, fate)
		}
		if v.Type != "" {
			t, err := types.Parse(v.Type)
			if err != nil {
				return nil, fmt.Errorf("view %s: %w", v.Name, err)
			}
			b.SetViewType(h, t)
		}
		if v.ID != "" {
			b.SetViewID(h, v.ID)
		}
		if len(v.Tags) > 0 {
			b.AddViewTags(h, v.Tags...)
		}
		views[v.Name] = h
	}

	slots := make(map[string]recipe.Slot, len(r.Slots))
	for _, s := range r.Slots {
		h := b.AddSlot(s.Name)
		if s.ID != "" {
			b.SetSlotID(h, s.ID)
		}
		if s.FormFactor != "" {
			b.SetSlotFormFactor(h, s.FormFactor)
		}
		slots[s.Name] = h
	}

	for _, p := range r.Particles {
		h := b.AddParticle(p.Name)
		for _, c := range p.Connections {
			conn := b.AddConnection(h, c.Name)
			if c.Direction != "" {
				b.SetConnectionDirection(conn, types.Direction(c.Direction))
			}
			if c.View == "" {
				continue
			}
			v, ok := views[c.View]
			if !ok {
				return nil, fmt.Errorf("particle %s: connection %s: unknown view %s", p.Name, c.Name, c.View)
			}
			b.ConnectView(conn, v)
		}
		for _, c := range p.Consumes {
			sc := b.AddSlotConnection(h, c.Name)
			if c.Slot == "" {
				continue
			}
			s, ok := slots[c.Slot]
			if !ok {
				return nil, fmt.Errorf("particle %s: consumed slot %s: unknown slot %s", p.Name, c.Name, c.Slot)
			}
			b.ConnectToSlot(sc, s)
		}
	}

	for _, text := range r.Constraints {
		c, err := ParseConstraint(text)
		if err != nil {
			return nil, err
		}
		b.AddConstraint(c)
	}

	return b.Normalize(), nil
}

// ParseConstraint parses "Particle.connection -> Particle.connection".
func ParseConstraint(text string) (recipe.Constraint, error) {
	from, to, ok := strings.Cut(text, "->")
	if !ok {
		return recipe.Constraint{}, fmt.Errorf("constraint %q: missing ->", text)
	}
	fromEnd, err := parseEndpoint(from)
	if err != nil {
		return recipe.Constraint{}, fmt.Errorf("constraint %q: %w", text, err)
	}
	toEnd, err := parseEndpoint(to)
	if err != nil {
		return recipe.Constraint{}, fmt.Errorf("constraint %q: %w", text, err)
	}
	if fromEnd == toEnd {
		return recipe.Constraint{}, fmt.Errorf("constraint %q connects %s to itself", text, fromEnd)
	}
	return recipe.Constraint{From: fromEnd, To: toEnd}, nil
}

func parseEndpoint(s string) (recipe.Endpoint, error) {
	particle, conn, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || particle == "" || conn == "" {
		return recipe.Endpoint{}, fmt.Errorf("endpoint %q is not Particle.connection", strings.TrimSpace(s))
	}
	return recipe.Endpoint{Particle: particle, Connection: conn}, nil
}

// checkReferences reports references the schema cannot express: views,
// slots and provided-slot connections that do not exist, and type literals
// that do not parse.
func (m *Manifest) checkReferences() []Problem {
	var problems []Problem
	add := func(path, format string, args ...interface{}) {
		problems = append(problems, Problem{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	for i, p := range m.Particles {
		if _, err := p.Spec(); err != nil {
			add(fmt.Sprintf("particles.%d", i), "%v", err)
		}
	}
	for i, s := range m.Stores {
		if _, err := types.Parse(s.Type); err != nil {
			add(fmt.Sprintf("stores.%d.type", i), "%v", err)
		}
	}

	for i, r := range m.Recipes {
		base := fmt.Sprintf("recipes.%d", i)
		views := make(map[string]bool, len(r.Views))
		for _, v := range r.Views {
			views[v.Name] = true
		}
		slots := make(map[string]bool, len(r.Slots))
		for _, s := range r.Slots {
			slots[s.Name] = true
		}
		for j, p := range r.Particles {
			for k, c := range p.Connections {
				if c.View != "" && !views[c.View] {
					add(fmt.Sprintf("%s.particles.%d.connections.%d", base, j, k), "unknown view %s", c.View)
				}
			}
			for k, c := range p.Consumes {
				if c.Slot != "" && !slots[c.Slot] {
					add(fmt.Sprintf("%s.particles.%d.consumes.%d", base, j, k), "unknown slot %s", c.Slot)
				}
			}
		}
		for j, text := range r.Constraints {
			if _, err := ParseConstraint(text); err != nil {
				add(fmt.Sprintf("%s.constraints.%d", base, j), "%v", err)
			}
		}
	}
	return problems
}
