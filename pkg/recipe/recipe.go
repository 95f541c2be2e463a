// Package recipe models compositions of particles, views and slots.
//
// A recipe is edited through a Builder and frozen by Builder.Normalize into a
// Recipe, which has no mutators. Recipe.Copy returns a fresh Builder for the
// next rewrite. Elements live in a per-recipe arena and refer to each other by
// index, so handles such as View and Connection are small values that stay
// valid across Copy: the element at index i of a copy corresponds to the
// element at index i of its source.
package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sync"
)

// Recipe is a normalized, immutable recipe.
type Recipe struct {
	g        *graph
	problems []string

	once sync.Once
	text string
	hash string
}

// Name returns the recipe name.
func (r *Recipe) Name() string { return r.g.name }

// View returns the view at index i.
func (r *Recipe) View(i int) View { return View{g: r.g, idx: i} }

// Views returns all views in canonical order.
func (r *Recipe) Views() []View { return viewsOf(r.g) }

// Particle returns the particle at index i.
func (r *Recipe) Particle(i int) Particle { return Particle{g: r.g, idx: i} }

// Particles returns all particles in canonical order.
func (r *Recipe) Particles() []Particle { return particlesOf(r.g) }

// FindParticle returns the first particle with the given name.
func (r *Recipe) FindParticle(name string) (Particle, bool) { return findParticle(r.g, name) }

// Slot returns the slot at index i.
func (r *Recipe) Slot(i int) Slot { return Slot{g: r.g, idx: i} }

// Slots returns all slots in canonical order.
func (r *Recipe) Slots() []Slot { return slotsOf(r.g) }

// SlotConnections returns every particle's slot connections in canonical order.
func (r *Recipe) SlotConnections() []SlotConnection {
	var out []SlotConnection
	for _, p := range r.Particles() {
		out = append(out, p.SlotConnections()...)
	}
	return out
}

// Constraints returns the pending constraints.
func (r *Recipe) Constraints() []Constraint { return slices.Clone(r.g.constraints) }

// Valid reports whether every view and slot connection passed its local
// validity check when the recipe was normalized.
func (r *Recipe) Valid() bool { return len(r.problems) == 0 }

// Problems lists the validity failures found at normalization.
func (r *Recipe) Problems() []string { return slices.Clone(r.problems) }

// IsResolved reports whether the recipe is valid, has no pending constraints,
// and every view, particle and slot connection is resolved.
func (r *Recipe) IsResolved() bool {
	if !r.Valid() || len(r.g.constraints) > 0 {
		return false
	}
	for _, v := range r.Views() {
		if !v.IsResolved() {
			return false
		}
	}
	for _, p := range r.Particles() {
		if !p.IsResolved() {
			return false
		}
		for _, sc := range p.SlotConnections() {
			if !sc.IsResolved() {
				return false
			}
		}
	}
	return true
}

// Copy returns a Builder holding a deep copy of the recipe.
func (r *Recipe) Copy() *Builder {
	return &Builder{g: r.g.clone()}
}

// String returns the canonical textual rendering.
func (r *Recipe) String() string {
	return "recipe " + r.g.name + "\n" + r.body()
}

// Hash returns the canonical hash: the hex SHA-256 of the rendering without
// the recipe name. Structurally identical recipes share a hash.
func (r *Recipe) Hash() string {
	r.body()
	return r.hash
}

func (r *Recipe) body() string {
	r.once.Do(func() {
		r.text = render(r.g)
		sum := sha256.Sum256([]byte(r.text))
		r.hash = hex.EncodeToString(sum[:])
	})
	return r.text
}
