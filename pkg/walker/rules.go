package walker

import (
	"context"

	"github.com/smalls/arcs/pkg/recipe"
)

// Transforms edit the copy of a recipe and return a score delta. The handle
// passed to a transform is the copy's counterpart of the element the rule
// was called with.
type (
	RecipeTransform         func(b *recipe.Builder) float64
	ViewTransform           func(b *recipe.Builder, v recipe.View) float64
	ParticleTransform       func(b *recipe.Builder, p recipe.Particle) float64
	ConnectionTransform     func(b *recipe.Builder, c recipe.Connection) float64
	SlotTransform           func(b *recipe.Builder, s recipe.Slot) float64
	SlotConnectionTransform func(b *recipe.Builder, sc recipe.SlotConnection) float64
)

// Rule is any value implementing at least one of the element rule
// interfaces below. The walker calls every callback the rule implements.
type Rule interface{}

// RecipeRule is called once per recipe.
type RecipeRule interface {
	OnRecipe(ctx context.Context, r *recipe.Recipe) ([]RecipeTransform, error)
}

// ViewRule is called for every view.
type ViewRule interface {
	OnView(ctx context.Context, r *recipe.Recipe, v recipe.View) ([]ViewTransform, error)
}

// ParticleRule is called for every particle.
type ParticleRule interface {
	OnParticle(ctx context.Context, r *recipe.Recipe, p recipe.Particle) ([]ParticleTransform, error)
}

// ConnectionRule is called for every connection of every particle.
type ConnectionRule interface {
	OnConnection(ctx context.Context, r *recipe.Recipe, c recipe.Connection) ([]ConnectionTransform, error)
}

// SlotRule is called for every slot.
type SlotRule interface {
	OnSlot(ctx context.Context, r *recipe.Recipe, s recipe.Slot) ([]SlotTransform, error)
}

// SlotConnectionRule is called for every slot connection of every particle.
type SlotConnectionRule interface {
	OnSlotConnection(ctx context.Context, r *recipe.Recipe, sc recipe.SlotConnection) ([]SlotConnectionTransform, error)
}

// Kind names the element kinds a rule can handle.
type Kind string

const (
	KindRecipe         Kind = "recipe"
	KindView           Kind = "view"
	KindParticle       Kind = "particle"
	KindConnection     Kind = "connection"
	KindSlot           Kind = "slot"
	KindSlotConnection Kind = "slot_connection"
)

// Kinds reports which element kinds a rule handles.
func Kinds(rule Rule) []Kind {
	var kinds []Kind
	if _, ok := rule.(RecipeRule); ok {
		kinds = append(kinds, KindRecipe)
	}
	if _, ok := rule.(ViewRule); ok {
		kinds = append(kinds, KindView)
	}
	if _, ok := rule.(ParticleRule); ok {
		kinds = append(kinds, KindParticle)
	}
	if _, ok := rule.(ConnectionRule); ok {
		kinds = append(kinds, KindConnection)
	}
	if _, ok := rule.(SlotRule); ok {
		kinds = append(kinds, KindSlot)
	}
	if _, ok := rule.(SlotConnectionRule); ok {
		kinds = append(kinds, KindSlotConnection)
	}
	return kinds
}
