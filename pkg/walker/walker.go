// Package walker applies rewrite rules to recipes.
//
// A rule inspects each element of a frozen recipe and returns the transforms
// it proposes for that element. The walker materializes derived recipes by
// copying the parent, applying one transform per element and normalizing the
// copy. In Permuted mode every combination of proposals is explored; in
// Greedy mode only the first proposal of each element is applied.
package walker

import (
	"context"
	"fmt"

	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/strategizer"
)

// Mode selects how proposals of different elements are combined.
type Mode int

const (
	// Permuted derives one recipe per element of the cartesian product of
	// the proposals of every element that proposed something.
	Permuted Mode = iota

	// Greedy derives one recipe per parent, applying the first proposal of
	// every element.
	Greedy
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Permuted:
		return "permuted"
	case Greedy:
		return "greedy"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// step applies one proposal to a copy.
type step func(b *recipe.Builder) float64

// Walker derives candidates from parent individuals.
type Walker struct {
	mode Mode
}

// New creates a walker in the given mode.
func New(mode Mode) *Walker {
	return &Walker{mode: mode}
}

// Mode returns the traversal mode.
func (w *Walker) Mode() Mode { return w.mode }

// Walk applies rule to every parent and returns the derived individuals,
// attributed to strategy. Each descendant's score is its parent's score plus
// the deltas of the applied transforms. Descendants that fail validity checks
// are returned too. A positive limit caps the number of descendants.
func (w *Walker) Walk(ctx context.Context, rule Rule, strategy string, parents []*strategizer.Individual, limit int) ([]*strategizer.Individual, error) {
	if len(Kinds(rule)) == 0 {
		return nil, fmt.Errorf("rule %T handles no element kind", rule)
	}

	var out []*strategizer.Individual
	full := func() bool { return limit > 0 && len(out) >= limit }

	for _, parent := range parents {
		if full() {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dims, err := collect(ctx, rule, parent.Recipe)
		if err != nil {
			return nil, err
		}
		if len(dims) == 0 {
			continue
		}

		if w.mode == Greedy {
			choice := make([]int, len(dims))
			out = append(out, derive(parent, strategy, dims, choice))
			continue
		}

		// Odometer over the proposal indices of every dimension.
		choice := make([]int, len(dims))
		for {
			out = append(out, derive(parent, strategy, dims, choice))
			if full() {
				break
			}
			d := len(dims) - 1
			for ; d >= 0; d-- {
				choice[d]++
				if choice[d] < len(dims[d]) {
					break
				}
				choice[d] = 0
			}
			if d < 0 {
				break
			}
		}
	}
	return out, nil
}

func derive(parent *strategizer.Individual, strategy string, dims [][]step, choice []int) *strategizer.Individual {
	b := parent.Recipe.Copy()
	score := parent.Score
	for d, i := range choice {
		score += dims[d][i](b)
	}
	return strategizer.NewIndividual(b.Normalize(), score, parent, strategy)
}

// collect calls every callback the rule implements, in element order, and
// returns one dimension per element that proposed at least one transform.
func collect(ctx context.Context, rule Rule, r *recipe.Recipe) ([][]step, error) {
	var dims [][]step
	add := func(steps []step) {
		if len(steps) > 0 {
			dims = append(dims, steps)
		}
	}

	if rr, ok := rule.(RecipeRule); ok {
		ts, err := rr.OnRecipe(ctx, r)
		if err != nil {
			return nil, err
		}
		steps := make([]step, len(ts))
		for i, t := range ts {
			steps[i] = step(t)
		}
		add(steps)
	}

	if vr, ok := rule.(ViewRule); ok {
		for _, v := range r.Views() {
			ts, err := vr.OnView(ctx, r, v)
			if err != nil {
				return nil, err
			}
			add(bind(ts, func(b *recipe.Builder) recipe.View { return b.ViewOf(v) }))
		}
	}

	pr, hasParticle := rule.(ParticleRule)
	cr, hasConnection := rule.(ConnectionRule)
	if hasParticle || hasConnection {
		for _, p := range r.Particles() {
			if hasParticle {
				ts, err := pr.OnParticle(ctx, r, p)
				if err != nil {
					return nil, err
				}
				add(bind(ts, func(b *recipe.Builder) recipe.Particle { return b.ParticleOf(p) }))
			}
			if hasConnection {
				for _, c := range p.Connections() {
					ts, err := cr.OnConnection(ctx, r, c)
					if err != nil {
						return nil, err
					}
					add(bind(ts, func(b *recipe.Builder) recipe.Connection { return b.ConnectionOf(c) }))
				}
			}
		}
	}

	if sr, ok := rule.(SlotRule); ok {
		for _, s := range r.Slots() {
			ts, err := sr.OnSlot(ctx, r, s)
			if err != nil {
				return nil, err
			}
			add(bind(ts, func(b *recipe.Builder) recipe.Slot { return b.SlotOf(s) }))
		}
	}

	if scr, ok := rule.(SlotConnectionRule); ok {
		for _, sc := range r.SlotConnections() {
			ts, err := scr.OnSlotConnection(ctx, r, sc)
			if err != nil {
				return nil, err
			}
			add(bind(ts, func(b *recipe.Builder) recipe.SlotConnection { return b.SlotConnectionOf(sc) }))
		}
	}

	return dims, nil
}

func bind[H any, T ~func(*recipe.Builder, H) float64](ts []T, at func(*recipe.Builder) H) []step {
	steps := make([]step, len(ts))
	for i, t := range ts {
		steps[i] = func(b *recipe.Builder) float64 { return t(b, at(b)) }
	}
	return steps
}
