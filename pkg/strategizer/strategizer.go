// Package strategizer runs the population-based search over candidate recipes.
//
// Each call to Strategizer.Generate is one round: every strategy proposes
// candidates derived from the previous round, candidates are deduplicated by
// canonical hash against every recipe seen during the run, invalid ones are
// dropped, the survivors are scored by the evaluators, and a bounded
// population is retained. A round with no survivors means the search has
// converged.
package strategizer

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// NeutralFitness is the fitness of a candidate no evaluator has an opinion on.
const NeutralFitness = 0.5

// Input is the read-only view of the search a strategy or evaluator sees.
type Input struct {
	// Generation is the number of the round that last completed.
	Generation int

	// Generated holds the survivors of the last round.
	Generated []*Individual

	// Population holds the retained population, best first.
	Population []*Individual
}

// Strategy proposes candidate recipes.
type Strategy interface {
	// Name identifies the strategy in derivations and diagnostics.
	Name() string

	// Generate returns up to n candidates derived from the input. Returning
	// an error aborts the planning run.
	Generate(ctx context.Context, in Input, n int) ([]*Individual, error)

	// Discard releases any state the strategy holds for the given
	// individuals, which have left the search.
	Discard(discarded []*Individual)
}

// Opinion is one evaluator's view of one candidate.
type Opinion struct {
	Fitness    float64
	Applicable bool
}

// NotApplicable is the opinion of an evaluator with nothing to say.
var NotApplicable = Opinion{}

// Evaluator scores candidates.
type Evaluator interface {
	Name() string

	// Evaluate returns exactly one opinion per candidate, in order.
	Evaluate(ctx context.Context, in Input, candidates []*Individual) ([]Opinion, error)
}

// Strategizer holds the state of one search run. Generate must not be called
// concurrently with itself.
type Strategizer struct {
	strategies []Strategy
	evaluators []Evaluator
	opts       Options
	logger     zerolog.Logger
	exec       executor

	generation int
	generated  []*Individual
	population []*Individual
	discarded  []*Individual

	// hashes maps every canonical hash seen during the run to its
	// representative.
	hashes map[string]*Individual

	// admitted lists representatives in the order they were first seen.
	admitted []*Individual

	warnedNoEvaluators bool
}

// New creates a Strategizer. The options are validated.
func New(strategies []Strategy, evaluators []Evaluator, opts Options, options ...Option) (*Strategizer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	s := &Strategizer{
		strategies: strategies,
		evaluators: evaluators,
		opts:       opts,
		logger:     zerolog.Nop(),
		hashes:     make(map[string]*Individual),
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// Seed installs individuals as the current generation, so the next round
// derives from them. Seeds are registered for deduplication like any other
// candidate.
func (s *Strategizer) Seed(individuals ...*Individual) {
	for _, ind := range individuals {
		h := ind.Hash()
		if _, ok := s.hashes[h]; ok {
			continue
		}
		if ind.Fitness == 0 {
			ind.Fitness = NeutralFitness
		}
		s.hashes[h] = ind
		s.admitted = append(s.admitted, ind)
		s.generated = append(s.generated, ind)
	}
}

// Generation returns the number of completed rounds.
func (s *Strategizer) Generation() int { return s.generation }

// Generated returns the survivors of the last round.
func (s *Strategizer) Generated() []*Individual { return cloneList(s.generated) }

// Population returns the retained population, best first.
func (s *Strategizer) Population() []*Individual { return cloneList(s.population) }

// Discarded returns the individuals discarded by the last round.
func (s *Strategizer) Discarded() []*Individual { return cloneList(s.discarded) }

// Individuals returns every representative seen during the run in the order
// it was first seen, whether or not it passed the validity check.
func (s *Strategizer) Individuals() []*Individual { return cloneList(s.admitted) }

func (s *Strategizer) input() Input {
	return Input{
		Generation: s.generation,
		Generated:  cloneList(s.generated),
		Population: cloneList(s.population),
	}
}

// Generate runs one round and returns its diagnostic record. The returned
// error is a *StrategyError or *EvaluatorError. After an error the run cannot
// continue.
func (s *Strategizer) Generate(ctx context.Context) (*Record, error) {
	start := time.Now()
	generation := s.generation + 1

	ctx, span := otel.Tracer("github.com/smalls/arcs/pkg/strategizer").Start(ctx, "strategizer.generate")
	defer span.End()
	span.SetAttributes(attribute.Int("strategizer.generation", generation))

	in := s.input()
	record := newRecord(generation, len(in.Generated))

	// Generate
	var raw [][]*Individual
	if len(s.strategies) > 0 {
		perStrategy := s.opts.GenerationSize / len(s.strategies)
		if perStrategy < 1 {
			perStrategy = 1
		}
		var err error
		raw, err = s.exec.generateAll(ctx, s.strategies, in, perStrategy)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	// Flatten and hash
	type candidate struct {
		ind      *Individual
		strategy string
	}
	var candidates []candidate
	for i, out := range raw {
		name := s.strategies[i].Name()
		record.OutputSizesOfStrategies[name] = len(out)
		for _, ind := range out {
			ind.Hash()
			ind.Generation = generation
			candidates = append(candidates, candidate{ind: ind, strategy: name})
		}
	}
	record.RawGenerated = len(candidates)

	// Deduplicate and filter invalid candidates
	var survivors []*Individual
	for _, c := range candidates {
		h := c.ind.Hash()
		rep, seen := s.hashes[h]
		if seen {
			parent := c.ind.Parent()
			switch {
			case parent == rep:
				record.NullDerivations++
				record.NullDerivationsByStrategy[c.strategy]++
			case rep.hasParent(parent):
				record.DuplicateDerivations++
				record.DuplicateDerivationsByStrategy[c.strategy]++
			default:
				rep.Derivation = append(rep.Derivation, c.ind.Derivation...)
				record.AttachedDerivations++
			}
			continue
		}
		s.hashes[h] = c.ind
		s.admitted = append(s.admitted, c.ind)

		if !c.ind.Valid() {
			record.InvalidDerivations++
			record.InvalidDerivationsByStrategy[c.strategy]++
			continue
		}
		survivors = append(survivors, c.ind)
	}
	record.TotalGenerated = len(survivors)

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Score > survivors[j].Score
	})

	// Evaluate
	if len(survivors) > 0 && len(s.evaluators) == 0 && !s.warnedNoEvaluators {
		s.logger.Warn().Msg("No evaluators configured, all candidates get neutral fitness")
		s.warnedNoEvaluators = true
	}
	var opinions [][]Opinion
	if len(survivors) > 0 && len(s.evaluators) > 0 {
		var err error
		opinions, err = s.exec.evaluateAll(ctx, s.evaluators, in, survivors)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	for i, ind := range survivors {
		ind.Fitness = mergeOpinions(opinions, i)
	}

	// Select and discard
	var discarded []*Individual
	keep := s.opts.MaxPopulation - s.opts.DiscardSize
	population := cloneList(s.population)
	if len(population) > keep {
		discarded = append(discarded, population[keep:]...)
		population = population[:keep]
	}

	ranked := cloneList(survivors)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	for i, ind := range ranked {
		if i < s.opts.DiscardSize {
			population = append(population, ind)
		} else {
			discarded = append(discarded, ind)
		}
	}
	sort.SliceStable(population, func(i, j int) bool {
		return population[i].Fitness > population[j].Fitness
	})

	// Notify
	for _, strategy := range s.strategies {
		strategy.Discard(cloneList(discarded))
	}

	// Publish
	s.generation = generation
	s.generated = survivors
	s.population = population
	s.discarded = discarded

	record.PopulationSize = len(population)
	record.Discarded = len(discarded)
	record.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("strategizer.raw_generated", record.RawGenerated),
		attribute.Int("strategizer.survivors", record.TotalGenerated),
		attribute.Int("strategizer.population", record.PopulationSize),
	)

	s.logger.Debug().
		Int("generation", generation).
		Int("raw", record.RawGenerated).
		Int("survivors", record.TotalGenerated).
		Int("null", record.NullDerivations).
		Int("duplicate", record.DuplicateDerivations).
		Int("invalid", record.InvalidDerivations).
		Int("population", record.PopulationSize).
		Dur("duration", record.Duration).
		Msg("Round completed")

	return record, nil
}

// mergeOpinions returns the mean of the applicable opinions on candidate i,
// or NeutralFitness when none apply.
func mergeOpinions(opinions [][]Opinion, i int) float64 {
	var sum float64
	var n int
	for _, ops := range opinions {
		if op := ops[i]; op.Applicable {
			sum += op.Fitness
			n++
		}
	}
	if n == 0 {
		return NeutralFitness
	}
	return sum / float64(n)
}

func cloneList(in []*Individual) []*Individual {
	if in == nil {
		return nil
	}
	out := make([]*Individual, len(in))
	copy(out, in)
	return out
}
