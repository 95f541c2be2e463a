package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/smalls/arcs/pkg/catalog"
	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/strategies"
	"github.com/smalls/arcs/pkg/strategizer"
	"github.com/smalls/arcs/pkg/stores"
	"github.com/smalls/arcs/pkg/telemetry"
)

const tracerName = "github.com/smalls/arcs/pkg/engine"

// PlannerConfig sizes a planning run.
type PlannerConfig struct {
	// Options bounds rounds and the retained population.
	Options strategizer.Options `yaml:"options"`

	// MaxGenerations stops the run after that many rounds. Zero means no
	// limit besides convergence and the time budget.
	MaxGenerations int `yaml:"max_generations" validate:"gte=0"`

	// MaxParallel caps concurrent strategy and evaluator calls per round.
	// Zero means one call per strategy.
	MaxParallel int `yaml:"max_parallel" validate:"gte=0"`

	// CollectGenerations keeps every round's survivors in Result.Generations.
	CollectGenerations bool `yaml:"collect_generations"`

	// Name labels archived runs.
	Name string `yaml:"name"`
}

// DefaultPlannerConfig returns the standard sizing.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Options: strategizer.DefaultOptions(),
	}
}

var validate = validator.New()

// Validate checks the configuration.
func (c PlannerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return NewPermanentError("invalid planner configuration", err).
			WithCode(ErrCodeValidation)
	}
	return nil
}

// Result is the outcome of one planning run.
type Result struct {
	// RunID identifies the run in logs, events and the archive.
	RunID uuid.UUID

	// Resolved lists every fully resolved recipe found, unique by canonical
	// hash, in the order they were found.
	Resolved []*strategizer.Individual

	// Records holds the diagnostic record of every completed round.
	Records []*strategizer.Record

	// Generations holds every round's survivors when
	// PlannerConfig.CollectGenerations is set.
	Generations [][]*strategizer.Individual

	// TimedOut is set when the time budget stopped the run.
	TimedOut bool

	Duration time.Duration

	individuals []*strategizer.Individual
}

// Recipes returns the resolved recipes.
func (r *Result) Recipes() []*recipe.Recipe {
	out := make([]*recipe.Recipe, len(r.Resolved))
	for i, ind := range r.Resolved {
		out[i] = ind.Recipe
	}
	return out
}

// Provenance returns the derivation graph of every candidate the run saw.
func (r *Result) Provenance() *ProvenanceGraph {
	return BuildProvenance(r.individuals)
}

// Planner drives the strategizer until the search converges or runs out of
// time. A Planner can run any number of times; each run starts from the
// seed strategies again.
type Planner struct {
	cfg        PlannerConfig
	strategies []strategizer.Strategy
	evaluators []strategizer.Evaluator

	logger  zerolog.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
	archive Archive
}

// Option customizes a Planner.
type Option func(*Planner)

// WithLogger sets the logger for run and round diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// WithMetrics records run and round metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Planner) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithEvents publishes progress events.
func WithEvents(ep *telemetry.EventPublisher) Option {
	return func(p *Planner) {
		if ep != nil {
			p.events = ep
		}
	}
}

// WithArchive stores runs, round records and resolved recipes.
func WithArchive(a Archive) Option {
	return func(p *Planner) {
		p.archive = a
	}
}

// NewPlanner creates a planner over the given strategies and evaluators.
func NewPlanner(cfg PlannerConfig, strats []strategizer.Strategy, evaluators []strategizer.Evaluator, opts ...Option) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Planner{
		cfg:        cfg,
		strategies: strats,
		evaluators: evaluators,
		logger:     zerolog.Nop(),
		metrics:    new(telemetry.Metrics),
		events:     new(telemetry.EventPublisher),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// NewDefaultPlanner creates a planner with the standard strategy set seeded
// with the given recipes.
func NewDefaultPlanner(
	cfg PlannerConfig,
	cat catalog.Catalog,
	registry stores.Registry,
	seeds []*recipe.Recipe,
	evaluators []strategizer.Evaluator,
	opts ...Option,
) (*Planner, error) {
	return NewPlanner(cfg, strategies.Default(cat, registry, seeds...), evaluators, opts...)
}

// Plan runs rounds while the previous round produced survivors. The time
// budget, MaxGenerations and ctx are checked between rounds only; a round in
// flight always completes. A zero timeout means no budget.
//
// Running out of time is not an error: the result is returned with TimedOut
// set. On any error the partial result is returned together with an
// *EngineError.
func (p *Planner) Plan(ctx context.Context, timeout time.Duration) (*Result, error) {
	timer := telemetry.NewTimer()
	result := &Result{RunID: uuid.New()}
	runID := result.RunID.String()
	logger := p.logger.With().Str("run_id", runID).Logger()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "planner.plan",
		trace.WithAttributes(telemetry.AttrRunID.String(runID)))
	defer span.End()

	s, err := strategizer.New(p.strategies, p.evaluators, p.cfg.Options,
		strategizer.WithLogger(logger),
		strategizer.WithMaxParallel(p.cfg.MaxParallel),
	)
	if err != nil {
		return nil, NewPermanentError("invalid planner configuration", err).
			WithCode(ErrCodeValidation)
	}

	p.metrics.RecordPlanStarted()
	_ = p.events.PublishPlanStarted(runID, len(p.strategies))
	if err := p.startRun(ctx, result); err != nil {
		return p.fail(ctx, span, logger, s, result, timer, err)
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	seen := make(map[string]bool)

	for {
		if p.cfg.MaxGenerations > 0 && s.Generation() >= p.cfg.MaxGenerations {
			logger.Debug().Int("generations", s.Generation()).Msg("Generation limit reached")
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			result.TimedOut = true
			break
		}
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, span, logger, s, result, timer, classify(err, s.Generation()+1))
		}

		record, err := s.Generate(ctx)
		if err != nil {
			return p.fail(ctx, span, logger, s, result, timer, classify(err, s.Generation()+1))
		}
		result.Records = append(result.Records, record)

		generated := s.Generated()
		if p.cfg.CollectGenerations {
			result.Generations = append(result.Generations, generated)
		}

		var found []*strategizer.Individual
		for _, ind := range generated {
			h := ind.Hash()
			if seen[h] || !ind.Recipe.IsResolved() {
				continue
			}
			seen[h] = true
			found = append(found, ind)
		}
		result.Resolved = append(result.Resolved, found...)

		p.recordRound(record, len(found))
		_ = p.events.PublishRoundCompleted(runID, record.Generation, record.TotalGenerated, record.PopulationSize, len(result.Resolved))
		if err := p.archiveRound(ctx, result, record, found); err != nil {
			return p.fail(ctx, span, logger, s, result, timer, err)
		}

		if record.TotalGenerated == 0 {
			break
		}
	}

	result.Duration = timer.Duration()
	result.individuals = s.Individuals()
	generations := s.Generation()

	status := stores.RunStatusCompleted
	if result.TimedOut {
		status = stores.RunStatusTimedOut
		logger.Warn().
			Dur("timeout", timeout).
			Int("generations", generations).
			Int("resolved", len(result.Resolved)).
			Msg("Planning timed out, returning partial results")
		p.metrics.RecordPlanTimeout()
		_ = p.events.PublishPlanTimedOut(runID, generations, len(result.Resolved))
	} else {
		logger.Info().
			Int("generations", generations).
			Int("resolved", len(result.Resolved)).
			Dur("duration", result.Duration).
			Msg("Planning completed")
		_ = p.events.PublishPlanCompleted(runID, generations, len(result.Resolved), result.Duration)
	}
	p.metrics.RecordPlanCompleted(string(status), result.Duration)

	span.SetAttributes(
		telemetry.AttrGeneration.Int(generations),
		telemetry.AttrResolved.Int(len(result.Resolved)),
		telemetry.AttrTimedOut.Bool(result.TimedOut),
	)

	if err := p.completeRun(ctx, result, status, generations, nil); err != nil {
		telemetry.RecordError(span, err)
		return result, err
	}
	telemetry.RecordSuccess(span)
	return result, nil
}

func (p *Planner) recordRound(record *strategizer.Record, resolved int) {
	p.metrics.RecordRound(record.PopulationSize, record.Duration)
	for name, n := range record.OutputSizesOfStrategies {
		p.metrics.RecordCandidates(name, n)
	}
	p.metrics.RecordDropped(telemetry.DropNull, record.NullDerivations)
	p.metrics.RecordDropped(telemetry.DropDuplicate, record.DuplicateDerivations)
	p.metrics.RecordDropped(telemetry.DropInvalid, record.InvalidDerivations)
	p.metrics.RecordDropped(telemetry.DropAttached, record.AttachedDerivations)
	p.metrics.RecordResolved(resolved)
}

func (p *Planner) fail(
	ctx context.Context,
	span trace.Span,
	logger zerolog.Logger,
	s *strategizer.Strategizer,
	result *Result,
	timer *telemetry.Timer,
	err error,
) (*Result, error) {
	result.Duration = timer.Duration()
	result.individuals = s.Individuals()

	var ee *EngineError
	if errors.As(err, &ee) {
		p.metrics.RecordError(string(ee.Class), ee.Code)
		span.SetAttributes(
			telemetry.AttrErrorClass.String(string(ee.Class)),
			telemetry.AttrErrorCode.String(ee.Code),
		)
	}
	telemetry.RecordError(span, err)
	p.metrics.RecordPlanCompleted(string(stores.RunStatusFailed), result.Duration)
	_ = p.events.PublishPlanFailed(result.RunID.String(), err.Error())
	logger.Error().Err(err).Int("generations", s.Generation()).Msg("Planning failed")

	msg := err.Error()
	// The run's own context may be canceled; the archive still gets the outcome.
	if cerr := p.completeRun(context.WithoutCancel(ctx), result, stores.RunStatusFailed, s.Generation(), &msg); cerr != nil {
		logger.Warn().Err(cerr).Msg("Failed to archive run outcome")
	}
	return result, err
}

func (p *Planner) startRun(ctx context.Context, result *Result) error {
	if p.archive == nil {
		return nil
	}
	run := &stores.Run{
		ID:        result.RunID.String(),
		Name:      p.cfg.Name,
		Status:    stores.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := p.archive.CreateRun(ctx, run); err != nil {
		return NewTransientError("failed to archive run", err).
			WithCode(ErrCodeArchiveFailed).
			WithOperation("create_run")
	}
	return nil
}

func (p *Planner) archiveRound(ctx context.Context, result *Result, record *strategizer.Record, found []*strategizer.Individual) error {
	if p.archive == nil {
		return nil
	}
	runID := result.RunID.String()
	if err := p.archive.SaveRecord(ctx, runID, record); err != nil {
		return NewTransientError("failed to archive round record", err).
			WithCode(ErrCodeArchiveFailed).
			WithOperation("save_record")
	}
	for _, ind := range found {
		plan := &stores.Plan{
			ID:         uuid.New().String(),
			RunID:      runID,
			Hash:       ind.Hash(),
			Name:       ind.Recipe.Name(),
			Text:       ind.Recipe.String(),
			Score:      ind.Score,
			Fitness:    ind.Fitness,
			Generation: ind.Generation,
		}
		if err := p.archive.SavePlan(ctx, plan); err != nil {
			return NewTransientError(fmt.Sprintf("failed to archive plan %s", plan.Hash), err).
				WithCode(ErrCodeArchiveFailed).
				WithOperation("save_plan")
		}
	}
	return nil
}

func (p *Planner) completeRun(ctx context.Context, result *Result, status stores.RunStatus, generations int, errMsg *string) error {
	if p.archive == nil {
		return nil
	}
	if err := p.archive.CompleteRun(ctx, result.RunID.String(), status, generations, len(result.Resolved), errMsg); err != nil {
		return NewTransientError("failed to archive run outcome", err).
			WithCode(ErrCodeArchiveFailed).
			WithOperation("complete_run")
	}
	return nil
}
