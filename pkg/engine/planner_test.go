package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smalls/arcs/pkg/catalog"
	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/stores"
	"github.com/smalls/arcs/pkg/strategies"
	"github.com/smalls/arcs/pkg/strategizer"
	"github.com/smalls/arcs/pkg/telemetry"
	"github.com/smalls/arcs/pkg/types"
)

var readerSpec = &catalog.ParticleSpec{
	Name: "Reader",
	Connections: []catalog.ConnectionSpec{
		{Name: "input", Direction: types.DirectionIn, Type: types.Entity("Foo")},
	},
}

// Mock implementations for testing

type mockStrategy struct {
	name  string
	delay time.Duration
	err   error
}

func (m *mockStrategy) Name() string { return m.name }

// Generate emits one new recipe per round, so the search never converges.
func (m *mockStrategy) Generate(ctx context.Context, in strategizer.Input, _ int) ([]*strategizer.Individual, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b := recipe.NewBuilder("endless")
	b.AddParticle(fmt.Sprintf("P%d", in.Generation))
	var parent *strategizer.Individual
	if len(in.Generated) > 0 {
		parent = in.Generated[0]
	}
	return []*strategizer.Individual{strategizer.NewIndividual(b.Normalize(), 0, parent, m.name)}, nil
}

func (m *mockStrategy) Discard([]*strategizer.Individual) {}

type mockArchive struct {
	mu        sync.Mutex
	failOn    string
	runs      map[string]stores.RunStatus
	plans     []*stores.Plan
	records   int
	lastError *string
}

func newMockArchive() *mockArchive {
	return &mockArchive{runs: make(map[string]stores.RunStatus)}
}

func (m *mockArchive) CreateRun(_ context.Context, run *stores.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "create_run" {
		return errors.New("disk full")
	}
	m.runs[run.ID] = run.Status
	return nil
}

func (m *mockArchive) CompleteRun(_ context.Context, id string, status stores.RunStatus, _, _ int, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id] = status
	m.lastError = errMsg
	return nil
}

func (m *mockArchive) SavePlan(_ context.Context, plan *stores.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans = append(m.plans, plan)
	return nil
}

func (m *mockArchive) SaveRecord(_ context.Context, _ string, _ *strategizer.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "save_record" {
		return errors.New("disk full")
	}
	m.records++
	return nil
}

func readerPlanner(t *testing.T, cfg PlannerConfig, opts ...Option) (*Planner, *recipe.Recipe) {
	t.Helper()

	cat, err := catalog.NewMemory(readerSpec)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	registry, err := stores.NewMemory()
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	b := recipe.NewBuilder("reader")
	b.SetParticleSpec(b.AddParticle("Reader"), readerSpec)
	seed := b.Normalize()

	p, err := NewDefaultPlanner(cfg, cat, registry, []*recipe.Recipe{seed}, nil, opts...)
	if err != nil {
		t.Fatalf("failed to create planner: %v", err)
	}
	return p, seed
}

func TestPlannerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PlannerConfig)
		wantErr bool
	}{
		{name: "default", mutate: func(*PlannerConfig) {}},
		{name: "negative generations", mutate: func(c *PlannerConfig) { c.MaxGenerations = -1 }, wantErr: true},
		{name: "negative parallelism", mutate: func(c *PlannerConfig) { c.MaxParallel = -2 }, wantErr: true},
		{name: "discard larger than population", mutate: func(c *PlannerConfig) {
			c.Options.DiscardSize = c.Options.MaxPopulation + 1
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPlannerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if ErrorCode(err) != ErrCodeValidation {
					t.Errorf("expected code %s, got %s", ErrCodeValidation, ErrorCode(err))
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPlanner_Plan_Converges(t *testing.T) {
	p, seed := readerPlanner(t, DefaultPlannerConfig())

	result, err := p.Plan(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if result.TimedOut {
		t.Error("expected run to converge before the time budget")
	}
	if len(result.Records) != 3 {
		t.Fatalf("expected 3 rounds, got %d", len(result.Records))
	}
	if last := result.Records[2]; last.TotalGenerated != 0 {
		t.Errorf("expected last round to produce nothing, got %d", last.TotalGenerated)
	}
	if len(result.Resolved) != 1 {
		t.Fatalf("expected 1 resolved recipe, got %d", len(result.Resolved))
	}

	resolved := result.Resolved[0]
	if resolved.Strategy() != strategies.NameCreateViews {
		t.Errorf("expected recipe derived by %s, got %s", strategies.NameCreateViews, resolved.Strategy())
	}
	if resolved.Parent() == nil || resolved.Parent().Hash() != seed.Hash() {
		t.Error("expected resolved recipe to derive from the seed")
	}
	if got := result.Recipes(); len(got) != 1 || !got[0].IsResolved() {
		t.Error("expected Recipes() to return the resolved recipe")
	}
	if result.Generations != nil {
		t.Error("expected generations not to be collected by default")
	}
}

func TestPlanner_Plan_CollectGenerations(t *testing.T) {
	cfg := DefaultPlannerConfig()
	cfg.CollectGenerations = true
	p, _ := readerPlanner(t, cfg)

	result, err := p.Plan(context.Background(), 0)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if len(result.Generations) != len(result.Records) {
		t.Fatalf("expected one generation per round, got %d for %d rounds",
			len(result.Generations), len(result.Records))
	}
	for i, gen := range result.Generations {
		if len(gen) != result.Records[i].TotalGenerated {
			t.Errorf("round %d: expected %d survivors, got %d", i+1, result.Records[i].TotalGenerated, len(gen))
		}
	}
}

func TestPlanner_Plan_MaxGenerations(t *testing.T) {
	cfg := DefaultPlannerConfig()
	cfg.MaxGenerations = 1
	p, _ := readerPlanner(t, cfg)

	result, err := p.Plan(context.Background(), 0)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(result.Records) != 1 {
		t.Errorf("expected 1 round, got %d", len(result.Records))
	}
	if len(result.Resolved) != 0 {
		t.Errorf("expected no resolved recipes after the seed round, got %d", len(result.Resolved))
	}
	if result.TimedOut {
		t.Error("generation limit is not a timeout")
	}
}

func TestPlanner_Plan_TimeoutReturnsPartialResult(t *testing.T) {
	strat := &mockStrategy{name: "endless", delay: 5 * time.Millisecond}
	archive := newMockArchive()
	p, err := NewPlanner(DefaultPlannerConfig(), []strategizer.Strategy{strat}, nil, WithArchive(archive))
	if err != nil {
		t.Fatalf("NewPlanner() error = %v", err)
	}

	result, err := p.Plan(context.Background(), 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !result.TimedOut {
		t.Fatal("expected run to time out")
	}
	if len(result.Records) == 0 {
		t.Error("expected at least one completed round")
	}
	if got := archive.runs[result.RunID.String()]; got != stores.RunStatusTimedOut {
		t.Errorf("expected archived status %s, got %s", stores.RunStatusTimedOut, got)
	}
}

func TestPlanner_Plan_StrategyFailure(t *testing.T) {
	strat := &mockStrategy{name: "broken", err: errors.New("boom")}
	archive := newMockArchive()
	p, err := NewPlanner(DefaultPlannerConfig(), []strategizer.Strategy{strat}, nil, WithArchive(archive))
	if err != nil {
		t.Fatalf("NewPlanner() error = %v", err)
	}

	result, err := p.Plan(context.Background(), 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if result == nil {
		t.Fatal("expected partial result with the error")
	}

	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EngineError, got %T", err)
	}
	if ee.Code != ErrCodeStrategyFailed {
		t.Errorf("expected code %s, got %s", ErrCodeStrategyFailed, ee.Code)
	}
	if ee.Component != "broken" {
		t.Errorf("expected component broken, got %q", ee.Component)
	}
	if !IsPermanent(err) || IsRetryable(err) {
		t.Error("strategy failures are permanent")
	}
	if got := archive.runs[result.RunID.String()]; got != stores.RunStatusFailed {
		t.Errorf("expected archived status %s, got %s", stores.RunStatusFailed, got)
	}
	if archive.lastError == nil || !strings.Contains(*archive.lastError, "boom") {
		t.Error("expected archived error message")
	}
}

func TestPlanner_Plan_Canceled(t *testing.T) {
	p, _ := readerPlanner(t, DefaultPlannerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := p.Plan(ctx, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if ErrorCode(err) != ErrCodeCanceled {
		t.Errorf("expected code %s, got %s", ErrCodeCanceled, ErrorCode(err))
	}
	if !IsTransient(err) {
		t.Error("cancellation should be transient")
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("expected error chain to contain context.Canceled")
	}
	if len(result.Records) != 0 {
		t.Errorf("expected no rounds, got %d", len(result.Records))
	}
}

func TestPlanner_Plan_ArchiveFailure(t *testing.T) {
	tests := []struct {
		failOn string
		op     string
	}{
		{failOn: "create_run", op: "create_run"},
		{failOn: "save_record", op: "save_record"},
	}

	for _, tt := range tests {
		t.Run(tt.failOn, func(t *testing.T) {
			archive := newMockArchive()
			archive.failOn = tt.failOn
			p, _ := readerPlanner(t, DefaultPlannerConfig(), WithArchive(archive))

			_, err := p.Plan(context.Background(), 0)
			var ee *EngineError
			if !errors.As(err, &ee) {
				t.Fatalf("expected *EngineError, got %v", err)
			}
			if ee.Code != ErrCodeArchiveFailed || ee.Operation != tt.op {
				t.Errorf("expected %s during %s, got %s during %s", ErrCodeArchiveFailed, tt.op, ee.Code, ee.Operation)
			}
			if !IsRetryable(err) {
				t.Error("archive failures should be retryable")
			}
		})
	}
}

func TestPlanner_Plan_SQLiteArchive(t *testing.T) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultPlannerConfig()
	cfg.Name = "reader"
	p, _ := readerPlanner(t, cfg, WithArchive(store))

	result, err := p.Plan(ctx, 0)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	run, err := store.GetRun(ctx, result.RunID.String())
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != stores.RunStatusCompleted || run.Name != "reader" {
		t.Errorf("unexpected run: %+v", run)
	}
	if run.Generations != 3 || run.Resolved != 1 {
		t.Errorf("expected 3 generations and 1 resolved, got %d and %d", run.Generations, run.Resolved)
	}

	plans, err := store.ListPlans(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListPlans() error = %v", err)
	}
	if len(plans) != 1 || plans[0].Hash != result.Resolved[0].Hash() {
		t.Errorf("expected the resolved recipe to be archived, got %d plans", len(plans))
	}

	records, err := store.ListRecords(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 records, got %d", len(records))
	}
}

func TestPlanner_Plan_PublishesEvents(t *testing.T) {
	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true, BufferSize: 16})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}
	var seen []string
	events.Subscribe(func(e telemetry.Event) { seen = append(seen, e.Type) }, nil)

	p, _ := readerPlanner(t, DefaultPlannerConfig(), WithEvents(events))
	if _, err := p.Plan(context.Background(), 0); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	want := []string{
		telemetry.EventTypePlanStarted,
		telemetry.EventTypeRoundCompleted,
		telemetry.EventTypeRoundCompleted,
		telemetry.EventTypeRoundCompleted,
		telemetry.EventTypePlanCompleted,
	}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Errorf("expected events %v, got %v", want, seen)
	}
}

func TestPlanner_Plan_Rerunnable(t *testing.T) {
	p, _ := readerPlanner(t, DefaultPlannerConfig())

	first, err := p.Plan(context.Background(), 0)
	if err != nil {
		t.Fatalf("first Plan() error = %v", err)
	}
	second, err := p.Plan(context.Background(), 0)
	if err != nil {
		t.Fatalf("second Plan() error = %v", err)
	}

	if first.RunID == second.RunID {
		t.Error("expected a new run id per run")
	}
	if len(first.Resolved) != len(second.Resolved) || first.Resolved[0].Hash() != second.Resolved[0].Hash() {
		t.Error("expected identical results from identical runs")
	}
}
