package policy

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/smalls/arcs/pkg/catalog"
	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/strategizer"
	"github.com/smalls/arcs/pkg/types"
)

var (
	writerSpec = &catalog.ParticleSpec{
		Name: "Writer",
		Connections: []catalog.ConnectionSpec{
			{Name: "output", Direction: types.DirectionOut, Type: types.Entity("Foo")},
		},
	}
	readerSpec = &catalog.ParticleSpec{
		Name: "Reader",
		Connections: []catalog.ConnectionSpec{
			{Name: "input", Direction: types.DirectionIn, Type: types.Entity("Foo")},
		},
	}
)

// singleView builds a recipe with one particle bound to one view.
func singleView(spec *catalog.ParticleSpec, fate recipe.Fate, storeID string) *recipe.Recipe {
	b := recipe.NewBuilder("test")
	p := b.AddParticle(spec.Name)
	c := b.AddConnection(p, spec.Connections[0].Name)
	v := b.AddView()
	b.SetViewFate(v, fate)
	if storeID != "" {
		b.MapToStore(v, storeID, types.Entity("Foo"))
	}
	b.ConnectView(c, v)
	b.SetParticleSpec(p, spec)
	return b.Normalize()
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func addPolicy(t *testing.T, eng *Engine, p Policy) {
	t.Helper()
	if err := eng.AddPolicy(context.Background(), p); err != nil {
		t.Fatalf("Failed to add policy %s: %v", p.Name, err)
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	if len(policies) != 4 {
		t.Fatalf("Expected 4 built-in policies, got %d", len(policies))
	}

	expected := []string{
		BuiltinPreferExistingStores,
		BuiltinSlotCoverage,
		BuiltinUnreadStores,
		BuiltinUnresolvedParticles,
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("policies[%d] = %s, want %s", i, policies[i].Name, name)
		}
	}

	p, err := eng.GetPolicy(BuiltinSlotCoverage)
	if err != nil {
		t.Fatalf("GetPolicy() error = %v", err)
	}
	if p.Enabled {
		t.Error("slot-coverage should be disabled by default")
	}
}

func TestEvaluateRecipe_Builtins(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name         string
		recipe       *recipe.Recipe
		wantFitness  float64
		wantWarnings int
	}{
		{
			// prefer-existing-stores: 0; unread-stores: 1 - 0.1
			name:         "created store nobody reads",
			recipe:       singleView(writerSpec, recipe.FateCreate, ""),
			wantFitness:  0.45,
			wantWarnings: 1,
		},
		{
			name:        "created store with a reader",
			recipe:      singleView(readerSpec, recipe.FateCreate, ""),
			wantFitness: 0,
		},
		{
			name:        "existing store",
			recipe:      singleView(readerSpec, recipe.FateUse, "store-1"),
			wantFitness: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.EvaluateRecipe(context.Background(), tt.recipe)
			if err != nil {
				t.Fatalf("EvaluateRecipe() error = %v", err)
			}
			if !result.Allowed {
				t.Errorf("Expected recipe to be allowed, violations: %v", result.Violations)
			}
			if !result.Applicable {
				t.Fatal("Expected an applicable opinion")
			}
			if !approx(result.Fitness, tt.wantFitness) {
				t.Errorf("Expected fitness %g, got %g", tt.wantFitness, result.Fitness)
			}
			if len(result.Warnings) != tt.wantWarnings {
				t.Errorf("Expected %d warnings, got %d: %v", tt.wantWarnings, len(result.Warnings), result.Warnings)
			}
			if len(result.Errors) != 0 {
				t.Errorf("Unexpected evaluation errors: %v", result.Errors)
			}
		})
	}
}

func TestEvaluateRecipe_InfoViolationsAreReportedOnly(t *testing.T) {
	eng := newTestEngine(t)

	b := recipe.NewBuilder("unresolved")
	b.AddParticle("Unknown")

	result, err := eng.EvaluateRecipe(context.Background(), b.Normalize())
	if err != nil {
		t.Fatalf("EvaluateRecipe() error = %v", err)
	}

	if len(result.Warnings) != 1 || result.Warnings[0].Severity != SeverityInfo {
		t.Fatalf("Expected one info violation, got %v", result.Warnings)
	}
	if result.Warnings[0].Details["particle"] != "Unknown" {
		t.Errorf("Expected particle detail, got %v", result.Warnings[0].Details)
	}
	if result.Applicable {
		t.Error("A recipe without views and with only info violations has no opinion")
	}
}

func TestEvaluateRecipe_BlockingViolation(t *testing.T) {
	eng := newTestEngine(t)
	addPolicy(t, eng, Policy{
		Name:     "no-create",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package test.nocreate

import rego.v1

deny contains msg if {
	some view in input.recipe.views
	view.fate == "create"
	msg := sprintf("view%d creates a store", [view.index])
}
`,
	})

	result, err := eng.EvaluateRecipe(context.Background(), singleView(readerSpec, recipe.FateCreate, ""))
	if err != nil {
		t.Fatalf("EvaluateRecipe() error = %v", err)
	}

	if result.Allowed {
		t.Error("Expected recipe to be rejected")
	}
	if len(result.Violations) != 1 || result.Violations[0].Message != "view0 creates a store" {
		t.Errorf("Unexpected violations: %v", result.Violations)
	}
	if result.Violations[0].Policy != "no-create" {
		t.Errorf("Expected violation from no-create, got %s", result.Violations[0].Policy)
	}
	if !result.Applicable || result.Fitness != 0 {
		t.Errorf("Expected applicable fitness 0, got %g (applicable=%v)", result.Fitness, result.Applicable)
	}
}

func TestEvaluateRecipe_Weights(t *testing.T) {
	eng := newTestEngine(t, WithoutBuiltins())
	addPolicy(t, eng, Policy{Name: "high", Weight: 3, Enabled: true, Rego: "package test.high\n\nfitness := 1\n"})
	addPolicy(t, eng, Policy{Name: "low", Enabled: true, Rego: "package test.low\n\nfitness := 0\n"})
	addPolicy(t, eng, Policy{Name: "clamped", Enabled: false, Rego: "package test.clamped\n\nfitness := 7\n"})

	result, err := eng.EvaluateRecipe(context.Background(), recipe.NewBuilder("empty").Normalize())
	if err != nil {
		t.Fatalf("EvaluateRecipe() error = %v", err)
	}
	if !approx(result.Fitness, 0.75) {
		t.Errorf("Expected fitness 0.75, got %g", result.Fitness)
	}
	if len(result.EvaluatedPolicies) != 2 {
		t.Errorf("Expected 2 evaluated policies, got %v", result.EvaluatedPolicies)
	}

	if err := eng.EnablePolicy("clamped"); err != nil {
		t.Fatalf("EnablePolicy() error = %v", err)
	}
	result, err = eng.EvaluateRecipe(context.Background(), recipe.NewBuilder("empty").Normalize())
	if err != nil {
		t.Fatalf("EvaluateRecipe() error = %v", err)
	}
	if !approx(result.Fitness, 0.8) {
		t.Errorf("Expected fitness 0.8 with clamped policy, got %g", result.Fitness)
	}
}

func TestEvaluateRecipe_NoPolicies(t *testing.T) {
	eng := newTestEngine(t, WithoutBuiltins())

	result, err := eng.EvaluateRecipe(context.Background(), recipe.NewBuilder("empty").Normalize())
	if err != nil {
		t.Fatalf("EvaluateRecipe() error = %v", err)
	}
	if result.Applicable {
		t.Error("Expected no opinion without policies")
	}
	if !result.Allowed {
		t.Error("Expected recipe to be allowed without policies")
	}
}

func TestEvaluateRecipe_NonNumericFitnessIsSkipped(t *testing.T) {
	eng := newTestEngine(t, WithoutBuiltins())
	addPolicy(t, eng, Policy{Name: "broken", Enabled: true, Rego: "package test.broken\n\nfitness := \"high\"\n"})

	result, err := eng.EvaluateRecipe(context.Background(), recipe.NewBuilder("empty").Normalize())
	if err != nil {
		t.Fatalf("EvaluateRecipe() error = %v", err)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Expected one evaluation error, got %v", result.Errors)
	}
	if result.Applicable {
		t.Error("A failing policy should not produce an opinion")
	}
}

func TestAddPolicy_InvalidRego(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.AddPolicy(context.Background(), Policy{Name: "bad", Rego: "package bad\n\ndeny contains if {"})
	if err == nil {
		t.Fatal("Expected compile error")
	}
	if _, err := eng.GetPolicy("bad"); err == nil {
		t.Error("A policy that failed to compile should not be stored")
	}
}

func TestReplacePolicies_KeepsPreviousOnFailure(t *testing.T) {
	eng := newTestEngine(t)
	addPolicy(t, eng, Policy{Name: "custom", Enabled: true, Rego: "package test.custom\n\nfitness := 1\n"})

	err := eng.replacePolicies(context.Background(), []Policy{{Name: "bad", Rego: "package"}})
	if err == nil {
		t.Fatal("Expected compile error")
	}
	if _, err := eng.GetPolicy("custom"); err != nil {
		t.Error("Expected previous policy set to stay active")
	}

	if err := eng.replacePolicies(context.Background(), []Policy{
		{Name: "other", Enabled: true, Rego: "package test.other\n\nfitness := 0\n"},
	}); err != nil {
		t.Fatalf("replacePolicies() error = %v", err)
	}
	if _, err := eng.GetPolicy("custom"); err == nil {
		t.Error("Expected custom policy to be replaced")
	}
	if len(eng.ListPolicies()) != 5 {
		t.Errorf("Expected built-ins plus one policy, got %d", len(eng.ListPolicies()))
	}
}

func TestEnableDisable_Unknown(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.EnablePolicy("missing"); err == nil {
		t.Error("Expected error enabling unknown policy")
	}
	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("Expected error disabling unknown policy")
	}
}

func TestEngine_Evaluator(t *testing.T) {
	eng := newTestEngine(t)

	candidates := []*strategizer.Individual{
		strategizer.NewIndividual(singleView(readerSpec, recipe.FateUse, "store-1"), 1, nil, "test"),
		strategizer.NewIndividual(singleView(writerSpec, recipe.FateCreate, ""), 0, nil, "test"),
	}

	opinions, err := eng.Evaluate(context.Background(), strategizer.Input{Generation: 2}, candidates)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(opinions) != 2 {
		t.Fatalf("Expected 2 opinions, got %d", len(opinions))
	}
	if !opinions[0].Applicable || !approx(opinions[0].Fitness, 1) {
		t.Errorf("Unexpected opinion for existing store: %+v", opinions[0])
	}
	if !opinions[1].Applicable || !approx(opinions[1].Fitness, 0.45) {
		t.Errorf("Unexpected opinion for unread store: %+v", opinions[1])
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eng.Evaluate(ctx, strategizer.Input{}, candidates); err == nil {
		t.Error("Expected error on canceled context")
	}
}

func TestEngine_GenerationInContext(t *testing.T) {
	eng := newTestEngine(t, WithoutBuiltins(), WithEnvironment("staging"))
	addPolicy(t, eng, Policy{Name: "late", Enabled: true, Rego: `package test.late

import rego.v1

fitness := 1 if {
	input.context.generation > 3
	input.context.environment == "staging"
	input.context.operation == "plan"
}
`})

	candidates := []*strategizer.Individual{
		strategizer.NewIndividual(recipe.NewBuilder("empty").Normalize(), 0, nil, "test"),
	}

	early, err := eng.Evaluate(context.Background(), strategizer.Input{Generation: 1}, candidates)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if early[0].Applicable {
		t.Error("Expected no opinion in early rounds")
	}

	late, err := eng.Evaluate(context.Background(), strategizer.Input{Generation: 3}, candidates)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !late[0].Applicable || late[0].Fitness != 1 {
		t.Errorf("Expected fitness 1 in round 4, got %+v", late[0])
	}
}
