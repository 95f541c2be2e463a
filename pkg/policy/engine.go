package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/strategizer"
)

// WarningPenalty is subtracted from a policy's fitness for each warning it
// raises.
const WarningPenalty = 0.1

// Engine compiles Rego policies and judges recipes with them. It implements
// strategizer.Evaluator.
type Engine struct {
	mu              sync.RWMutex
	policies        map[string]*compiledPolicy
	logger          zerolog.Logger
	builtinPolicies []Policy
	environment     string
	loader          *Loader
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	deny     rego.PreparedEvalQuery
	fitness  rego.PreparedEvalQuery
	compiled time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithoutBuiltins starts the engine with no built-in policies.
func WithoutBuiltins() Option {
	return func(e *Engine) {
		e.builtinPolicies = nil
	}
}

// WithEnvironment sets the environment name passed to policies.
func WithEnvironment(env string) Option {
	return func(e *Engine) {
		e.environment = env
	}
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		policies:        make(map[string]*compiledPolicy),
		logger:          logger.With().Str("component", "policy-engine").Logger(),
		builtinPolicies: GetBuiltinPolicies(),
	}
	for _, o := range opts {
		o(e)
	}
	e.loader = NewLoader(e.logger)

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// Name implements strategizer.Evaluator.
func (e *Engine) Name() string { return "policy" }

// Evaluate implements strategizer.Evaluator. A candidate no policy has an
// opinion on is reported as not applicable. Policies that fail to evaluate
// are logged and skipped.
func (e *Engine) Evaluate(ctx context.Context, in strategizer.Input, candidates []*strategizer.Individual) ([]strategizer.Opinion, error) {
	opinions := make([]strategizer.Opinion, len(candidates))
	for i, ind := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := e.evaluate(ctx, ind.Recipe, &Context{
			Generation:  in.Generation + 1,
			Score:       ind.Score,
			Operation:   "plan",
			Environment: e.environment,
		})
		opinions[i] = strategizer.Opinion{Fitness: res.Fitness, Applicable: res.Applicable}
	}
	return opinions, nil
}

// EvaluateRecipe judges one recipe outside of planning.
func (e *Engine) EvaluateRecipe(ctx context.Context, r *recipe.Recipe) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.evaluate(ctx, r, &Context{Operation: "validate", Environment: e.environment}), nil
}

func (e *Engine) evaluate(ctx context.Context, r *recipe.Recipe, pctx *Context) *Result {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := &Input{Recipe: r.Document(), Context: pctx}
	result := &Result{Allowed: true, EvaluatedPolicies: make([]string, 0, len(e.policies))}

	var sum, weights float64
	for _, cp := range e.sorted() {
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		violations, fitness, hasFitness, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("recipe", input.Recipe.Hash).
				Msg("Policy evaluation failed")
			result.Errors = append(result.Errors, fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}

		var warnings int
		for _, v := range violations {
			switch {
			case v.Severity.Blocking():
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			default:
				if v.Severity == SeverityWarning {
					warnings++
				}
				result.Warnings = append(result.Warnings, v)
			}
		}

		var value float64
		switch {
		case hasFitness:
			value = fitness
		case warnings > 0:
			value = 1
		default:
			continue
		}
		value = clamp(value - WarningPenalty*float64(warnings))
		sum += value * cp.policy.weight()
		weights += cp.policy.weight()
	}

	switch {
	case !result.Allowed:
		result.Fitness = 0
		result.Applicable = true
	case weights > 0:
		result.Fitness = sum / weights
		result.Applicable = true
	}
	result.Duration = time.Since(startTime)

	e.logger.Debug().
		Str("recipe", input.Recipe.Hash).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Float64("fitness", result.Fitness).
		Dur("duration", result.Duration).
		Msg("Recipe policy evaluation completed")

	return result
}

// LoadPolicies loads policy files and adds them to the engine.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := e.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// AddPolicy compiles a policy and adds it, replacing one with the same name.
func (e *Engine) AddPolicy(ctx context.Context, p Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileAndStorePolicy(ctx, &p)
}

// Watch reloads the policies under paths whenever they change, until ctx is
// done. The built-in policies are kept.
func (e *Engine) Watch(ctx context.Context, paths []string) error {
	return e.loader.Watch(ctx, paths, func(policies []Policy) error {
		return e.replacePolicies(ctx, policies)
	})
}

// replacePolicies swaps every loaded policy for the built-ins plus the given
// set. On a compile error the previous set stays active.
func (e *Engine) replacePolicies(ctx context.Context, policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.policies
	e.policies = make(map[string]*compiledPolicy)
	if err := e.loadBuiltinPolicies(ctx); err != nil {
		e.policies = previous
		return err
	}
	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.policies = previous
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}
	return nil
}

// evaluatePolicy runs the deny and fitness queries of a single policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, float64, bool, error) {
	denyResults, err := cp.deny.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, 0, false, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range denyResults {
		if len(result.Expressions) > 0 {
			if denySet, ok := result.Expressions[0].Value.([]interface{}); ok {
				for _, d := range denySet {
					violations = append(violations, createViolation(cp.policy, d, input))
				}
			}
		}
	}

	fitnessResults, err := cp.fitness.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, 0, false, fmt.Errorf("policy evaluation error: %w", err)
	}
	if len(fitnessResults) == 0 || len(fitnessResults[0].Expressions) == 0 {
		return violations, 0, false, nil
	}
	fitness, ok := toFloat(fitnessResults[0].Expressions[0].Value)
	if !ok {
		return nil, 0, false, fmt.Errorf("policy %s: fitness is not a number: %v",
			cp.policy.Name, fitnessResults[0].Expressions[0].Value)
	}
	return violations, clamp(fitness), true, nil
}

// createViolation creates a Violation from a deny member.
func createViolation(policy *Policy, result interface{}, input *Input) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Recipe:   input.Recipe.Hash,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		for key, value := range v {
			switch key {
			case "message":
				violation.Message = fmt.Sprintf("%v", value)
			case "severity":
				if sev, ok := value.(string); ok {
					violation.Severity = Severity(sev)
				}
			default:
				if violation.Details == nil {
					violation.Details = make(map[string]interface{})
				}
				violation.Details[key] = value
			}
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compileAndStorePolicy compiles a policy and stores it. The caller holds
// the write lock.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	pkg := module.Package.Path.String()

	deny, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(pkg+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare deny query: %w", err)
	}

	fitness, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(pkg+".fitness"),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare fitness query: %w", err)
	}

	if policy.Severity == "" {
		policy.Severity = SeverityWarning
	}
	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		deny:     deny,
		fitness:  fitness,
		compiled: time.Now(),
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("package", pkg).
		Msg("Policy compiled successfully")

	return nil
}

// loadBuiltinPolicies loads the built-in policies. The caller holds the
// write lock or owns the engine exclusively.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	for i := range e.builtinPolicies {
		p := e.builtinPolicies[i]
		if err := e.compileAndStorePolicy(ctx, &p); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(e.builtinPolicies)).
		Msg("Built-in policies loaded")

	return nil
}

// sorted returns the compiled policies ordered by name.
func (e *Engine) sorted() []*compiledPolicy {
	out := make([]*compiledPolicy, 0, len(e.policies))
	for _, cp := range e.policies {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].policy.Name < out[j].policy.Name
	})
	return out
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	p := *cp.policy
	return &p, nil
}

// ListPolicies returns all loaded policies ordered by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.sorted() {
		policies = append(policies, *cp.policy)
	}

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy state changed")

	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

var _ strategizer.Evaluator = (*Engine)(nil)
