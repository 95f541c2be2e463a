package evaluators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/strategizer"
)

// DefaultScriptTimeout bounds a single fitness call.
const DefaultScriptTimeout = 5 * time.Second

// Script scores candidates with a Starlark fitness function. The program is
// executed once when the evaluator is built; its globals are frozen, so
// calls for different candidates do not interfere.
type Script struct {
	name     string
	fitness  *starlark.Function
	arity    int
	timeout  time.Duration
	maxSteps uint64
	logger   zerolog.Logger
}

// ScriptOption customizes a Script evaluator.
type ScriptOption func(*Script)

// WithScriptTimeout bounds each fitness call. Zero keeps the default.
func WithScriptTimeout(d time.Duration) ScriptOption {
	return func(s *Script) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxSteps bounds the number of Starlark execution steps per call.
func WithMaxSteps(n uint64) ScriptOption {
	return func(s *Script) { s.maxSteps = n }
}

// WithScriptLogger routes script print() output and diagnostics to logger.
func WithScriptLogger(logger zerolog.Logger) ScriptOption {
	return func(s *Script) { s.logger = logger }
}

// LoadScript reads and compiles a Starlark scoring program from a file.
func LoadScript(path string, opts ...ScriptOption) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return NewScript(filepath.Base(path), string(src), opts...)
}

// NewScript compiles a Starlark scoring program. The program must define a
// fitness function taking one or two parameters.
func NewScript(name, src string, opts ...ScriptOption) (*Script, error) {
	s := &Script{
		name:    name,
		timeout: DefaultScriptTimeout,
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With().Str("component", "script-evaluator").Str("script", name).Logger()

	thread := s.thread("load")
	globals, err := starlark.ExecFile(thread, name, src, predeclared())
	if err != nil {
		return nil, fmt.Errorf("failed to execute script %s: %w", name, err)
	}
	globals.Freeze()

	fn, ok := globals["fitness"].(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("script %s does not define a fitness function", name)
	}
	if n := fn.NumParams(); n < 1 || n > 2 {
		return nil, fmt.Errorf("script %s: fitness takes %d parameters, want 1 or 2", name, n)
	}
	s.fitness = fn
	s.arity = fn.NumParams()

	s.logger.Debug().Int("arity", s.arity).Msg("Script compiled")
	return s, nil
}

// Name implements strategizer.Evaluator.
func (s *Script) Name() string { return "script:" + s.name }

// Evaluate implements strategizer.Evaluator. A script error aborts the round.
func (s *Script) Evaluate(ctx context.Context, in strategizer.Input, candidates []*strategizer.Individual) ([]strategizer.Opinion, error) {
	opinions := make([]strategizer.Opinion, len(candidates))
	for i, ind := range candidates {
		op, err := s.call(ctx, ind.Recipe, map[string]interface{}{
			"generation": in.Generation + 1,
			"score":      ind.Score,
		})
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", short(ind.Hash()), err)
		}
		opinions[i] = op
	}
	return opinions, nil
}

// EvaluateRecipe scores one recipe outside of planning.
func (s *Script) EvaluateRecipe(ctx context.Context, r *recipe.Recipe) (strategizer.Opinion, error) {
	return s.call(ctx, r, map[string]interface{}{"generation": 0, "score": 0.0})
}

func (s *Script) call(ctx context.Context, r *recipe.Recipe, info map[string]interface{}) (strategizer.Opinion, error) {
	if err := ctx.Err(); err != nil {
		return strategizer.NotApplicable, err
	}

	doc, err := documentValue(r.Document())
	if err != nil {
		return strategizer.NotApplicable, err
	}
	args := starlark.Tuple{doc}
	if s.arity == 2 {
		infoVal, err := toStarlarkValue(info)
		if err != nil {
			return strategizer.NotApplicable, err
		}
		args = append(args, infoVal)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	thread := s.thread(r.Hash())
	stop := context.AfterFunc(callCtx, func() {
		thread.Cancel(callCtx.Err().Error())
	})
	defer stop()

	startTime := time.Now()
	result, err := starlark.Call(thread, s.fitness, args, nil)
	if err != nil {
		if evalErr, ok := err.(*starlark.EvalError); ok {
			return strategizer.NotApplicable, fmt.Errorf("fitness failed: %s", evalErr.Backtrace())
		}
		return strategizer.NotApplicable, fmt.Errorf("fitness failed: %w", err)
	}

	s.logger.Trace().
		Str("recipe", short(r.Hash())).
		Str("result", result.String()).
		Dur("duration", time.Since(startTime)).
		Msg("Fitness computed")

	return toOpinion(result)
}

func (s *Script) thread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			s.logger.Debug().Str("output", msg).Msg("Script print")
		},
	}
	if s.maxSteps > 0 {
		thread.SetMaxExecutionSteps(s.maxSteps)
	}
	return thread
}

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"math":   math.Module,
	}
}

// toOpinion converts the fitness function's result. None means no opinion;
// numbers are clamped to [0, 1] and NaN is an error.
func toOpinion(v starlark.Value) (strategizer.Opinion, error) {
	var f float64
	switch val := v.(type) {
	case starlark.NoneType:
		return strategizer.NotApplicable, nil
	case starlark.Int:
		f = float64(val.Float())
	case starlark.Float:
		f = float64(val)
	default:
		return strategizer.NotApplicable, fmt.Errorf("fitness returned %s, want a number or None", v.Type())
	}

	switch {
	case f != f:
		return strategizer.NotApplicable, fmt.Errorf("fitness returned NaN")
	case f < 0:
		f = 0
	case f > 1:
		f = 1
	}
	return strategizer.Opinion{Fitness: f, Applicable: true}, nil
}

// documentValue converts a recipe document to Starlark dicts and lists,
// keeping its JSON field names. Integral numbers stay integers.
func documentValue(doc recipe.Document) (starlark.Value, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recipe: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var plain interface{}
	if err := dec.Decode(&plain); err != nil {
		return nil, fmt.Errorf("failed to decode recipe: %w", err)
	}
	return toStarlarkValue(plain)
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

var _ strategizer.Evaluator = (*Script)(nil)
