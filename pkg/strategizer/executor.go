package strategizer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// StrategyError reports a strategy whose Generate call failed. It aborts the
// round and the planning run.
type StrategyError struct {
	Strategy string
	Err      error
}

// Error implements the error interface.
func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s failed: %v", e.Strategy, e.Err)
}

// Unwrap returns the underlying error.
func (e *StrategyError) Unwrap() error { return e.Err }

// EvaluatorError reports an evaluator that failed or broke its contract.
type EvaluatorError struct {
	Evaluator string
	Err       error
}

// Error implements the error interface.
func (e *EvaluatorError) Error() string {
	return fmt.Sprintf("evaluator %s failed: %v", e.Evaluator, e.Err)
}

// Unwrap returns the underlying error.
func (e *EvaluatorError) Unwrap() error { return e.Err }

// executor launches every call of one round and joins them. Results land in
// the slot of the call that produced them, so ordering is independent of
// scheduling.
type executor struct {
	limit int
}

// run calls fn for each index in [0, n) and waits for all calls. The first
// error cancels the context handed to the remaining calls and is returned.
func (e executor) run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

// generateAll runs every strategy for the round.
func (e executor) generateAll(ctx context.Context, strategies []Strategy, in Input, perStrategy int) ([][]*Individual, error) {
	results := make([][]*Individual, len(strategies))
	err := e.run(ctx, len(strategies), func(ctx context.Context, i int) error {
		out, err := strategies[i].Generate(ctx, in, perStrategy)
		if err != nil {
			return &StrategyError{Strategy: strategies[i].Name(), Err: err}
		}
		results[i] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// evaluateAll runs every evaluator over the round's survivors.
func (e executor) evaluateAll(ctx context.Context, evaluators []Evaluator, in Input, candidates []*Individual) ([][]Opinion, error) {
	opinions := make([][]Opinion, len(evaluators))
	err := e.run(ctx, len(evaluators), func(ctx context.Context, i int) error {
		out, err := evaluators[i].Evaluate(ctx, in, candidates)
		if err != nil {
			return &EvaluatorError{Evaluator: evaluators[i].Name(), Err: err}
		}
		if len(out) != len(candidates) {
			return &EvaluatorError{
				Evaluator: evaluators[i].Name(),
				Err:       fmt.Errorf("returned %d opinions for %d candidates", len(out), len(candidates)),
			}
		}
		opinions[i] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opinions, nil
}
