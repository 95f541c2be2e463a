// Package engine runs planning: it drives the strategizer round by round
// until the search converges, a generation limit is hit, or the time budget
// runs out.
//
// # Overview
//
// A run starts from seed recipes and proceeds in rounds. Each round asks
// every strategy for derived candidates, drops null, duplicate and invalid
// ones, asks the evaluators for fitness, and keeps the best in the
// population. Fully resolved recipes are collected as they appear:
//
//	planner, err := engine.NewDefaultPlanner(engine.DefaultPlannerConfig(),
//	    catalog, registry, seeds, evaluators,
//	    engine.WithLogger(logger),
//	    engine.WithArchive(store),
//	)
//	result, err := planner.Plan(ctx, 30*time.Second)
//	for _, r := range result.Recipes() {
//	    fmt.Println(r)
//	}
//
// The time budget and ctx are checked between rounds. A round in flight
// always completes, so a run may overrun its budget by one round. Running out
// of time is not an error: the result carries TimedOut and whatever was
// resolved so far.
//
// # Provenance
//
// Result.Provenance returns the derivation graph of every candidate seen
// during the run. Nodes are recipes grouped by the generation that produced
// them; edges are labeled with the strategy that performed the rewrite.
// ToDOT renders it for Graphviz.
//
// # Error Classification
//
// Errors are classified for retry logic:
//
//   - Transient: cancellation or a failing archive; a new run may succeed
//   - Throttled: rate limiting by a collaborator
//   - Conflict: state conflicts in a collaborator
//   - Permanent: invalid configuration, a failing strategy or evaluator
//
// Use the error helper functions to classify and inspect errors:
//
//	if engine.IsRetryable(err) {
//	    // Start a new run
//	}
//
// On error Plan still returns the partial result.
//
// # Archive
//
// With WithArchive, each run, its round records and its resolved recipes are
// stored. stores.SQLiteStore implements Archive.
package engine
