// Package telemetry provides observability for planning runs.
//
// It bundles structured logging (zerolog), distributed tracing
// (OpenTelemetry), Prometheus metrics and a small event publisher that
// reports planning progress to subscribers such as the CLI.
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("planner").WithRunID(runID)
//	logger.Info("Planning started")
//
// Packages that take a zerolog.Logger by option get one from Logger.Zerolog.
//
// # Distributed Tracing
//
// When tracing is enabled NewTracer installs the global tracer provider. The
// planner opens a "planner.plan" span per run and the strategizer a
// "strategizer.generate" span per round, both through otel.Tracer, so they
// are exported without further wiring.
//
// Supported exporters: "otlp" (gRPC), "stdout" (pretty printed) and "none".
//
// # Metrics
//
//	tel.Metrics.RecordPlanStarted()
//	tel.Metrics.RecordRound(population, duration)
//	tel.Metrics.RecordDropped(telemetry.DropDuplicate, 3)
//	tel.Metrics.RecordPlanCompleted("completed", duration)
//
// Exposed metrics (namespace "arcs" by default):
//
//   - arcs_plans_started_total
//   - arcs_plans_completed_total{status}
//   - arcs_plan_duration_seconds{status}
//   - arcs_plan_timeouts_total
//   - arcs_resolved_recipes_total
//   - arcs_rounds_total
//   - arcs_round_duration_seconds
//   - arcs_candidates_total{strategy}
//   - arcs_dropped_derivations_total{reason}
//   - arcs_population_size
//   - arcs_errors_by_class_total{class}
//   - arcs_errors_by_code_total{code}
//   - arcs_active_plans
//
// # Events
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Message)
//	}, telemetry.FilterByType(telemetry.EventTypeRoundCompleted))
//
// Subscribers are called one at a time in publication order. Shutdown
// delivers every buffered event before returning.
package telemetry
