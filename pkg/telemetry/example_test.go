package telemetry_test

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/smalls/arcs/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	telemetry.FromContext(ctx).Info("Planner started")
}

// Example_eventPublishing shows synchronous delivery of planning events.
func Example_eventPublishing() {
	pub, err := telemetry.NewEventPublisher(telemetry.EventsConfig{
		Enabled:    true,
		BufferSize: 10,
	})
	if err != nil {
		panic(err)
	}
	defer pub.Shutdown(context.Background())

	pub.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Type, e.Message)
	}, nil)

	_ = pub.PublishPlanStarted("run-1", 8)
	_ = pub.PublishRoundCompleted("run-1", 1, 3, 3, 0)
	_ = pub.PublishPlanCompleted("run-1", 1, 0, time.Millisecond)

	// Output:
	// plan.started Planning run run-1 started with 8 strategies
	// round.completed Round 1 produced 3 survivors
	// plan.completed Planning run run-1 resolved 0 recipes
}

// Example_eventFiltering keeps only warnings and errors.
func Example_eventFiltering() {
	pub, _ := telemetry.NewEventPublisher(telemetry.EventsConfig{
		Enabled:    true,
		BufferSize: 10,
	})
	defer pub.Shutdown(context.Background())

	pub.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Level, e.Type)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	_ = pub.PublishRoundCompleted("run-1", 1, 3, 3, 0)
	_ = pub.PublishPlanTimedOut("run-1", 4, 2)
	_ = pub.PublishPlanFailed("run-1", "strategy failed")

	// Output:
	// warning plan.timed_out
	// error plan.failed
}

// Example_instrumentedOperation wraps an operation in a span and a logger.
func Example_instrumentedOperation() {
	cfg := telemetry.DefaultConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	op := telemetry.StartOperation(ctx, "manifest.load",
		attribute.String("manifest", "recipes.yaml"))
	op.Logger.Debug("Loading manifest")
	op.End(nil)
}

// Example_structuredLogging writes JSON logs to a writer.
func Example_structuredLogging() {
	logger := telemetry.NewWriterLogger(os.Stdout, telemetry.LoggingConfig{
		Level:  "info",
		Format: "json",
	})
	logger = logger.NewComponentLogger("planner").WithRunID("run-1")
	logger.Debug("Hidden below the configured level")
}
