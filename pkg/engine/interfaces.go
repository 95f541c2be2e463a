package engine

import (
	"context"

	"github.com/smalls/arcs/pkg/stores"
	"github.com/smalls/arcs/pkg/strategizer"
)

// Archive persists planning runs. stores.SQLiteStore implements it.
type Archive interface {
	// CreateRun records the start of a run.
	CreateRun(ctx context.Context, run *stores.Run) error

	// CompleteRun records the outcome of a run. errMsg is nil unless the run
	// failed.
	CompleteRun(ctx context.Context, id string, status stores.RunStatus, generations, resolved int, errMsg *string) error

	// SavePlan stores a resolved recipe. Saving the same hash twice for one
	// run keeps the first.
	SavePlan(ctx context.Context, plan *stores.Plan) error

	// SaveRecord stores the diagnostic record of a round.
	SaveRecord(ctx context.Context, runID string, record *strategizer.Record) error
}

var _ Archive = (*stores.SQLiteStore)(nil)
