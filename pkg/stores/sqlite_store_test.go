package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smalls/arcs/pkg/strategizer"
	"github.com/smalls/arcs/pkg/types"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
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
	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Fatal("expected health check to fail before Init")
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"stores", "remote_slots", "runs", "plans", "round_records"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Running the migrations again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

func TestStoreRegistry(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	products := types.MustParse("[Product]")
	entries := []Store{
		{ID: "b-shortlist", Name: "Shortlist", Type: products, Tags: []string{"shortlist", "mine"}},
		{ID: "a-wishlist", Type: products, Tags: []string{"wishlist"}},
		{ID: "product", Type: types.Entity("Product")},
		{ID: "remote-products", Type: products, Remote: true},
	}
	for _, st := range entries {
		if err := store.PutStore(ctx, st); err != nil {
			t.Fatalf("failed to put store %s: %v", st.ID, err)
		}
	}

	found, err := store.FindByType(ctx, products, "")
	if err != nil {
		t.Fatalf("FindByType failed: %v", err)
	}
	if len(found) != 3 {
		t.Fatalf("expected 3 collection stores, got %d", len(found))
	}
	if found[0].ID != "b-shortlist" || found[1].ID != "a-wishlist" {
		t.Errorf("stores not in registration order: %s, %s", found[0].ID, found[1].ID)
	}
	if !found[2].Remote {
		t.Errorf("expected %s to be remote", found[2].ID)
	}
	if found[0].Type.String() != "[Product]" {
		t.Errorf("unexpected type %s", found[0].Type)
	}

	tagged, err := store.FindByType(ctx, products, "mine")
	if err != nil {
		t.Fatalf("FindByType with tag failed: %v", err)
	}
	if len(tagged) != 1 || tagged[0].Name != "Shortlist" {
		t.Fatalf("unexpected tagged result: %+v", tagged)
	}

	// Updating keeps the registration position.
	if err := store.PutStore(ctx, Store{ID: "b-shortlist", Type: products, Tags: []string{"updated"}}); err != nil {
		t.Fatalf("failed to update store: %v", err)
	}
	found, _ = store.FindByType(ctx, products, "")
	if found[0].ID != "b-shortlist" || found[0].Tags[0] != "updated" {
		t.Errorf("update changed order or lost tags: %+v", found[0])
	}

	got, err := store.FindByID(ctx, "product")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Type.String() != "Product" {
		t.Errorf("unexpected type %s", got.Type)
	}

	if _, err := store.FindByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.DeleteStore(ctx, "product"); err != nil {
		t.Fatalf("DeleteStore failed: %v", err)
	}
	if err := store.DeleteStore(ctx, "product"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	all, err := store.ListStores(ctx)
	if err != nil {
		t.Fatalf("ListStores failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 stores after delete, got %d", len(all))
	}

	if err := store.PutStore(ctx, Store{ID: "untyped"}); err == nil {
		t.Error("expected error for store without type")
	}
}

func TestStoreRemoteSlots(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, slot := range []RemoteSlot{
		{ID: "root-0", Name: "root"},
		{ID: "toolbar-0", Name: "toolbar", FormFactor: "big"},
		{ID: "root-1", Name: "root"},
	} {
		if err := store.PutRemoteSlot(ctx, slot); err != nil {
			t.Fatalf("failed to put remote slot: %v", err)
		}
	}

	slots, err := store.RemoteSlots(ctx, "root")
	if err != nil {
		t.Fatalf("RemoteSlots failed: %v", err)
	}
	if len(slots) != 2 || slots[0].ID != "root-0" || slots[1].ID != "root-1" {
		t.Fatalf("unexpected slots: %+v", slots)
	}

	if err := store.PutRemoteSlot(ctx, RemoteSlot{ID: "nameless"}); err == nil {
		t.Error("expected error for slot without name")
	}
}

func TestStoreArchive(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := &Run{
		ID:        "run-1",
		Name:      "products",
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	for gen := 1; gen <= 2; gen++ {
		record := &strategizer.Record{
			Generation:                   gen,
			RawGenerated:                 10 * gen,
			TotalGenerated:               gen,
			InvalidDerivationsByStrategy: map[string]int{"create-views": gen},
		}
		if err := store.SaveRecord(ctx, run.ID, record); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
	}

	plans := []*Plan{
		{ID: "p1", RunID: run.ID, Hash: "h1", Name: "a", Text: "recipe a\n", Fitness: 0.5, Generation: 1},
		{ID: "p2", RunID: run.ID, Hash: "h2", Name: "b", Text: "recipe b\n", Fitness: 0.9, Generation: 2},
		{ID: "p3", RunID: run.ID, Hash: "h1", Name: "a", Text: "recipe a\n", Fitness: 0.1, Generation: 2},
	}
	for _, p := range plans {
		if err := store.SavePlan(ctx, p); err != nil {
			t.Fatalf("SavePlan failed: %v", err)
		}
	}

	if err := store.CompleteRun(ctx, run.ID, RunStatusCompleted, 2, 2, nil); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}
	if err := store.CompleteRun(ctx, "missing", RunStatusCompleted, 0, 0, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunStatusCompleted || got.Generations != 2 || got.CompletedAt == nil {
		t.Errorf("unexpected run: %+v", got)
	}

	archived, err := store.ListPlans(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListPlans failed: %v", err)
	}
	if len(archived) != 2 {
		t.Fatalf("expected 2 unique plans, got %d", len(archived))
	}
	if archived[0].Hash != "h2" {
		t.Errorf("expected best plan first, got %s", archived[0].Hash)
	}

	records, err := store.ListRecords(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 2 || records[1].RawGenerated != 20 {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].InvalidDerivationsByStrategy["create-views"] != 1 {
		t.Errorf("per-strategy tally not preserved: %+v", records[0].InvalidDerivationsByStrategy)
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
