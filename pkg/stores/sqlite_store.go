package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/smalls/arcs/pkg/strategizer"
	"github.com/smalls/arcs/pkg/types"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore is a Registry and run archive backed by SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: opens its own database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode for file databases.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if s.cfg.Path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStore(row rowScanner) (Store, error) {
	var (
		st     Store
		typ    string
		tags   string
		remote bool
	)
	if err := row.Scan(&st.ID, &st.Name, &typ, &tags, &st.Description, &remote); err != nil {
		return Store{}, err
	}
	t, err := types.Parse(typ)
	if err != nil {
		return Store{}, fmt.Errorf("store %s has invalid type %q: %w", st.ID, typ, err)
	}
	if err := json.Unmarshal([]byte(tags), &st.Tags); err != nil {
		return Store{}, fmt.Errorf("store %s has invalid tags: %w", st.ID, err)
	}
	st.Type = t
	st.Remote = remote
	return st, nil
}

// PutStore inserts a store or updates the store with the same id. Updated
// stores keep their registration position.
func (s *SQLiteStore) PutStore(ctx context.Context, st Store) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if st.Tags == nil {
		st.Tags = []string{}
	}
	tags, err := json.Marshal(st.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	query := `
		INSERT INTO stores (id, name, type_key, type, tags, description, remote, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type_key = excluded.type_key,
			type = excluded.type,
			tags = excluded.tags,
			description = excluded.description,
			remote = excluded.remote,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		st.ID,
		st.Name,
		st.Type.Key(),
		st.Type.String(),
		string(tags),
		st.Description,
		st.Remote,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to put store: %w", err)
	}

	return nil
}

// FindByType implements Registry.
func (s *SQLiteStore) FindByType(ctx context.Context, t *types.Type, tag string) ([]Store, error) {
	if t == nil {
		return nil, nil
	}

	query := `
		SELECT id, name, type, tags, description, remote
		FROM stores
		WHERE type_key = ?
			AND (? = '' OR EXISTS (SELECT 1 FROM json_each(stores.tags) WHERE json_each.value = ?))
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query, t.Key(), tag, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to find stores: %w", err)
	}
	defer rows.Close()

	var out []Store
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan store: %w", err)
		}
		out = append(out, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stores: %w", err)
	}

	return out, nil
}

// FindByID implements Registry.
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (Store, error) {
	query := `
		SELECT id, name, type, tags, description, remote
		FROM stores
		WHERE id = ?
	`

	st, err := scanStore(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Store{}, fmt.Errorf("store %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Store{}, fmt.Errorf("failed to get store: %w", err)
	}

	return st, nil
}

// ListStores returns every store in registration order.
func (s *SQLiteStore) ListStores(ctx context.Context) ([]Store, error) {
	query := `
		SELECT id, name, type, tags, description, remote
		FROM stores
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	defer rows.Close()

	out := []Store{}
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan store: %w", err)
		}
		out = append(out, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stores: %w", err)
	}

	return out, nil
}

// DeleteStore deletes a store by id
func (s *SQLiteStore) DeleteStore(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM stores WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete store: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("store %s: %w", id, ErrNotFound)
	}

	return nil
}

// PutRemoteSlot inserts or updates a remote slot.
func (s *SQLiteStore) PutRemoteSlot(ctx context.Context, slot RemoteSlot) error {
	if err := slot.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO remote_slots (id, name, form_factor, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			form_factor = excluded.form_factor
	`

	if _, err := s.db.ExecContext(ctx, query, slot.ID, slot.Name, slot.FormFactor, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to put remote slot: %w", err)
	}

	return nil
}

// RemoteSlots implements Registry.
func (s *SQLiteStore) RemoteSlots(ctx context.Context, name string) ([]RemoteSlot, error) {
	query := `
		SELECT id, name, form_factor
		FROM remote_slots
		WHERE name = ?
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote slots: %w", err)
	}
	defer rows.Close()

	var out []RemoteSlot
	for rows.Next() {
		var slot RemoteSlot
		if err := rows.Scan(&slot.ID, &slot.Name, &slot.FormFactor); err != nil {
			return nil, fmt.Errorf("failed to scan remote slot: %w", err)
		}
		out = append(out, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating remote slots: %w", err)
	}

	return out, nil
}

// CreateRun records the start of a planning run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, name, status, generations, resolved, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Name,
		run.Status,
		run.Generations,
		run.Resolved,
		run.Error,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// CompleteRun records the outcome of a planning run.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus, generations, resolved int, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, generations = ?, resolved = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, generations, resolved, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}

	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, name, status, generations, resolved, error, started_at, completed_at
		FROM runs
		WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Name,
		&run.Status,
		&run.Generations,
		&run.Resolved,
		&run.Error,
		&run.StartedAt,
		&run.CompletedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns lists runs with pagination, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, name, status, generations, resolved, error, started_at, completed_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID,
			&run.Name,
			&run.Status,
			&run.Generations,
			&run.Resolved,
			&run.Error,
			&run.StartedAt,
			&run.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// SavePlan archives a resolved recipe. A recipe already archived for the run
// is left unchanged.
func (s *SQLiteStore) SavePlan(ctx context.Context, plan *Plan) error {
	query := `
		INSERT INTO plans (id, run_id, hash, name, text, score, fitness, generation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, hash) DO NOTHING
	`

	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		plan.ID,
		plan.RunID,
		plan.Hash,
		plan.Name,
		plan.Text,
		plan.Score,
		plan.Fitness,
		plan.Generation,
		plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}

	return nil
}

// ListPlans returns the plans archived for a run, best fitness first.
func (s *SQLiteStore) ListPlans(ctx context.Context, runID string) ([]*Plan, error) {
	query := `
		SELECT id, run_id, hash, name, text, score, fitness, generation, created_at
		FROM plans
		WHERE run_id = ?
		ORDER BY fitness DESC, score DESC, hash
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []*Plan{}
	for rows.Next() {
		plan := &Plan{}
		err := rows.Scan(
			&plan.ID,
			&plan.RunID,
			&plan.Hash,
			&plan.Name,
			&plan.Text,
			&plan.Score,
			&plan.Fitness,
			&plan.Generation,
			&plan.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}

	return plans, nil
}

// SaveRecord archives the diagnostic record of one round.
func (s *SQLiteStore) SaveRecord(ctx context.Context, runID string, record *strategizer.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	query := `
		INSERT INTO round_records (run_id, generation, record, created_at)
		VALUES (?, ?, ?, ?)
	`

	if _, err := s.db.ExecContext(ctx, query, runID, record.Generation, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	return nil
}

// ListRecords returns the round records of a run in generation order.
func (s *SQLiteStore) ListRecords(ctx context.Context, runID string) ([]*strategizer.Record, error) {
	query := `
		SELECT record
		FROM round_records
		WHERE run_id = ?
		ORDER BY generation
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []*strategizer.Record{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record := &strategizer.Record{}
		if err := json.Unmarshal([]byte(data), record); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}
