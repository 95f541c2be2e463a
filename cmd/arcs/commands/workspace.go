package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/smalls/arcs/pkg/config"
	"github.com/smalls/arcs/pkg/engine"
	"github.com/smalls/arcs/pkg/evaluators"
	"github.com/smalls/arcs/pkg/manifest"
	"github.com/smalls/arcs/pkg/policy"
	"github.com/smalls/arcs/pkg/stores"
	"github.com/smalls/arcs/pkg/strategizer"
	"github.com/smalls/arcs/pkg/telemetry"
)

const defaultManifest = "arcs.yaml"

// workspace holds everything a command needs: configuration, telemetry,
// the manifest loader, the optional SQLite store and the evaluators.
type workspace struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	logger zerolog.Logger
	loader *manifest.Loader
	paths  []string

	store    *stores.SQLiteStore
	policies *policy.Engine
	script   *evaluators.Script
	plugin   *evaluators.Plugin
}

// openWorkspace loads the configuration and prepares the shared services.
// manifestPaths overrides the configured manifests.
func openWorkspace(ctx context.Context, manifestPaths []string) (*workspace, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	w := &workspace{
		cfg:   cfg,
		tel:   tel,
		paths: manifestPaths,
	}
	if len(w.paths) == 0 {
		w.paths = cfg.Manifests
	}
	if len(w.paths) == 0 {
		w.paths = []string{defaultManifest}
	}
	w.logger = tel.Logger.WithManifest(strings.Join(w.paths, ",")).Zerolog()

	if err := w.open(ctx); err != nil {
		_ = w.Close(ctx)
		return nil, err
	}
	return w, nil
}

func (w *workspace) open(ctx context.Context) error {
	loader, err := manifest.NewLoader(w.logger)
	if err != nil {
		return err
	}
	w.loader = loader

	if w.cfg.Store.Driver == "sqlite" {
		store, err := openStore(ctx, w.cfg.Store.Path)
		if err != nil {
			return err
		}
		w.store = store
	}

	if w.cfg.Policy.Enabled {
		eng, err := policy.NewEngine(w.logger, policy.WithEnvironment(w.cfg.Policy.Environment))
		if err != nil {
			return err
		}
		if len(w.cfg.Policy.Paths) > 0 {
			if err := eng.LoadPolicies(ctx, w.cfg.Policy.Paths); err != nil {
				return err
			}
		}
		for _, name := range w.cfg.Policy.Disabled {
			if err := eng.DisablePolicy(name); err != nil {
				return err
			}
		}
		w.policies = eng
	}

	if w.cfg.Script.Path != "" {
		script, err := evaluators.LoadScript(w.cfg.Script.Path,
			evaluators.WithScriptTimeout(w.cfg.Script.Timeout),
			evaluators.WithMaxSteps(w.cfg.Script.MaxSteps),
			evaluators.WithScriptLogger(w.logger),
		)
		if err != nil {
			return err
		}
		w.script = script
	}

	if w.cfg.Plugin.Path != "" {
		plugin, err := evaluators.LoadPlugin(ctx, w.cfg.Plugin.Path, evaluators.PluginConfig{
			Timeout:          w.cfg.Plugin.Timeout,
			MemoryLimitPages: w.cfg.Plugin.MemoryLimitPages,
			Logger:           w.logger,
		})
		if err != nil {
			return err
		}
		w.plugin = plugin
	}
	return nil
}

func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close releases the plugin and the store and flushes telemetry.
func (w *workspace) Close(ctx context.Context) error {
	var errs []error
	if w.plugin != nil {
		errs = append(errs, w.plugin.Close(ctx))
	}
	if w.store != nil {
		errs = append(errs, w.store.Close())
	}
	errs = append(errs, w.tel.Shutdown(ctx))
	return errors.Join(errs...)
}

// loadManifest loads the workspace manifests.
func (w *workspace) loadManifest() (*manifest.Manifest, error) {
	return w.loader.Load(w.paths...)
}

// registry returns the store registry for m. With the sqlite driver the
// manifest's stores are imported into the database first.
func (w *workspace) registry(ctx context.Context, m *manifest.Manifest) (stores.Registry, error) {
	if w.store == nil {
		return m.Registry()
	}
	if err := importStores(ctx, w.store, m); err != nil {
		return nil, err
	}
	return w.store, nil
}

func importStores(ctx context.Context, store *stores.SQLiteStore, m *manifest.Manifest) error {
	list, err := m.StoreList()
	if err != nil {
		return err
	}
	for _, s := range list {
		if err := store.PutStore(ctx, s); err != nil {
			return fmt.Errorf("failed to import store %s: %w", s.ID, err)
		}
	}
	for _, s := range m.RemoteSlotList() {
		if err := store.PutRemoteSlot(ctx, s); err != nil {
			return fmt.Errorf("failed to import remote slot %s: %w", s.ID, err)
		}
	}
	return nil
}

// evaluators returns the configured evaluators, resolution progress first.
func (w *workspace) evaluators() []strategizer.Evaluator {
	evals := []strategizer.Evaluator{evaluators.NewResolution()}
	if w.policies != nil {
		evals = append(evals, w.policies)
	}
	if w.script != nil {
		evals = append(evals, w.script)
	}
	if w.plugin != nil {
		evals = append(evals, w.plugin)
	}
	return evals
}

// planner builds a planner over m with the default strategy set.
func (w *workspace) planner(ctx context.Context, m *manifest.Manifest) (*engine.Planner, error) {
	cat, err := m.Catalog()
	if err != nil {
		return nil, err
	}
	reg, err := w.registry(ctx, m)
	if err != nil {
		return nil, err
	}
	seeds, err := m.Seeds()
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithLogger(w.logger),
		engine.WithMetrics(w.tel.Metrics),
		engine.WithEvents(w.tel.Events),
	}
	if w.cfg.Store.Archive {
		opts = append(opts, engine.WithArchive(w.store))
	}

	return engine.NewDefaultPlanner(w.cfg.Planner.Engine(m.Name), cat, reg, seeds, w.evaluators(), opts...)
}
