package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "arcs.config.yaml"

const sampleManifest = `name: products
particles:
  - name: ShowProducts
    description: Renders a list of products
    verbs: [show]
    connections:
      - name: list
        direction: in
        type: "[Product]"
    slots:
      - name: root
        required: true
  - name: Recommend
    connections:
      - name: known
        direction: in
        type: "[Product]"
      - name: recommendations
        direction: out
        type: "[Product]"
stores:
  - id: shortlist
    name: Shortlist
    type: "[Product]"
    tags: [shortlist]
remote_slots:
  - id: remote-root
    name: root
recipes:
  - name: show-shortlist
    views:
      - name: products
        tags: [shortlist]
    particles:
      - name: ShowProducts
        connections:
          - name: list
            direction: in
            view: products
        consumes:
          - name: root
`

const sampleScript = `# fitness is called with the candidate recipe and the planning context.
# Return a number in [0, 1], or None to abstain.
def fitness(recipe, ctx):
    views = recipe["views"]
    if not views:
        return None
    mapped = [v for v in views if v["fate"] in ("use", "map")]
    return len(mapped) / len(views)
`

func sampleConfig(sqlite bool, manifestPath, dbPath, scriptPath string) string {
	store := "  driver: memory\n"
	if sqlite {
		store = fmt.Sprintf("  driver: sqlite\n  path: %s\n  archive: true\n", dbPath)
	}
	return fmt.Sprintf(`manifests:
  - %s
planner:
  max_population: 100
  generation_size: 100
  discard_size: 20
  timeout: 30s
store:
%spolicy:
  enabled: true
script:
  path: %s
  timeout: 5s
`, manifestPath, store, scriptPath)
}

func newInitCommand() *cobra.Command {
	var (
		dir    string
		sqlite bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize an arcs workspace",
		Long: `Initialize an arcs workspace with a sample manifest, a scoring script and
a configuration file.

The --sqlite flag configures a SQLite store registry and run archive and
creates the database with its schema.`,
		Example: `  # Initialize the current directory
  arcs init

  # Initialize a workspace with a run archive
  arcs init --sqlite --dir ./workspace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			log.Info().
				Str("dir", dir).
				Bool("sqlite", sqlite).
				Msg("Initializing workspace")

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}

			cfgFile := configPath
			if cfgFile == "" {
				cfgFile = filepath.Join(dir, defaultConfigFile)
			}
			manifestPath := filepath.Join(dir, defaultManifest)
			dbPath := filepath.Join(dir, "data", "arcs.db")
			scriptPath := filepath.Join(dir, "fitness.star")

			files := []struct {
				path, content string
			}{
				{manifestPath, sampleManifest},
				{scriptPath, sampleScript},
				{cfgFile, sampleConfig(sqlite, manifestPath, dbPath, scriptPath)},
			}
			for _, f := range files {
				written, err := writeNew(f.path, f.content, force)
				if err != nil {
					return err
				}
				if written {
					fmt.Fprintf(out, "✓ Wrote %s\n", f.path)
				} else {
					fmt.Fprintf(out, "- Kept existing %s\n", f.path)
				}
			}

			if sqlite {
				if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
					return fmt.Errorf("failed to create directory: %w", err)
				}
				store, err := openStore(ctx, dbPath)
				if err != nil {
					return err
				}
				if err := store.Close(); err != nil {
					log.Warn().Err(err).Msg("Failed to close store")
				}
				fmt.Fprintf(out, "✓ Initialized database: %s\n", dbPath)
			}

			fmt.Fprintf(out, "\nRun 'arcs --config %s plan' to resolve the sample recipes.\n", cfgFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "workspace directory")
	cmd.Flags().BoolVar(&sqlite, "sqlite", false, "use a SQLite store registry and run archive")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	return cmd
}

// writeNew writes content to path unless the file exists and force is
// unset. It reports whether the file was written.
func writeNew(path, content string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

