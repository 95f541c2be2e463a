package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/smalls/arcs/pkg/stores"
)

func newStoresCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stores",
		Short: "Inspect the store registry and the run archive",
		Long: `Inspect the store registry and the run archive.

With the memory driver only 'list' is available and shows the manifest's
stores. The other subcommands need the sqlite driver.`,
	}

	cmd.AddCommand(
		newStoresListCommand(),
		newStoresImportCommand(),
		newStoresRunsCommand(),
		newStoresPlansCommand(),
	)
	return cmd
}

// withWorkspace opens a workspace for the duration of fn.
func withWorkspace(cmd *cobra.Command, manifests []string, fn func(ctx context.Context, ws *workspace) error) error {
	ctx := cmd.Context()
	ws, err := openWorkspace(ctx, manifests)
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("Failed to close workspace")
		}
	}()
	return fn(ctx, ws)
}

func (w *workspace) requireStore() error {
	if w.store == nil {
		return fmt.Errorf("this command needs the sqlite store driver (store.driver: sqlite)")
	}
	return nil
}

func newStoresListCommand() *cobra.Command {
	var manifests []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, manifests, func(ctx context.Context, ws *workspace) error {
				var list []stores.Store
				if ws.store != nil {
					var err error
					if list, err = ws.store.ListStores(ctx); err != nil {
						return err
					}
				} else {
					m, err := ws.loadManifest()
					if err != nil {
						return err
					}
					if list, err = m.StoreList(); err != nil {
						return err
					}
				}
				return printStores(cmd.OutOrStdout(), list)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&manifests, "manifest", "m", nil, "manifest files or directories")
	return cmd
}

func newStoresImportCommand() *cobra.Command {
	var manifests []string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a manifest's stores and remote slots into the database",
		Example: `  # Import the stores of arcs.yaml
  arcs stores import

  # Import from a specific manifest
  arcs stores import -m products.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, manifests, func(ctx context.Context, ws *workspace) error {
				if err := ws.requireStore(); err != nil {
					return err
				}
				m, err := ws.loadManifest()
				if err != nil {
					return err
				}
				if err := importStores(ctx, ws.store, m); err != nil {
					return err
				}
				log.Info().
					Str("manifest", m.Name).
					Int("stores", len(m.Stores)).
					Int("remote_slots", len(m.RemoteSlots)).
					Msg("Stores imported")
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d store(s) and %d remote slot(s)\n",
					len(m.Stores), len(m.RemoteSlots))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&manifests, "manifest", "m", nil, "manifest files or directories")
	return cmd
}

func newStoresRunsCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived planning runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, nil, func(ctx context.Context, ws *workspace) error {
				if err := ws.requireStore(); err != nil {
					return err
				}
				runs, err := ws.store.ListRuns(ctx, limit, offset)
				if err != nil {
					return err
				}
				return printRuns(cmd.OutOrStdout(), runs)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	return cmd
}

func newStoresPlansCommand() *cobra.Command {
	var showText bool

	cmd := &cobra.Command{
		Use:   "plans <run-id>",
		Short: "List the resolved recipes of an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, nil, func(ctx context.Context, ws *workspace) error {
				if err := ws.requireStore(); err != nil {
					return err
				}
				run, err := ws.store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				plans, err := ws.store.ListPlans(ctx, run.ID)
				if err != nil {
					return err
				}
				return printPlans(cmd.OutOrStdout(), run, plans, showText)
			})
		},
	}

	cmd.Flags().BoolVar(&showText, "text", false, "print each recipe")
	return cmd
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStores(out io.Writer, list []stores.Store) error {
	if jsonOutput {
		return printJSON(out, list)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tTAGS\tREMOTE")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", s.ID, s.Name, s.Type, strings.Join(s.Tags, ","), s.Remote)
	}
	return tw.Flush()
}

func printRuns(out io.Writer, runs []*stores.Run) error {
	if jsonOutput {
		return printJSON(out, runs)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tGENERATIONS\tRESOLVED\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.Name, r.Status, r.Generations, r.Resolved, r.StartedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printPlans(out io.Writer, run *stores.Run, plans []*stores.Plan, showText bool) error {
	if jsonOutput {
		return printJSON(out, struct {
			Run   *stores.Run    `json:"run"`
			Plans []*stores.Plan `json:"plans"`
		}{run, plans})
	}
	fmt.Fprintf(out, "Run %s (%s): %d resolved recipe(s)\n", run.ID, run.Status, len(plans))
	if run.Error != nil {
		fmt.Fprintf(out, "Error: %s\n", *run.Error)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HASH\tNAME\tFITNESS\tSCORE\tGENERATION")
	for _, p := range plans {
		fmt.Fprintf(tw, "%.12s\t%s\t%.3f\t%g\t%d\n", p.Hash, p.Name, p.Fitness, p.Score, p.Generation)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if showText {
		for _, p := range plans {
			fmt.Fprintf(out, "\n# %.12s\n%s\n", p.Hash, p.Text)
		}
	}
	return nil
}
