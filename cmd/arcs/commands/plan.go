package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/smalls/arcs/pkg/engine"
	"github.com/smalls/arcs/pkg/manifest"
	"github.com/smalls/arcs/pkg/telemetry"
)

func newPlanCommand() *cobra.Command {
	var (
		manifests      []string
		timeout        time.Duration
		maxGenerations int
		dotFile        string
		outFile        string
		watch          bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve the seed recipes of a manifest",
		Long: `Resolve the seed recipes of a manifest into complete recipes.

Each round every strategy proposes rewrites of the previous round's
candidates. Duplicates and invalid candidates are dropped, the rest are
scored by the evaluators and the best are retained. Planning stops when a
round yields nothing new, after --max-generations rounds, or when --timeout
expires; in the last case the recipes found so far are reported.`,
		Example: `  # Plan from arcs.yaml in the current directory
  arcs plan

  # Plan from several manifests with a 5 second budget
  arcs plan -m particles.yaml -m recipes.yaml --timeout 5s

  # Write resolved recipes as JSON and the derivation graph as DOT
  arcs plan --json --out plan.json --dot provenance.dot

  # Re-plan whenever a manifest changes
  arcs plan --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if cmd.Flags().Changed("timeout") {
				ws.cfg.Planner.Timeout = timeout
			}
			if cmd.Flags().Changed("max-generations") {
				ws.cfg.Planner.MaxGenerations = maxGenerations
			}
			if err := ws.tel.StartMetricsServer(); err != nil {
				return err
			}
			if watch && ws.cfg.Policy.Watch && len(ws.cfg.Policy.Paths) > 0 && ws.policies != nil {
				if err := ws.policies.Watch(ctx, ws.cfg.Policy.Paths); err != nil {
					return err
				}
			}

			m, err := ws.loadManifest()
			if err != nil {
				return err
			}

			run := func(m *manifest.Manifest) error {
				return runPlan(ctx, ws, m, cmd.OutOrStdout(), outFile, dotFile)
			}
			if err := run(m); err != nil && !watch {
				return err
			} else if err != nil {
				log.Error().Err(err).Msg("Planning failed")
			}
			if !watch {
				return nil
			}

			w := manifest.NewWatcher(ws.loader, ws.paths, ws.logger)
			return w.Watch(ctx, func(m *manifest.Manifest) {
				if err := run(m); err != nil {
					log.Error().Err(err).Msg("Planning failed")
				}
			})
		},
	}

	cmd.Flags().StringSliceVarP(&manifests, "manifest", "m", nil, "manifest files or directories (default: config manifests or arcs.yaml)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "time budget of a run (overrides config)")
	cmd.Flags().IntVar(&maxGenerations, "max-generations", 0, "stop after this many rounds (overrides config)")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write the derivation graph in DOT format to this file")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the result to this file instead of stdout")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-plan whenever a manifest changes")

	return cmd
}

// planOutput is the JSON form of a planning result.
type planOutput struct {
	RunID       string           `json:"run_id"`
	Manifest    string           `json:"manifest"`
	Generations int              `json:"generations"`
	TimedOut    bool             `json:"timed_out"`
	Duration    string           `json:"duration"`
	Resolved    []resolvedOutput `json:"resolved"`
}

type resolvedOutput struct {
	Hash       string   `json:"hash"`
	Name       string   `json:"name"`
	Score      float64  `json:"score"`
	Fitness    float64  `json:"fitness"`
	Generation int      `json:"generation"`
	Lineage    []string `json:"lineage"`
	Recipe     string   `json:"recipe"`
}

func runPlan(ctx context.Context, ws *workspace, m *manifest.Manifest, stdout io.Writer, outFile, dotFile string) (err error) {
	op := telemetry.StartOperation(ws.tel.WithContext(ctx), "arcs.plan", attribute.String("manifest", m.Name))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	planner, err := ws.planner(ctx, m)
	if err != nil {
		return err
	}

	op.Logger.Debug("Planner ready")
	log.Info().
		Str("manifest", m.Name).
		Int("seeds", len(m.Recipes)).
		Dur("timeout", ws.cfg.Planner.Timeout).
		Msg("Planning")

	result, planErr := planner.Plan(ctx, ws.cfg.Planner.Timeout)
	if result == nil {
		return planErr
	}
	if planErr != nil {
		log.Error().Err(planErr).Str("code", engine.ErrorCode(planErr)).Msg("Planning stopped early; reporting partial result")
	}

	graph := result.Provenance()
	if dotFile != "" {
		if err := os.WriteFile(dotFile, []byte(graph.ToDOT()), 0o644); err != nil {
			return fmt.Errorf("failed to write DOT file: %w", err)
		}
		log.Info().Str("file", dotFile).Int("nodes", len(graph.Nodes)).Msg("Derivation graph written")
	}

	out := stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := writeResult(out, m, result, graph); err != nil {
		return err
	}

	log.Info().
		Str("run_id", result.RunID.String()).
		Int("generations", len(result.Records)).
		Int("resolved", len(result.Resolved)).
		Bool("timed_out", result.TimedOut).
		Dur("duration", result.Duration).
		Msg("Planning completed")

	return planErr
}

func writeResult(out io.Writer, m *manifest.Manifest, result *engine.Result, graph *engine.ProvenanceGraph) error {
	if jsonOutput {
		po := planOutput{
			RunID:       result.RunID.String(),
			Manifest:    m.Name,
			Generations: len(result.Records),
			TimedOut:    result.TimedOut,
			Duration:    result.Duration.String(),
			Resolved:    make([]resolvedOutput, 0, len(result.Resolved)),
		}
		for _, ind := range result.Resolved {
			po.Resolved = append(po.Resolved, resolvedOutput{
				Hash:       ind.Hash(),
				Name:       ind.Recipe.Name(),
				Score:      ind.Score,
				Fitness:    ind.Fitness,
				Generation: ind.Generation,
				Lineage:    graph.Lineage(ind.Hash()),
				Recipe:     ind.Recipe.String(),
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(po)
	}

	if len(result.Resolved) == 0 {
		_, err := fmt.Fprintln(out, "No resolved recipes.")
		return err
	}
	for i, ind := range result.Resolved {
		_, err := fmt.Fprintf(out, "# %d/%d  hash=%.12s  score=%g  fitness=%.3f  generation=%d\n%s\n",
			i+1, len(result.Resolved), ind.Hash(), ind.Score, ind.Fitness, ind.Generation, ind.Recipe.String())
		if err != nil {
			return err
		}
	}
	return nil
}
