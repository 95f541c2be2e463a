package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/smalls/arcs/pkg/manifest"
	"github.com/smalls/arcs/pkg/policy"
	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/strategizer"
)

func newValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate manifests and judge their seed recipes",
		Long: `Validate manifests and judge their seed recipes.

This command checks:
  - YAML syntax and known fields
  - Field constraints and the manifest schema
  - References between recipes, particles, stores and slots
  - Policy verdicts and script fitness of every seed recipe

With --strict a seed recipe rejected by a policy fails validation.`,
		Example: `  # Validate arcs.yaml in the current directory
  arcs validate

  # Validate a directory of manifests
  arcs validate ./manifests

  # Fail on policy violations
  arcs validate --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ws, err := openWorkspace(ctx, args)
			if err != nil {
				return err
			}
			defer func() {
				if err := ws.Close(context.WithoutCancel(ctx)); err != nil {
					log.Warn().Err(err).Msg("Failed to close workspace")
				}
			}()

			log.Info().
				Strs("paths", ws.paths).
				Bool("strict", strict).
				Msg("Validating manifests")

			out := cmd.OutOrStdout()

			m, err := ws.loadManifest()
			if err != nil {
				var verr *manifest.ValidationError
				if errors.As(err, &verr) {
					fmt.Fprintf(out, "✗ %d problem(s):\n", len(verr.Problems))
					for _, p := range verr.Problems {
						fmt.Fprintf(out, "  %s\n", p)
					}
				}
				return err
			}
			fmt.Fprintf(out, "✓ Manifest %q: %d particles, %d stores, %d recipes\n",
				m.Name, len(m.Particles), len(m.Stores), len(m.Recipes))

			seeds, err := m.Seeds()
			if err != nil {
				return err
			}

			rejected := 0
			for _, r := range seeds {
				ok, err := ws.judge(ctx, out, r)
				if err != nil {
					return err
				}
				if !ok {
					rejected++
				}
			}

			if rejected > 0 && strict {
				return fmt.Errorf("%d recipe(s) rejected by policy", rejected)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail when a policy rejects a seed recipe")

	return cmd
}

// judge prints the verdicts on one seed recipe. It reports false when a
// policy rejected the recipe.
func (w *workspace) judge(ctx context.Context, out io.Writer, r *recipe.Recipe) (bool, error) {
	name := r.Name()
	if name == "" {
		name = "(unnamed)"
	}
	state := "unresolved"
	if r.IsResolved() {
		state = "resolved"
	}
	fmt.Fprintf(out, "\nRecipe %s (%s)\n", name, state)
	for _, p := range r.Problems() {
		fmt.Fprintf(out, "  ✗ %s\n", p)
	}

	allowed := true
	if w.policies != nil {
		res, err := w.policies.EvaluateRecipe(ctx, r)
		if err != nil {
			return false, err
		}
		allowed = res.Allowed
		printViolations(out, "✗", res.Violations)
		printViolations(out, "!", res.Warnings)
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  ? %s\n", e)
		}
		if res.Applicable {
			fmt.Fprintf(out, "  policy fitness: %.3f\n", res.Fitness)
		}
	}

	var scorers []recipeScorer
	if w.script != nil {
		scorers = append(scorers, w.script)
	}
	if w.plugin != nil {
		scorers = append(scorers, w.plugin)
	}
	for _, s := range scorers {
		op, err := s.EvaluateRecipe(ctx, r)
		if err != nil {
			return false, err
		}
		if op.Applicable {
			fmt.Fprintf(out, "  %s fitness: %.3f\n", s.Name(), op.Fitness)
		}
	}
	return allowed, nil
}

// recipeScorer scores single recipes outside of planning.
type recipeScorer interface {
	Name() string
	EvaluateRecipe(ctx context.Context, r *recipe.Recipe) (strategizer.Opinion, error)
}

func printViolations(out io.Writer, mark string, vs []policy.Violation) {
	for _, v := range vs {
		fmt.Fprintf(out, "  %s [%s] %s: %s\n", mark, v.Severity, v.Policy, v.Message)
	}
}
