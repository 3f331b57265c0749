// File: cmd/resolve.go
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/observability"
)

// ErrUnresolved is returned by the resolve command when no stage located the target.
var ErrUnresolved = errors.New("target could not be resolved")

func newResolveCmd() *cobra.Command {
	var (
		pf   pageFlags
		step schemas.Step
	)

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Shows which selector a step would resolve to on a page",
		Long: `Runs the resolution pipeline (cache, explicit selector, mapping source,
heuristics) for a single step and prints the winning stage and selector.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if step.TargetText == "" && step.Selector == "" {
				return errors.New("either --target or --selector is required")
			}
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if err := pf.apply(cmd, cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			logger := observability.GetLogger()

			c, err := initializeComponents(ctx, cfg, pf.page, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer c.Shutdown()

			session := c.newSession(cfg, logger)
			res := session.Resolver().Resolve(ctx, step)
			out := cmd.OutOrStdout()
			if res == nil {
				fmt.Fprintf(out, "unresolved: %s\n", step.Label())
				return ErrUnresolved
			}
			fmt.Fprintf(out, "stage:    %s\nselector: %s\n", res.Stage, res.Selector)
			if el := res.Element; el != nil {
				fmt.Fprintf(out, "element:  <%s>", el.Tag)
				if el.ID != "" {
					fmt.Fprintf(out, " id=%q", el.ID)
				}
				if el.Name != "" {
					fmt.Fprintf(out, " name=%q", el.Name)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	pf.register(resolveCmd)
	resolveCmd.Flags().StringVarP(&step.TargetText, "target", "t", "", "human-readable target text, e.g. a label")
	resolveCmd.Flags().StringVar(&step.Selector, "selector", "", "explicit selector hint")
	resolveCmd.Flags().StringVarP(&step.Action, "action", "a", schemas.ActionClick, "step action")
	return resolveCmd
}
