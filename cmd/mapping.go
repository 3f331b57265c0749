// File: cmd/mapping.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/examples"
	"github.com/xkilldash9x/stepwise/internal/mapping"
	"github.com/xkilldash9x/stepwise/internal/observability"
)

func newMappingCmd() *cobra.Command {
	mappingCmd := &cobra.Command{
		Use:   "mapping",
		Short: "Manages the Postgres target-to-selector mapping table",
	}
	mappingCmd.AddCommand(newMappingImportCmd())
	return mappingCmd
}

func newMappingImportCmd() *cobra.Command {
	var useExample bool

	importCmd := &cobra.Command{
		Use:   "import [file|url]",
		Short: "Imports a mapping document into Postgres",
		Long: `Reads a mapping document ({"mappings": [{"target_text": ..., "selector": ...}]})
and upserts every entry into the target_mappings table.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !useExample {
				return fmt.Errorf("a mapping document or --example is required")
			}
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			logger := observability.GetLogger()

			var data []byte
			if useExample {
				data = examples.Mappings()
			} else if data, err = newFetcher(cfg.Browser(), logger).Fetch(ctx, args[0]); err != nil {
				return err
			}
			mappings, err := mapping.ParseDocument(data)
			if err != nil {
				return err
			}

			c := &components{}
			defer c.Shutdown()
			s, err := c.openStore(ctx, cfg.Database(), logger)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			n, err := s.ImportMappings(ctx, mappings)
			if err != nil {
				return err
			}
			logger.Info("Imported mappings.", zap.Int("count", n))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d mappings\n", n)
			return nil
		},
	}
	importCmd.Flags().BoolVar(&useExample, "example", false, "import the bundled stub mapping document")
	return importCmd
}
