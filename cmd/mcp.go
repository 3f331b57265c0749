// File: cmd/mcp.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/stepwise/internal/observability"
	"github.com/xkilldash9x/stepwise/internal/server"
	"github.com/xkilldash9x/stepwise/internal/walkthrough"
)

func newMCPCmd() *cobra.Command {
	var pf pageFlags

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Exposes the walkthrough controls as MCP tools over stdio",
		Long: `Starts an MCP server on stdin/stdout. Every control (load, example, start,
next, prev, reset, state) is a tool prefixed with "walkthrough_". Logs go to
stderr so they never interleave with the protocol stream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			session := c.newSession(cfg, logger, walkthrough.WithNotifier(walkthrough.NewLogNotifier(logger)))
			return serveMCP(ctx, server.NewController(session, cfg.Walkthrough().StepTimeout), logger)
		},
	}
	pf.register(mcpCmd)
	return mcpCmd
}
