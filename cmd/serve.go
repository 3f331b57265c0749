// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/stepwise/internal/observability"
	"github.com/xkilldash9x/stepwise/internal/server"
	"github.com/xkilldash9x/stepwise/internal/walkthrough"
)

func newServeCmd() *cobra.Command {
	var (
		pf          pageFlags
		addr        string
		loadExample bool
		withMCP     bool
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the walkthrough control panel over HTTP and websockets",
		Long: `Opens the page, then exposes the session's controls as a REST API under
/api/v1 and streams state, highlight and alert events on /ws/v1/session.
With --mcp the same session is also driven by MCP tools on stdin/stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.SetServerAddr(addr)
			}
			if err := pf.apply(cmd, cfg); err != nil {
				return err
			}

			logger := observability.GetLogger()
			g, ctx := errgroup.WithContext(cmd.Context())

			c, err := initializeComponents(ctx, cfg, pf.page, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer c.Shutdown()

			sc := cfg.Server()
			hub := server.NewHub(sc.WSWriteTimeout, sc.WSMaxMessage, logger)
			session := walkthrough.NewSession(c.Page, c.Source, logger,
				walkthrough.WithPresenter(walkthrough.MultiPresenter{c.Presenter, hub}),
				walkthrough.WithNotifier(walkthrough.MultiNotifier{hub, walkthrough.NewLogNotifier(logger)}),
				walkthrough.WithObserver(hub.PublishState),
				walkthrough.WithSuccessSelector(cfg.Walkthrough().SuccessSelector),
			)
			controller := server.NewController(session, cfg.Walkthrough().StepTimeout)

			if loadExample {
				if err := session.LoadExample(ctx); err != nil {
					return err
				}
			}

			srv := server.New(sc, controller, hub, logger)
			g.Go(func() error {
				return srv.ListenAndServe(ctx)
			})
			if withMCP {
				g.Go(func() error {
					return serveMCP(ctx, controller, logger)
				})
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Control panel stopped.")
			return nil
		},
	}

	pf.register(serveCmd)
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&loadExample, "example", false, "preload the bundled example collection")
	serveCmd.Flags().BoolVar(&withMCP, "mcp", false, "also serve MCP tools on stdin/stdout")
	return serveCmd
}

// serveMCP runs the MCP stdio transport until ctx ends or stdin closes.
func serveMCP(ctx context.Context, controller *server.Controller, logger *zap.Logger) error {
	stdio := mcpserver.NewStdioServer(server.NewMCPServer(controller, Version))
	stdio.SetErrorLogger(zap.NewStdLog(logger.Named("mcp")))
	logger.Info("Serving MCP tools on stdio.")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
