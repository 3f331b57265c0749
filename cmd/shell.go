// File: cmd/shell.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/browser/network"
	"github.com/xkilldash9x/stepwise/internal/observability"
	"github.com/xkilldash9x/stepwise/internal/server"
	"github.com/xkilldash9x/stepwise/internal/walkthrough"
)

const shellHelp = `commands:
  load <file|url>   load a step collection
  example           load the bundled example collection
  start             go to the first step
  next              execute the current step and move forward
  prev              move back one step
  reset             go back to the empty state
  state             print the current state
  help              show this help
  quit              leave the shell
`

func newShellCmd() *cobra.Command {
	var pf pageFlags

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Steps through a walkthrough interactively",
		Args:  cobra.NoArgs,
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

			out := cmd.OutOrStdout()
			session := c.newSession(cfg, logger,
				walkthrough.WithNotifier(walkthrough.MultiNotifier{printNotifier{out}, walkthrough.NewLogNotifier(logger)}))
			sh := &shell{
				controller: server.NewController(session, cfg.Walkthrough().StepTimeout),
				fetcher:    c.Fetcher,
				out:        out,
			}
			return sh.run(ctx, cmd.InOrStdin())
		},
	}
	pf.register(shellCmd)
	return shellCmd
}

// printNotifier writes alerts straight to the shell output.
type printNotifier struct{ w io.Writer }

func (p printNotifier) Alert(_ context.Context, message string) {
	fmt.Fprintf(p.w, "! %s\n", message)
}

type shell struct {
	controller *server.Controller
	fetcher    *network.Fetcher
	out        io.Writer
}

// run reads one command per line until quit, EOF or cancellation.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	fmt.Fprint(s.out, shellHelp)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		name, rest := strings.ToLower(fields[0]), fields[1:]
		switch name {
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			fmt.Fprint(s.out, shellHelp)
			continue
		}

		if err := s.exec(ctx, name, rest); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func (s *shell) exec(ctx context.Context, name string, args []string) error {
	cmd := server.CommandData{Command: name}
	if name == server.CommandLoad {
		if len(args) != 1 {
			return errors.New("usage: load <file|url>")
		}
		data, err := s.fetcher.Fetch(ctx, args[0])
		if err != nil {
			return err
		}
		cmd.Contents = string(data)
		cmd.Format = string(schemas.FormatFromPath(args[0]))
	}

	res, err := s.controller.Do(ctx, cmd)
	if err != nil {
		return err
	}
	return s.print(res)
}

func (s *shell) print(res server.ControlResult) error {
	st := res.State
	fmt.Fprintf(s.out, "%s  %s\n", st.Counter, st.Label)
	if st.Highlight != nil {
		fmt.Fprintf(s.out, "  highlight: %s\n", st.Highlight.Selector)
	}
	if res.Outcome == nil {
		return nil
	}
	data, err := yaml.Marshal(res.Outcome)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		fmt.Fprintf(s.out, "  %s\n", line)
	}
	return nil
}
