// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/examples"
	"github.com/xkilldash9x/stepwise/internal/observability"
	"github.com/xkilldash9x/stepwise/internal/walkthrough"
)

const examplePageName = "example:" + examples.PageFile

// alertRecorder collects alerts raised during a run so they end up in the report.
type alertRecorder struct {
	mu     sync.Mutex
	alerts []string
}

func (r *alertRecorder) Alert(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, message)
}

func (r *alertRecorder) Alerts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.alerts...)
}

// pageFlags are shared by every command that opens a page.
type pageFlags struct {
	page     string
	mode     string
	headless bool
	mapping  string
	location string
}

func (f *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.page, "page", "p", "", "page to walk (file path or URL; default is the bundled example page)")
	cmd.Flags().StringVar(&f.mode, "mode", "", "browser mode override: dom or chrome")
	cmd.Flags().BoolVar(&f.headless, "headless", true, "run chrome headless")
	cmd.Flags().StringVar(&f.mapping, "mapping", "", "mapping source override: none, example, file, http or postgres")
	cmd.Flags().StringVar(&f.location, "mapping-location", "", "mapping file path or URL")
}

// apply copies explicitly set flags onto cfg and revalidates it.
func (f *pageFlags) apply(cmd *cobra.Command, cfg config.Interface) error {
	if f.mode != "" {
		cfg.SetBrowserMode(f.mode)
	}
	if cmd.Flags().Changed("headless") {
		cfg.SetBrowserHeadless(f.headless)
	}
	if f.mapping != "" {
		cfg.SetMappingKind(f.mapping)
	}
	if f.location != "" {
		cfg.SetMappingLocation(f.location)
	}
	if c, ok := cfg.(*config.Config); ok {
		return c.Validate()
	}
	return nil
}

func newRunCmd() *cobra.Command {
	var (
		pf         pageFlags
		stepsPath  string
		useExample bool
		persist    bool
		output     string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a step collection to the end and prints a report",
		Long: `Loads a step collection, walks every step against the page once and
prints a YAML report of each step's outcome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stepsPath == "" && !useExample {
				return errors.New("either --steps or --example is required")
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

			recorder := &alertRecorder{}
			session := c.newSession(cfg, logger,
				walkthrough.WithNotifier(walkthrough.MultiNotifier{recorder, walkthrough.NewLogNotifier(logger)}))

			stepsName := stepsPath
			if useExample {
				stepsName = "example:" + examples.StepsFile
				err = session.LoadExample(ctx)
			} else {
				var data []byte
				if data, err = c.Fetcher.Fetch(ctx, stepsPath); err == nil {
					err = session.LoadBytes(ctx, data, schemas.FormatFromPath(stepsPath))
				}
			}
			if err != nil {
				return fmt.Errorf("failed to load steps: %w", err)
			}

			pageName := pf.page
			if pageName == "" {
				pageName = examplePageName
			}
			report, err := runReport(ctx, session, stepsName, pageName, recorder)
			if err != nil {
				return err
			}
			logger.Info("Walkthrough finished",
				zap.String("run_id", report.RunID),
				zap.Int("steps", len(report.Outcomes)),
				zap.Any("summary", report.Summary))

			if persist {
				s, err := c.openStore(ctx, cfg.Database(), logger)
				if err != nil {
					return fmt.Errorf("failed to open store: %w", err)
				}
				if err := s.PersistRun(ctx, report); err != nil {
					return err
				}
			}
			return writeReport(cmd.OutOrStdout(), output, report)
		},
	}

	pf.register(runCmd)
	runCmd.Flags().StringVarP(&stepsPath, "steps", "s", "", "step collection to run (JSON or YAML file, or URL)")
	runCmd.Flags().BoolVar(&useExample, "example", false, "run the bundled example collection")
	runCmd.Flags().BoolVar(&persist, "persist", false, "store the run report in Postgres")
	runCmd.Flags().StringVarP(&output, "output", "o", "", "write the report to this file instead of stdout")
	return runCmd
}

// runReport walks the loaded collection once and summarizes the outcomes.
func runReport(ctx context.Context, session *walkthrough.Session, stepsName, pageName string, recorder *alertRecorder) (*schemas.RunReport, error) {
	report := &schemas.RunReport{
		RunID:     uuid.NewString(),
		Steps:     stepsName,
		Page:      pageName,
		StartedAt: time.Now().UTC(),
		Summary:   map[string]int{},
	}

	steps := session.Steps()
	outcomes, err := session.RunToEnd(ctx)
	if err != nil {
		return nil, fmt.Errorf("walkthrough aborted: %w", err)
	}
	report.FinishedAt = time.Now().UTC()

	report.Outcomes = make([]schemas.StepOutcome, 0, len(outcomes))
	for i, out := range outcomes {
		so := schemas.StepOutcome{
			Index:    i,
			Action:   out.Action,
			Status:   string(out.Status),
			Stage:    string(out.Stage),
			Selector: out.Selector,
			Detail:   out.Detail,
			Message:  out.Message,
		}
		if i < len(steps) {
			so.StepID = steps[i].Identity()
			so.TargetText = steps[i].TargetText
		}
		report.Outcomes = append(report.Outcomes, so)
		report.Summary[so.Status]++
	}
	report.Alerts = recorder.Alerts()
	return report, nil
}

func writeReport(stdout io.Writer, path string, report *schemas.RunReport) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}
