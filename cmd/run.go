// cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operis-e2e/internal/browser"
	"github.com/xkilldash9x/operis-e2e/internal/config"
	"github.com/xkilldash9x/operis-e2e/internal/harness"
	"github.com/xkilldash9x/operis-e2e/internal/identity"
	"github.com/xkilldash9x/operis-e2e/internal/observability"
	"github.com/xkilldash9x/operis-e2e/internal/reporting"
	"github.com/xkilldash9x/operis-e2e/internal/scenario"
)

const shutdownTimeout = 15 * time.Second

// errScenariosFailed is returned when the run completed but at least one
// scenario failed. Its details are already in the report.
var errScenariosFailed = errors.New("one or more scenarios failed")

// runFlagKeys maps run flags to the configuration keys they override.
var runFlagKeys = map[string]string{
	"base-url":      "app.base_url",
	"artifacts-dir": "artifacts.dir",
	"headless":      "browser.headless",
	"report":        "report.path",
	"report-format": "report.format",
}

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var noProvision bool

	runCmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Runs verification scenarios against the application",
		Long: `Runs the named scenarios one after another, each in a fresh browser tab.
With no arguments every registered scenario runs. Scenarios whose precondition
is not met (for example, no pending order to complete) do not fail the run.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so they override file and env values.
			return bindFlags(cmd, runFlagKeys)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if noProvision {
				disableProvisioning(cfg)
			}

			selected, err := scenario.Default().Select(args)
			if err != nil {
				return err
			}

			deps, cleanup, err := initializeRunComponents(ctx, cfg, selected, cmd.OutOrStdout(), logger)
			if err != nil {
				return err
			}
			defer cleanup()

			return runScenarios(ctx, cfg, selected, deps)
		},
	}

	runCmd.Flags().String("base-url", "", "Base URL of the application under test. (Overrides config/env)")
	runCmd.Flags().String("artifacts-dir", "", "Directory for screenshots and page dumps. (Overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser without a window. (Overrides config/env)")
	runCmd.Flags().StringP("report", "o", "", "Report file path. If unset, the report is printed to stdout.")
	runCmd.Flags().StringP("report-format", "f", config.ReportFormatText, "Report format: text, json or junit.")
	runCmd.Flags().BoolVar(&noProvision, "no-provision", false, "Skip creating users in the identity emulator.")

	return runCmd
}

// disableProvisioning turns off every use of the identity emulator.
func disableProvisioning(cfg *config.Config) {
	cfg.Identity.Enabled = false
	cfg.Scenarios.CompleteOrder.Provision = false
	cfg.Scenarios.ProductsPagination.Provision = false
}

// runComponents is what a run needs besides its configuration.
type runComponents struct {
	Pages       harness.PageSource
	Provisioner identity.Provisioner
	Out         io.Writer
}

// initializeRunComponents starts the browser and, when a selected scenario
// provisions users, waits for the identity emulator.
func initializeRunComponents(ctx context.Context, cfg *config.Config, selected []scenario.Scenario, out io.Writer, logger *zap.Logger) (runComponents, func(), error) {
	deps := runComponents{Out: out}

	if cfg.Identity.Enabled && scenario.NeedsIdentity(cfg, selected) {
		p, err := identity.NewEmulatorProvisioner(cfg.Identity, nil, logger)
		if err != nil {
			return deps, nil, fmt.Errorf("failed to initialize identity provisioner: %w", err)
		}
		fmt.Fprintf(out, "Waiting for identity emulator at %s...\n", cfg.Identity.EmulatorURL)
		if err := p.WaitReady(ctx); err != nil {
			return deps, nil, err
		}
		deps.Provisioner = p
	}

	manager, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return deps, nil, fmt.Errorf("failed to initialize browser manager: %w", err)
	}
	deps.Pages = harness.BrowserPages{Manager: manager}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown", zap.Error(err))
		}
	}
	return deps, cleanup, nil
}

// runScenarios runs selected in order, writes the report and returns
// errScenariosFailed when any scenario failed.
func runScenarios(ctx context.Context, cfg *config.Config, selected []scenario.Scenario, deps runComponents) error {
	run := reporting.NewRun(cfg.App.BaseURL, time.Now())
	logger := observability.ForRun(run.ID)
	logger.Info("Starting run", zap.Int("scenarios", len(selected)), zap.String("base_url", cfg.App.BaseURL))

	reporter, err := reporting.New(cfg.Report.Format, cfg.Report.Path, run)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}

	capturer := harness.NewCapturer(deps.Pages, deps.Provisioner, harness.Options{
		BaseURL:      cfg.App.BaseURL,
		ArtifactsDir: cfg.Artifacts.Dir,
		DumpHTML:     cfg.Artifacts.DumpHTML,
		Waits:        cfg.Waits,
		Login:        scenario.LoginForm(),
	}, deps.Out, logger)

	for _, s := range selected {
		if ctx.Err() != nil {
			logger.Warn("Run aborted; remaining scenarios skipped", zap.String("next", s.Name))
			break
		}
		outcome := capturer.Run(ctx, s.Name, s.Build(cfg))
		if err := reporter.Write(outcome); err != nil {
			logger.Error("Failed to record outcome", zap.String("scenario", s.Name), zap.Error(err))
		}
	}

	if err := reporter.Close(); err != nil {
		return err
	}
	if cfg.Report.Path != "" {
		fmt.Fprintf(deps.Out, "Report written to %s\n", cfg.Report.Path)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("run %s aborted: %w", run.ID, ctx.Err())
	}
	if run.Failed() {
		return errScenariosFailed
	}
	return nil
}
