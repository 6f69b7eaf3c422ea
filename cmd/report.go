// File: cmd/report.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operis-e2e/internal/config"
	"github.com/xkilldash9x/operis-e2e/internal/observability"
	"github.com/xkilldash9x/operis-e2e/internal/reporting"
)

// newReportCmd creates and configures the `report` command.
func newReportCmd() *cobra.Command {
	var inputPath, outputPath, format string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Re-renders a saved JSON run report in another format",
		Long: `Reads a run report written with --report-format json and renders it again,
for example as JUnit XML for a CI system or as text for a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(observability.GetLogger(), inputPath, outputPath, format)
		},
	}

	reportCmd.Flags().StringVar(&inputPath, "from", "", "Path of the JSON run report to read (required)")
	_ = reportCmd.MarkFlagRequired("from")
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path. If unset, the report is printed to stdout.")
	reportCmd.Flags().StringVarP(&format, "format", "f", config.ReportFormatText, "Format for the output report: text, json or junit.")

	return reportCmd
}

// runReport contains the core, testable logic of the report command.
func runReport(logger *zap.Logger, inputPath, outputPath, format string) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open run report: %w", err)
	}
	run, err := reporting.ReadJSON(f)
	f.Close()
	if err != nil {
		return err
	}

	reporter, err := reporting.New(format, outputPath, run)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	if err := reporter.Close(); err != nil {
		return err
	}
	logger.Info("Report re-rendered.", zap.String("run_id", run.ID), zap.String("format", format), zap.String("output", outputPath))
	return nil
}
