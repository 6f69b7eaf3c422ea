// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operis-e2e/internal/config"
	"github.com/xkilldash9x/operis-e2e/internal/harness"
	"github.com/xkilldash9x/operis-e2e/internal/observability"
)

// Reporter collects scenario outcomes and writes the run report.
type Reporter interface {
	// Write records one scenario outcome.
	Write(outcome harness.Outcome) error
	// Close ends the run, renders the report and closes the output.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// renderFunc writes a finished run in one format.
type renderFunc func(w io.Writer, run *Run) error

// New creates a reporter for format. An empty path or "stdout" writes to
// stdout, which is then never closed.
func New(format, outputPath string, run *Run) (Reporter, error) {
	var render renderFunc
	switch format {
	case config.ReportFormatText:
		render = renderText
	case config.ReportFormatJSON:
		render = renderJSON
	case config.ReportFormatJUnit:
		render = renderJUnit
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return newReporter(writer, run, render), nil
}

// reporter buffers outcomes in memory; nothing is written before Close.
type reporter struct {
	writer io.WriteCloser
	run    *Run
	render renderFunc
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	closed bool
}

func newReporter(writer io.WriteCloser, run *Run, render renderFunc) *reporter {
	return &reporter{
		writer: writer,
		run:    run,
		render: render,
		logger: observability.GetLogger().Named("reporter"),
		now:    time.Now,
	}
}

func (r *reporter) Write(outcome harness.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("report for run %s is already closed", r.run.ID)
	}
	r.run.Outcomes = append(r.run.Outcomes, outcome)
	return nil
}

func (r *reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.run.EndedAt.IsZero() {
		r.run.EndedAt = r.now()
	}

	summary := r.run.Summary()
	r.logger.Info("Finalizing run report",
		zap.String("run_id", r.run.ID),
		zap.Int("scenarios", summary.Total),
		zap.Int("failed", summary.Failed),
	)

	renderErr := r.render(r.writer, r.run)
	// Always attempt to close the writer, regardless of rendering success.
	closeErr := r.writer.Close()

	if renderErr != nil {
		r.logger.Error("Failed to render run report", zap.Error(renderErr))
		return fmt.Errorf("failed to render report: %w", renderErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
