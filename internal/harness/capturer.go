// internal/harness/capturer.go
package harness

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operis-e2e/internal/browser"
	"github.com/xkilldash9x/operis-e2e/internal/config"
	"github.com/xkilldash9x/operis-e2e/internal/identity"
)

// Status is the outcome of one scenario.
type Status string

const (
	StatusPassed             Status = "passed"
	StatusPreconditionNotMet Status = "precondition_not_met"
	StatusFailed             Status = "failed"
)

const (
	errorScreenshot = "error.png"
	errorHTML       = "error.html"
	captureTimeout  = 15 * time.Second
	closeTimeout    = 10 * time.Second
)

// Outcome records what happened in one scenario.
type Outcome struct {
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	Kind      FailureKind       `json:"kind,omitempty"`
	Step      string            `json:"step,omitempty"`
	Message   string            `json:"message,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"-"`
	Artifacts []string          `json:"artifacts,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Failed reports whether the outcome fails the run.
func (o Outcome) Failed() bool { return o.Status == StatusFailed }

// DetailKeys returns the detail keys in sorted order.
func (o Outcome) DetailKeys() []string {
	keys := make([]string, 0, len(o.Details))
	for k := range o.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ScenarioFunc is a scenario body. It owns env.Page for its whole run.
type ScenarioFunc func(ctx context.Context, env *Env) error

// Env is what a scenario body works with.
type Env struct {
	Page   Page
	Boot   *Bootstrapper
	Nav    *Navigator
	Driver *Driver
	Logger *zap.Logger

	artifacts *Artifacts
	outcome   *Outcome
	out       io.Writer
}

// Progress prints a progress line for humans.
func (e *Env) Progress(format string, args ...interface{}) {
	fmt.Fprintf(e.out, "  · "+format+"\n", args...)
}

// Record attaches a detail to the scenario's outcome.
func (e *Env) Record(key, value string) {
	if e.outcome.Details == nil {
		e.outcome.Details = make(map[string]string)
	}
	e.outcome.Details[key] = value
}

// Screenshot captures the page into the scenario's artifact directory.
func (e *Env) Screenshot(ctx context.Context, name string) (string, error) {
	data, err := e.Page.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to capture %s: %w", name, err)
	}
	path, err := e.artifacts.Save(name, data)
	if err != nil {
		return "", err
	}
	e.outcome.Artifacts = append(e.outcome.Artifacts, path)
	e.Progress("screenshot saved to %s", path)
	return path, nil
}

// Artifacts writes files under one directory, creating it on first use.
type Artifacts struct {
	dir string
}

// NewArtifacts returns a writer rooted at dir.
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{dir: dir}
}

// Save writes data to name and returns the file's path.
func (a *Artifacts) Save(name string, data []byte) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory '%s': %w", a.dir, err)
	}
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact '%s': %w", path, err)
	}
	return path, nil
}

// Options configures the components a Capturer hands to each scenario.
type Options struct {
	BaseURL      string
	ArtifactsDir string
	DumpHTML     bool
	Waits        config.WaitsConfig
	Login        LoginForm
}

// Capturer runs scenarios so that each one owns a fresh tab, always releases
// it, and leaves a screenshot behind when it fails.
type Capturer struct {
	pages       PageSource
	provisioner identity.Provisioner
	opts        Options
	out         io.Writer
	logger      *zap.Logger
	now         func() time.Time
}

// NewCapturer builds a Capturer. Progress and summaries are printed to out.
func NewCapturer(pages PageSource, provisioner identity.Provisioner, opts Options, out io.Writer, logger *zap.Logger) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Capturer{
		pages:       pages,
		provisioner: provisioner,
		opts:        opts,
		out:         out,
		logger:      logger.Named("capturer"),
		now:         time.Now,
	}
}

// Run executes fn in a new tab and reports its outcome. Failures and panics
// never escape; they are turned into an Outcome, a screenshot and a printed
// summary.
func (c *Capturer) Run(ctx context.Context, name string, fn ScenarioFunc) Outcome {
	outcome := Outcome{Name: name, StartedAt: c.now()}
	logger := c.logger.With(zap.String("scenario", name))
	artifacts := NewArtifacts(filepath.Join(c.opts.ArtifactsDir, name))
	fmt.Fprintf(c.out, "▶ %s\n", name)

	page, err := c.pages.NewPage(ctx)
	if err != nil {
		c.finish(&outcome, Fail(AssertionFailure, "open browser tab", err))
		return outcome
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := page.Close(closeCtx); err != nil {
			logger.Warn("Failed to close browser tab.", zap.Error(err))
		}
	}()

	env := c.newEnv(page, artifacts, &outcome, logger)
	err = c.protect(ctx, env, fn)
	if KindOf(err).Fatal() {
		c.capture(ctx, page, artifacts, &outcome, logger)
	}
	c.finish(&outcome, err)
	return outcome
}

func (c *Capturer) newEnv(page Page, artifacts *Artifacts, outcome *Outcome, logger *zap.Logger) *Env {
	w := c.opts.Waits
	return &Env{
		Page: page,
		Boot: NewBootstrapper(page, c.provisioner, c.opts.BaseURL, c.opts.Login, w.Login, w.PollInterval, logger),
		Nav:  NewNavigator(page, w.Navigation, logger),
		Driver: NewDriver(page, DriverOptions{
			Policy:        SelectFirstInDocumentOrder,
			TableTimeout:  w.Table,
			DialogTimeout: w.Dialog,
			ActionTimeout: w.Action,
			PollInterval:  w.PollInterval,
		}, logger),
		Logger:    logger,
		artifacts: artifacts,
		outcome:   outcome,
		out:       c.out,
	}
}

func (c *Capturer) protect(ctx context.Context, env *Env, fn ScenarioFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			env.Logger.Error("Scenario panicked.", zap.Any("panic", r), zap.Stack("stack"))
			err = Fail(AssertionFailure, "scenario", fmt.Errorf("panic: %v", r))
		}
	}()
	return fn(ctx, env)
}

// capture saves the failure screenshot and, when enabled, the page HTML. It
// runs on a detached context so a canceled or timed out run is still
// captured.
func (c *Capturer) capture(ctx context.Context, page Page, artifacts *Artifacts, outcome *Outcome, logger *zap.Logger) {
	captureCtx, cancel := context.WithTimeout(browser.Detach(ctx), captureTimeout)
	defer cancel()

	if shot, err := page.Screenshot(captureCtx); err != nil {
		logger.Error("Failed to capture failure screenshot.", zap.Error(err))
	} else if path, err := artifacts.Save(errorScreenshot, shot); err != nil {
		logger.Error("Failed to save failure screenshot.", zap.Error(err))
	} else {
		outcome.Artifacts = append(outcome.Artifacts, path)
	}

	if !c.opts.DumpHTML {
		return
	}
	if html, err := page.HTML(captureCtx); err != nil {
		logger.Warn("Failed to dump page HTML.", zap.Error(err))
	} else if path, err := artifacts.Save(errorHTML, []byte(html)); err != nil {
		logger.Warn("Failed to save page HTML.", zap.Error(err))
	} else {
		outcome.Artifacts = append(outcome.Artifacts, path)
	}
}

// finish classifies err into the outcome and prints the summary line.
func (c *Capturer) finish(outcome *Outcome, err error) {
	outcome.Duration = c.now().Sub(outcome.StartedAt)
	kind := KindOf(err)
	switch {
	case err == nil:
		outcome.Status = StatusPassed
		fmt.Fprintf(c.out, "✓ %s passed in %s\n", outcome.Name, outcome.Duration.Round(time.Millisecond))
		return
	case kind == PreconditionNotMet:
		outcome.Status = StatusPreconditionNotMet
	default:
		outcome.Status = StatusFailed
	}
	outcome.Kind = kind
	outcome.Step = StepOf(err)
	outcome.Message = err.Error()

	if outcome.Status == StatusPreconditionNotMet {
		fmt.Fprintf(c.out, "⚠ %s: precondition not met: %s\n", outcome.Name, outcome.Message)
	} else {
		fmt.Fprintf(c.out, "✗ %s failed [%s]", outcome.Name, kind)
		if outcome.Step != "" {
			fmt.Fprintf(c.out, " at %s", outcome.Step)
		}
		fmt.Fprintf(c.out, "\n  error: %s\n", outcome.Message)
	}
	for _, path := range outcome.Artifacts {
		fmt.Fprintf(c.out, "  artifact: %s\n", path)
	}
	c.logger.Debug("Scenario finished.",
		zap.String("scenario", outcome.Name),
		zap.String("status", string(outcome.Status)),
		zap.String("kind", string(kind)),
		zap.Duration("duration", outcome.Duration))
}
