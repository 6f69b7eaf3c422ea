// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operis-e2e/internal/config"
)

const defaultStartTimeout = 30 * time.Second

// Manager owns the browser process. Pages are tabs opened in that process and
// tracked so Shutdown can wait for them.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	// allocatorCtx owns the Chrome process; browserCtx is its first tab and
	// keeps the process alive while pages come and go.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	wg sync.WaitGroup
}

// NewManager launches the browser and verifies it responds before returning.
// Canceling ctx after it returns does not stop the browser; call Shutdown.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.cfg.Browser.Headless))

	// The process is not tied to ctx; Shutdown ends it. ctx only bounds the start.
	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(Detach(ctx), AllocatorOptions(m.cfg.Browser)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx, m.contextOptions()...)

	startTimeout := m.cfg.Waits.BrowserStart
	if startTimeout <= 0 {
		startTimeout = defaultStartTimeout
	}
	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	fail := func(err error) error {
		m.browserCancel()
		m.allocatorCancel()
		if startCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("browser did not respond within %v: %w", startTimeout, context.DeadlineExceeded)
		}
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	if err := attach(m.browserCtx, startCtx); err != nil {
		return fail(err)
	}
	runCtx, cancelRun := CombineContext(m.browserCtx, startCtx)
	defer cancelRun()
	if err := chromedp.Run(runCtx, chromedp.Navigate("about:blank")); err != nil {
		return fail(err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// attach performs the first Run on a chromedp context. That Run binds the
// browser or tab to the context it receives, so it is given the long-lived
// context itself and bound is only waited on.
func attach(ctx, bound context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(ctx) }()
	select {
	case err := <-errc:
		return err
	case <-bound.Done():
		return bound.Err()
	}
}

func (m *Manager) contextOptions() []chromedp.ContextOption {
	sugar := m.logger.Sugar()
	opts := []chromedp.ContextOption{
		chromedp.WithLogf(sugar.Infof),
		chromedp.WithErrorf(sugar.Errorf),
	}
	if m.cfg.Browser.Debug {
		opts = append(opts, chromedp.WithDebugf(sugar.Debugf))
	}
	return opts
}

// AllocatorOptions assembles the Chrome flags for the configured browser.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	// Later flags override earlier ones, so the defaults' headless flag is
	// replaced by the configured value.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("disable-extensions", true),
	)
	if cfg.IgnoreTLSErrors {
		opts = append(opts,
			chromedp.Flag("ignore-certificate-errors", true),
			chromedp.Flag("allow-insecure-localhost", true),
		)
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	// Custom arguments from the config file, "--name=value" or "--name".
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if flagName == "" {
			continue
		}
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Containers on Linux need these to start Chrome at all.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// NewPage opens a fresh tab. The caller must Close it.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	if m.browserCtx.Err() != nil {
		return nil, fmt.Errorf("browser is not running: %w", m.browserCtx.Err())
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	logger := m.logger.Named("page")

	// Dialogs would block every later CDP call on the tab, so accept them.
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			logger.Warn("Accepting JavaScript dialog.", zap.String("type", string(e.Type)), zap.String("message", e.Message))
			go func() {
				if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true)); err != nil && tabCtx.Err() == nil {
					logger.Debug("Failed to accept dialog.", zap.Error(err))
				}
			}()
		case *cdpruntime.EventExceptionThrown:
			if e.ExceptionDetails != nil {
				logger.Debug("Uncaught exception in page.", zap.String("text", e.ExceptionDetails.Text))
			}
		}
	})

	if err := attach(tabCtx, ctx); err != nil {
		tabCancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	m.wg.Add(1)
	p := newPage(tabCtx, tabCancel, logger, PageOptions{
		NavigationTimeout: m.cfg.Waits.Navigation,
		ActionTimeout:     m.cfg.Waits.Action,
	}, m.wg.Done)
	return p, nil
}

// Shutdown waits for open pages to close, then terminates the browser. The
// process is terminated when ctx expires even if pages are still open.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for open pages to close...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Debug("All pages have closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocatorCancel != nil {
		m.logger.Info("Shutting down browser process...")
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
