// internal/browser/page.go
// Page is one browser tab driven over CDP. Every method bounds its own work
// with the caller's context plus an operation ceiling, and reports the most
// specific cause on failure: the caller's cancellation first, then a closed
// tab, then the operation's own timeout.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var (
	// ErrElementNotFound is returned when a selector matches nothing.
	ErrElementNotFound = errors.New("element not found")
	// ErrRowNotFound is returned when no row carries the requested ID.
	ErrRowNotFound = errors.New("row not found")
	// ErrControlNotFound is returned when a row has no matching control.
	ErrControlNotFound = errors.New("control not found in row")
	// ErrControlDisabled is returned when a row control cannot be clicked.
	ErrControlDisabled = errors.New("control is disabled")
	// ErrNoSelectableOption is returned when a select offers only placeholders.
	ErrNoSelectableOption = errors.New("no selectable option")
	// ErrPageClosed is returned for operations on a closed tab.
	ErrPageClosed = errors.New("page is closed")
)

// ElementState is a point-in-time view of the first element matching a selector.
type ElementState struct {
	Present  bool   `json:"present"`
	Visible  bool   `json:"visible"`
	Disabled bool   `json:"disabled"`
	Text     string `json:"text"`
}

// Badge is a status marker rendered inside a row.
type Badge struct {
	Classes []string `json:"classes"`
	Text    string   `json:"text"`
	Visible bool     `json:"visible"`
}

// HasClass reports whether the badge carries the given CSS class.
func (b Badge) HasClass(class string) bool {
	for _, c := range b.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// Row is a snapshot of one table row. Index is its position in document order.
type Row struct {
	Index   int      `json:"index"`
	ID      string   `json:"id"`
	Cells   []string `json:"cells"`
	Visible bool     `json:"visible"`
	Badges  []Badge  `json:"badges"`
}

// Page wraps a chromedp tab context.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	navigationTimeout time.Duration
	actionTimeout     time.Duration

	// runActionsFunc and evalFunc are swapped out in tests.
	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
	evalFunc       func(ctx context.Context, script string) ([]byte, error)

	closeOnce sync.Once
	onClose   func()
}

// PageOptions tunes a Page. Zero values fall back to defaults.
type PageOptions struct {
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
}

const (
	defaultNavigationTimeout = 10 * time.Second
	defaultActionTimeout     = 10 * time.Second

	// chromedp switches to JPEG for any quality below 100.
	pngQuality = 100
)

func newPage(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger, opts PageOptions, onClose func()) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Page{
		ctx:               ctx,
		cancel:            cancel,
		logger:            logger,
		navigationTimeout: opts.NavigationTimeout,
		actionTimeout:     opts.ActionTimeout,
		onClose:           onClose,
	}
	if p.navigationTimeout <= 0 {
		p.navigationTimeout = defaultNavigationTimeout
	}
	if p.actionTimeout <= 0 {
		p.actionTimeout = defaultActionTimeout
	}
	p.runActionsFunc = p.runActions
	p.evalFunc = p.evaluate
	return p
}

// runActions executes CDP actions on the tab, canceled by either the tab or ctx.
func (p *Page) runActions(ctx context.Context, actions ...chromedp.Action) error {
	if p.ctx.Err() != nil {
		return ErrPageClosed
	}
	combined, cancel := CombineContext(p.ctx, ctx)
	defer cancel()

	err := chromedp.Run(combined, actions...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrPageClosed, err)
		}
	}
	return err
}

// evaluate runs a script and returns its JSON result. A null or undefined
// result comes back as "null".
func (p *Page) evaluate(ctx context.Context, script string) ([]byte, error) {
	var raw []byte
	err := p.runActionsFunc(ctx, chromedp.Evaluate(script, &raw, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithReturnByValue(true).WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []byte("null"), nil
	}
	return raw, nil
}

// wrapErr keeps the error precedence consistent across operations.
func (p *Page) wrapErr(ctx, opCtx context.Context, op, target string, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%s '%s' canceled: %w", op, target, ctx.Err())
	case p.ctx.Err() != nil || errors.Is(err, ErrPageClosed):
		return fmt.Errorf("%s '%s': %w", op, target, ErrPageClosed)
	case opCtx.Err() == context.DeadlineExceeded:
		return fmt.Errorf("%s '%s' timed out: %w", op, target, context.DeadlineExceeded)
	default:
		return fmt.Errorf("%s '%s' failed: %w", op, target, err)
	}
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	opCtx, cancel := context.WithTimeout(ctx, p.navigationTimeout)
	defer cancel()

	if err := p.runActionsFunc(opCtx, chromedp.Navigate(url)); err != nil {
		return p.wrapErr(ctx, opCtx, "navigate", url, err)
	}
	return nil
}

// WaitVisible blocks until selector is visible. Only ctx bounds the wait.
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	if err := p.runActionsFunc(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return p.wrapErr(ctx, ctx, "wait visible", selector, err)
	}
	return nil
}

// Click waits for selector to become visible and clicks it.
func (p *Page) Click(ctx context.Context, selector string) error {
	p.logger.Debug("Clicking.", zap.String("selector", selector))
	opCtx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()

	err := p.runActionsFunc(opCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		return p.wrapErr(ctx, opCtx, "click", selector, err)
	}
	return nil
}

// Fill replaces the value of an input and fires input and change events.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	opCtx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()

	if err := p.runActionsFunc(opCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return p.wrapErr(ctx, opCtx, "fill", selector, err)
	}
	var ok bool
	if err := p.evalInto(opCtx, fillScript(selector, value), &ok); err != nil {
		return p.wrapErr(ctx, opCtx, "fill", selector, err)
	}
	if !ok {
		return fmt.Errorf("fill '%s': %w", selector, ErrElementNotFound)
	}
	return nil
}

// SelectFirstOption chooses the first real option of a select element and
// returns its value.
func (p *Page) SelectFirstOption(ctx context.Context, selector string) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()

	var value *string
	if err := p.evalInto(opCtx, selectFirstOptionScript(selector), &value); err != nil {
		return "", p.wrapErr(ctx, opCtx, "select option", selector, err)
	}
	switch {
	case value == nil:
		return "", fmt.Errorf("select option '%s': %w", selector, ErrElementNotFound)
	case *value == "":
		return "", fmt.Errorf("select option '%s': %w", selector, ErrNoSelectableOption)
	}
	p.logger.Debug("Selected option.", zap.String("selector", selector), zap.String("value", *value))
	return *value, nil
}

// State samples the first element matching selector. A missing element is
// not an error.
func (p *Page) State(ctx context.Context, selector string) (ElementState, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()

	var state ElementState
	if err := p.evalInto(opCtx, stateScript(selector), &state); err != nil {
		return ElementState{}, p.wrapErr(ctx, opCtx, "inspect", selector, err)
	}
	return state, nil
}

// Texts returns the trimmed text of every visible element matching selector.
func (p *Page) Texts(ctx context.Context, selector string) ([]string, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()

	var texts []string
	if err := p.evalInto(opCtx, textsScript(selector), &texts); err != nil {
		return nil, p.wrapErr(ctx, opCtx, "read text", selector, err)
	}
	return texts, nil
}

// Rows snapshots every element matching rowSelector in document order.
func (p *Page) Rows(ctx context.Context, rowSelector, badgeSelector string) ([]Row, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()

	var rows []Row
	if err := p.evalInto(opCtx, rowsScript(rowSelector, badgeSelector), &rows); err != nil {
		return nil, p.wrapErr(ctx, opCtx, "read rows", rowSelector, err)
	}
	return rows, nil
}

// ClickInRow clicks the control inside the row whose ID is rowID. The row is
// looked up again on each call.
func (p *Page) ClickInRow(ctx context.Context, rowSelector, rowID, control string) error {
	p.logger.Debug("Clicking row control.", zap.String("row", rowID), zap.String("control", control))
	opCtx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()

	var status string
	if err := p.evalInto(opCtx, clickInRowScript(rowSelector, rowID, control), &status); err != nil {
		return p.wrapErr(ctx, opCtx, "click in row", rowID, err)
	}
	switch status {
	case clickOK:
		return nil
	case clickRowNotFound:
		return fmt.Errorf("row '%s': %w", rowID, ErrRowNotFound)
	case clickControlNotFound:
		return fmt.Errorf("row '%s' control '%s': %w", rowID, control, ErrControlNotFound)
	case clickControlDisabled:
		return fmt.Errorf("row '%s' control '%s': %w", rowID, control, ErrControlDisabled)
	default:
		return fmt.Errorf("row '%s': unexpected click result %q", rowID, status)
	}
}

// Screenshot captures the full page as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()

	var buf []byte
	if err := p.runActionsFunc(opCtx, chromedp.FullScreenshot(&buf, pngQuality)); err != nil {
		return nil, p.wrapErr(ctx, opCtx, "screenshot", "page", err)
	}
	return buf, nil
}

// HTML returns the serialized document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()

	var html string
	if err := p.runActionsFunc(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", p.wrapErr(ctx, opCtx, "dump html", "html", err)
	}
	return html, nil
}

// Close shuts the tab. It is safe to call more than once.
func (p *Page) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		if p.ctx.Err() == nil {
			// chromedp.Cancel closes the target and waits for it; bound it by ctx.
			done := make(chan error, 1)
			go func() { done <- chromedp.Cancel(p.ctx) }()
			select {
			case err = <-done:
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		if p.cancel != nil {
			p.cancel()
		}
		if p.onClose != nil {
			p.onClose()
		}
	})
	return err
}

func (p *Page) evalInto(ctx context.Context, script string, v interface{}) error {
	raw, err := p.evalFunc(ctx, script)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode script result: %w (payload: %s)", err, truncate(raw, 256))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
