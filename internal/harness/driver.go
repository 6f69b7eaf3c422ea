// internal/harness/driver.go
package harness

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operis-e2e/internal/browser"
)

// SelectionPolicy decides which row wins when several match.
type SelectionPolicy int

const (
	// SelectFirstInDocumentOrder picks the topmost matching row. Two runs
	// against the same table may pick the same row; the captured ID is
	// reported so such races are visible.
	SelectFirstInDocumentOrder SelectionPolicy = iota
)

const defaultBadgeSelector = ".badge"

// RowPredicate matches table rows by a status badge. BadgeText matches as a
// case-insensitive substring of the badge's text.
type RowPredicate struct {
	// Rows selects the candidate rows, e.g. "#productionOrdersTableBody tr".
	Rows       string
	Badge      string
	BadgeClass string
	BadgeText  string
}

func (p RowPredicate) badgeSelector() string {
	if p.Badge == "" {
		return defaultBadgeSelector
	}
	return p.Badge
}

// badgeMatches reports whether b satisfies the predicate's class and text.
func (p RowPredicate) badgeMatches(b browser.Badge) bool {
	if p.BadgeClass != "" && !b.HasClass(p.BadgeClass) {
		return false
	}
	return containsFold(b.Text, p.BadgeText)
}

// Matches reports whether any badge in row satisfies the predicate.
func (p RowPredicate) Matches(row browser.Row) bool {
	for _, b := range row.Badges {
		if p.badgeMatches(b) {
			return true
		}
	}
	return false
}

// visibleMatch is Matches restricted to visible badges.
func (p RowPredicate) visibleMatch(row browser.Row) bool {
	for _, b := range row.Badges {
		if b.Visible && p.badgeMatches(b) {
			return true
		}
	}
	return false
}

func (p RowPredicate) String() string {
	return fmt.Sprintf("%s with %s.%s '%s'", p.Rows, p.badgeSelector(), p.BadgeClass, p.BadgeText)
}

// Entity is a located row. ID is read from the first cell before anything is
// mutated and is the only handle used afterwards.
type Entity struct {
	ID    string
	Index int
	Rows  string
}

// Field is a text input to fill in a dialog.
type Field struct {
	Selector string
	Value    string
}

// Dialog describes a modal opened by a row action.
type Dialog struct {
	Root    string
	Fields  []Field
	Selects []string
	Submit  string
}

// Action is a per-row control click, optionally followed by a dialog.
type Action struct {
	Name    string
	Control string
	Dialog  *Dialog
}

// ToastExpectation is a transient notification the driver waits for.
type ToastExpectation struct {
	Selector string
	Pattern  *regexp.Regexp
}

// DriverOptions bounds the driver's waits.
type DriverOptions struct {
	Policy        SelectionPolicy
	TableTimeout  time.Duration
	DialogTimeout time.Duration
	ActionTimeout time.Duration
	PollInterval  time.Duration
}

// Driver locates rows, acts on them and waits for the UI to confirm.
type Driver struct {
	page   Page
	opts   DriverOptions
	logger *zap.Logger
}

// NewDriver builds a Driver.
func NewDriver(page Page, opts DriverOptions, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{page: page, opts: opts, logger: logger.Named("driver")}
}

// LocateFirst waits up to the table timeout for a row matching pred and
// returns it. It returns an error wrapping ErrNoMatch when the table could be
// read but no row matched. A table that could never be read is an error of
// its own, not a missing row.
func (d *Driver) LocateFirst(ctx context.Context, pred RowPredicate) (Entity, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.opts.TableTimeout)
	defer cancel()

	var (
		found Entity
		seen  int
		read  bool
	)
	err := poll(waitCtx, d.opts.PollInterval, func(ctx context.Context) (bool, error) {
		rows, err := d.page.Rows(ctx, pred.Rows, pred.badgeSelector())
		if err != nil {
			return false, err
		}
		read = true
		seen = len(rows)
		row, ok := selectRow(rows, pred, d.opts.Policy)
		if !ok {
			return false, nil
		}
		found = Entity{ID: row.ID, Index: row.Index, Rows: pred.Rows}
		return true, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Entity{}, ctx.Err()
		}
		if waitCtx.Err() == context.DeadlineExceeded && read {
			return Entity{}, fmt.Errorf("%w: %s among %d rows after %v: %w", ErrNoMatch, pred, seen, d.opts.TableTimeout, err)
		}
		return Entity{}, fmt.Errorf("failed to read %s: %w", pred.Rows, err)
	}
	d.logger.Info("Located row.", zap.String("id", found.ID), zap.Int("index", found.Index))
	return found, nil
}

// selectRow applies the policy to rows that match pred and carry an ID.
func selectRow(rows []browser.Row, pred RowPredicate, policy SelectionPolicy) (browser.Row, bool) {
	switch policy {
	case SelectFirstInDocumentOrder:
		for _, row := range rows {
			if row.ID != "" && pred.Matches(row) {
				return row, true
			}
		}
	}
	return browser.Row{}, false
}

// Act clicks the action's control in the entity's row and completes its
// dialog, if any.
func (d *Driver) Act(ctx context.Context, entity Entity, action Action) error {
	step := action.Name
	d.logger.Info("Acting on row.", zap.String("id", entity.ID), zap.String("action", action.Name))

	if err := d.page.ClickInRow(ctx, entity.Rows, entity.ID, action.Control); err != nil {
		return Fail(AssertionFailure, step, err)
	}
	if action.Dialog == nil {
		return nil
	}
	dialog := action.Dialog

	dialogCtx, cancel := context.WithTimeout(ctx, d.opts.DialogTimeout)
	defer cancel()
	if err := d.page.WaitVisible(dialogCtx, dialog.Root); err != nil {
		if dialogCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("dialog '%s' not visible within %v: %w", dialog.Root, d.opts.DialogTimeout, err)
		}
		return Fail(AssertionFailure, step+": open dialog", err)
	}

	for _, field := range dialog.Fields {
		if err := d.page.Fill(ctx, field.Selector, field.Value); err != nil {
			return Fail(AssertionFailure, step+": fill dialog", err)
		}
	}
	for _, sel := range dialog.Selects {
		value, err := d.page.SelectFirstOption(ctx, sel)
		if err != nil {
			return Fail(AssertionFailure, step+": choose option", err)
		}
		d.logger.Debug("Chose option.", zap.String("select", sel), zap.String("value", value))
	}
	if err := d.page.Click(ctx, dialog.Submit); err != nil {
		return Fail(AssertionFailure, step+": submit dialog", err)
	}
	return nil
}

// AwaitToast waits up to the action timeout for a toast matching the
// expectation and returns its text.
func (d *Driver) AwaitToast(ctx context.Context, exp ToastExpectation) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.opts.ActionTimeout)
	defer cancel()

	var (
		matched string
		last    []string
	)
	err := poll(waitCtx, d.opts.PollInterval, func(ctx context.Context) (bool, error) {
		texts, err := d.page.Texts(ctx, exp.Selector)
		if err != nil {
			return false, err
		}
		if len(texts) > 0 {
			last = texts
		}
		text, ok := firstMatch(texts, exp.Pattern)
		matched = text
		return ok, nil
	})
	if err != nil {
		if waitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("no toast matching /%s/ within %v (seen: %q): %w", exp.Pattern, d.opts.ActionTimeout, last, err)
		}
		return "", Fail(AssertionFailure, "await toast", err)
	}
	d.logger.Info("Toast confirmed.", zap.String("text", matched))
	return matched, nil
}

// Reverify finds the row by id again and waits up to the action timeout for
// a visible badge matching pred.
func (d *Driver) Reverify(ctx context.Context, id string, pred RowPredicate) error {
	waitCtx, cancel := context.WithTimeout(ctx, d.opts.ActionTimeout)
	defer cancel()

	var (
		present bool
		badges  []string
	)
	err := poll(waitCtx, d.opts.PollInterval, func(ctx context.Context) (bool, error) {
		rows, err := d.page.Rows(ctx, pred.Rows, pred.badgeSelector())
		if err != nil {
			return false, err
		}
		row, ok := rowByID(rows, id)
		present = ok
		if !ok {
			return false, nil
		}
		badges = badges[:0]
		for _, b := range row.Badges {
			badges = append(badges, b.Text)
		}
		return pred.visibleMatch(row), nil
	})
	if err != nil {
		if waitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			if !present {
				err = fmt.Errorf("row '%s' no longer present within %v: %w", id, d.opts.ActionTimeout, err)
			} else {
				err = fmt.Errorf("row '%s' shows %q, want visible %s.%s '%s' within %v: %w",
					id, badges, pred.badgeSelector(), pred.BadgeClass, pred.BadgeText, d.opts.ActionTimeout, err)
			}
		}
		return Fail(AssertionFailure, "reverify row", err)
	}
	d.logger.Info("Row re-verified.", zap.String("id", id), zap.String("badge", pred.BadgeText))
	return nil
}

// WaitRows waits up to the table timeout until the rows satisfy ready and
// returns them.
func (d *Driver) WaitRows(ctx context.Context, rowSelector string, ready func([]browser.Row) bool) ([]browser.Row, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.opts.TableTimeout)
	defer cancel()

	var rows []browser.Row
	err := poll(waitCtx, d.opts.PollInterval, func(ctx context.Context) (bool, error) {
		current, err := d.page.Rows(ctx, rowSelector, defaultBadgeSelector)
		if err != nil {
			return false, err
		}
		rows = current
		return ready(current), nil
	})
	if err != nil {
		if waitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("rows '%s' not ready within %v (%d present): %w", rowSelector, d.opts.TableTimeout, len(rows), err)
		}
		return rows, err
	}
	return rows, nil
}

// HasRows is a WaitRows condition satisfied by at least one visible row.
func HasRows(rows []browser.Row) bool {
	for _, row := range rows {
		if row.Visible {
			return true
		}
	}
	return false
}

func rowByID(rows []browser.Row, id string) (browser.Row, bool) {
	for _, row := range rows {
		if row.ID == id {
			return row, true
		}
	}
	return browser.Row{}, false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
