// internal/harness/fake_page_test.go
package harness

import (
	"context"
	"fmt"
	"sync"

	"github.com/xkilldash9x/operis-e2e/internal/browser"
)

// fakePage is a scripted tab. Functions left nil fall back to benign
// defaults; every call is recorded in order.
type fakePage struct {
	mu    sync.Mutex
	calls []string

	navigate    func(url string) error
	fill        func(selector, value string) error
	click       func(selector string) error
	waitVisible func(ctx context.Context, selector string) error
	state       func(selector string) browser.ElementState
	texts       func(selector string) []string
	rows        func(call int) []browser.Row
	rowsErr     func(call int) error
	clickInRow  func(rowID, control string) error
	selectValue string

	rowCalls int
	closed   int
}

func (f *fakePage) record(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakePage) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.record("navigate %s", url)
	if f.navigate != nil {
		return f.navigate(url)
	}
	return nil
}

func (f *fakePage) WaitVisible(ctx context.Context, selector string) error {
	f.record("wait %s", selector)
	if f.waitVisible != nil {
		return f.waitVisible(ctx, selector)
	}
	return nil
}

func (f *fakePage) Click(ctx context.Context, selector string) error {
	f.record("click %s", selector)
	if f.click != nil {
		return f.click(selector)
	}
	return nil
}

func (f *fakePage) Fill(ctx context.Context, selector, value string) error {
	f.record("fill %s=%s", selector, value)
	if f.fill != nil {
		return f.fill(selector, value)
	}
	return nil
}

func (f *fakePage) SelectFirstOption(ctx context.Context, selector string) (string, error) {
	f.record("select %s", selector)
	if f.selectValue == "" {
		return "", browser.ErrNoSelectableOption
	}
	return f.selectValue, nil
}

func (f *fakePage) State(ctx context.Context, selector string) (browser.ElementState, error) {
	if f.state != nil {
		return f.state(selector), nil
	}
	return browser.ElementState{}, nil
}

func (f *fakePage) Texts(ctx context.Context, selector string) ([]string, error) {
	if f.texts != nil {
		return f.texts(selector), nil
	}
	return nil, nil
}

func (f *fakePage) Rows(ctx context.Context, rowSelector, badgeSelector string) ([]browser.Row, error) {
	f.mu.Lock()
	f.rowCalls++
	call := f.rowCalls
	f.mu.Unlock()
	if f.rowsErr != nil {
		if err := f.rowsErr(call); err != nil {
			return nil, err
		}
	}
	if f.rows != nil {
		return f.rows(call), nil
	}
	return nil, nil
}

func (f *fakePage) ClickInRow(ctx context.Context, rowSelector, rowID, control string) error {
	f.record("click-in-row %s %s", rowID, control)
	if f.clickInRow != nil {
		return f.clickInRow(rowID, control)
	}
	return nil
}

// pngSignature opens every PNG file.
var pngSignature = []byte("\x89PNG\r\n\x1a\n")

func (f *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	f.record("screenshot")
	return append(append([]byte{}, pngSignature...), "fake"...), nil
}

func (f *fakePage) HTML(ctx context.Context) (string, error) {
	f.record("html")
	return "<html><body>fake</body></html>", nil
}

func (f *fakePage) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// pageSourceFunc adapts a function to PageSource.
type pageSourceFunc func(ctx context.Context) (ClosablePage, error)

func (f pageSourceFunc) NewPage(ctx context.Context) (ClosablePage, error) { return f(ctx) }

// row builds a visible row with one visible badge.
func row(index int, id, badgeClass, badgeText string) browser.Row {
	return browser.Row{
		Index:   index,
		ID:      id,
		Cells:   []string{id, "item", badgeText},
		Visible: true,
		Badges: []browser.Badge{{
			Classes: []string{"badge", badgeClass},
			Text:    badgeText,
			Visible: true,
		}},
	}
}
