// internal/harness/page.go
package harness

import (
	"context"

	"github.com/xkilldash9x/operis-e2e/internal/browser"
)

// Page is the part of a browser tab the harness drives. *browser.Page
// satisfies it; tests use a scripted fake.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SelectFirstOption(ctx context.Context, selector string) (string, error)
	State(ctx context.Context, selector string) (browser.ElementState, error)
	Texts(ctx context.Context, selector string) ([]string, error)
	Rows(ctx context.Context, rowSelector, badgeSelector string) ([]browser.Row, error)
	ClickInRow(ctx context.Context, rowSelector, rowID, control string) error
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
}

// ClosablePage is a Page the capturer owns and must release.
type ClosablePage interface {
	Page
	Close(ctx context.Context) error
}

// PageSource opens one tab per scenario.
type PageSource interface {
	NewPage(ctx context.Context) (ClosablePage, error)
}

// BrowserPages adapts a *browser.Manager to PageSource.
type BrowserPages struct {
	Manager *browser.Manager
}

// NewPage opens a tab in the managed browser.
func (b BrowserPages) NewPage(ctx context.Context) (ClosablePage, error) {
	page, err := b.Manager.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return page, nil
}

var _ ClosablePage = (*browser.Page)(nil)
