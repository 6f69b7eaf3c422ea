// internal/harness/navigator.go
package harness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// View is an in-app page reached through a navigation link.
type View struct {
	Name string
	// Link is the navigation control, e.g. a[data-page='productsPage'].
	Link string
	// Landmark is the view's root container.
	Landmark string
}

// Navigator switches between views of an authenticated session.
type Navigator struct {
	page    Page
	timeout time.Duration
	logger  *zap.Logger
}

// NewNavigator builds a Navigator bounded by timeout per navigation.
func NewNavigator(page Page, timeout time.Duration, logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{page: page, timeout: timeout, logger: logger.Named("navigator")}
}

// Navigate clicks the view's link and waits for its landmark.
func (n *Navigator) Navigate(ctx context.Context, view View) error {
	step := "navigate to " + view.Name
	n.logger.Debug("Navigating.", zap.String("view", view.Name), zap.String("link", view.Link))

	navCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.page.Click(navCtx, view.Link); err != nil {
		return Fail(NavigationFailure, step, err)
	}
	if err := n.page.WaitVisible(navCtx, view.Landmark); err != nil {
		if navCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("landmark '%s' not visible within %v: %w", view.Landmark, n.timeout, err)
		}
		return Fail(NavigationFailure, step, err)
	}
	return nil
}
