// internal/harness/poll.go
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/operis-e2e/internal/browser"
)

const defaultPollInterval = 200 * time.Millisecond

// stopError ends a poll immediately instead of being retried.
type stopError struct{ err error }

func (s stopError) Error() string { return s.err.Error() }

func (s stopError) Unwrap() error { return s.err }

// stop marks err as final for poll.
func stop(err error) error { return stopError{err: err} }

// poll calls check immediately and then on every tick until it reports done
// or ctx ends. Every call re-reads the page, so nothing is carried across a
// wait. Check errors are treated as transient, since a page mid-navigation
// cannot be evaluated, unless they are wrapped with stop or the page is
// closed. The last transient error is attached to the timeout error.
func poll(ctx context.Context, interval time.Duration, check func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		lastErr error
		stopped stopError
	)
	for {
		done, err := check(ctx)
		switch {
		case err == nil && done:
			return nil
		case err != nil && errors.As(err, &stopped):
			return stopped.err
		case err != nil && errors.Is(err, browser.ErrPageClosed):
			return err
		case err != nil:
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
