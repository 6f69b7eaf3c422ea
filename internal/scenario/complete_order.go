// internal/scenario/complete_order.go
package scenario

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operis-e2e/internal/config"
	"github.com/xkilldash9x/operis-e2e/internal/harness"
)

const (
	CompleteOrderName = "complete-order"

	noPendingScreenshot    = "no_pending_orders.png"
	verificationScreenshot = "verification.png"
)

// CompleteOrder completes the first pending production order through its
// dialog, waits for the success toast and checks the same order now reads
// completed.
func CompleteOrder(cfg *config.Config) harness.ScenarioFunc {
	sc := cfg.Scenarios.CompleteOrder
	return func(ctx context.Context, env *harness.Env) error {
		toast, err := regexp.Compile(sc.ToastPattern)
		if err != nil {
			return harness.Fail(harness.AssertionFailure, "compile toast pattern", err)
		}

		if err := login(ctx, env, sc.Credentials, sc.Provision); err != nil {
			return err
		}
		if err := env.Nav.Navigate(ctx, OrdersView); err != nil {
			return err
		}

		order, err := env.Driver.LocateFirst(ctx, PendingOrder)
		if errors.Is(err, harness.ErrNoMatch) {
			env.Progress("no pending orders found, nothing to complete")
			if _, shotErr := env.Screenshot(ctx, noPendingScreenshot); shotErr != nil {
				env.Logger.Warn("Failed to capture precondition screenshot.", zap.Error(shotErr))
			}
			return harness.Fail(harness.PreconditionNotMet, "locate pending order", err)
		}
		if err != nil {
			return harness.Fail(harness.AssertionFailure, "locate pending order", err)
		}
		env.Record("order_id", order.ID)
		env.Progress("completing order %s", order.ID)

		if err := env.Driver.Act(ctx, order, completeOrder(sc.Quantity)); err != nil {
			return err
		}
		text, err := env.Driver.AwaitToast(ctx, harness.ToastExpectation{Selector: successToast, Pattern: toast})
		if err != nil {
			return err
		}
		env.Record("toast", text)

		if err := env.Driver.Reverify(ctx, order.ID, CompletedOrder); err != nil {
			return err
		}
		env.Progress("order %s is %s", order.ID, CompletedOrder.BadgeText)

		if _, err := env.Screenshot(ctx, verificationScreenshot); err != nil {
			return harness.Fail(harness.AssertionFailure, "capture verification", err)
		}
		return nil
	}
}

// login signs in and records the provisioned user, if any.
func login(ctx context.Context, env *harness.Env, creds config.CredentialsConfig, provision bool) error {
	account, err := env.Boot.Login(ctx, harness.Credentials{
		Tenant:    creds.Tenant,
		Email:     creds.Email,
		Password:  creds.Password,
		Provision: provision,
	})
	if err != nil {
		return err
	}
	if account.UserID != "" {
		env.Record("user_id", account.UserID)
	}
	if provision {
		env.Record("user_existed", strconv.FormatBool(account.Existed))
	}
	env.Progress("logged in as %s on %s", creds.Email, creds.Tenant)
	return nil
}
