// internal/harness/bootstrap.go
package harness

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operis-e2e/internal/identity"
)

// ErrLoginRejected is wrapped when the application shows its login error toast.
var ErrLoginRejected = errors.New("login rejected by application")

// Credentials identify the tenant and user to sign in as.
type Credentials struct {
	Tenant   string
	Email    string
	Password string
	// Provision creates the user in the identity store before logging in.
	Provision bool
}

// LoginForm names the elements of the login page.
type LoginForm struct {
	Tenant   string
	Email    string
	Password string
	Submit   string
	// Landmark becomes visible only after a successful login.
	Landmark string
	// ErrorToast is the region the application reports login errors in.
	ErrorToast string
	// ErrorPattern selects which ErrorToast texts mean the login was rejected.
	ErrorPattern *regexp.Regexp
}

// Bootstrapper turns a fresh tab into an authenticated session.
type Bootstrapper struct {
	page         Page
	provisioner  identity.Provisioner
	baseURL      string
	form         LoginForm
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewBootstrapper builds a Bootstrapper. provisioner may be nil when no
// scenario asks for provisioning.
func NewBootstrapper(page Page, provisioner identity.Provisioner, baseURL string, form LoginForm, timeout, pollInterval time.Duration, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{
		page:         page,
		provisioner:  provisioner,
		baseURL:      baseURL,
		form:         form,
		timeout:      timeout,
		pollInterval: pollInterval,
		logger:       logger.Named("bootstrap"),
	}
}

// Login signs in and returns once the landmark is visible. Every failure is a
// LoginFailure, except provisioning errors which are a ProvisioningFailure.
// The returned Account is empty unless the user was provisioned.
func (b *Bootstrapper) Login(ctx context.Context, creds Credentials) (identity.Account, error) {
	var account identity.Account
	if creds.Provision {
		if b.provisioner == nil {
			return account, Fail(ProvisioningFailure, "provision user", errors.New("provisioning requested but identity provisioning is disabled"))
		}
		var err error
		account, err = b.provisioner.EnsureUser(ctx, creds.Email, creds.Password)
		if err != nil {
			return account, Fail(ProvisioningFailure, "provision user", err)
		}
	}

	b.logger.Info("Logging in.", zap.String("tenant", creds.Tenant), zap.String("email", creds.Email))
	if err := b.page.Navigate(ctx, b.baseURL); err != nil {
		return account, Fail(LoginFailure, "open login page", err)
	}

	fields := []struct{ selector, value string }{
		{b.form.Tenant, creds.Tenant},
		{b.form.Email, creds.Email},
		{b.form.Password, creds.Password},
	}
	for _, f := range fields {
		if err := b.page.Fill(ctx, f.selector, f.value); err != nil {
			return account, Fail(LoginFailure, "fill login form", err)
		}
	}
	if err := b.page.Click(ctx, b.form.Submit); err != nil {
		return account, Fail(LoginFailure, "submit login", err)
	}

	if err := b.awaitLandmark(ctx); err != nil {
		return account, Fail(LoginFailure, "await landmark", err)
	}
	b.logger.Info("Logged in.", zap.String("landmark", b.form.Landmark))
	return account, nil
}

// awaitLandmark waits for the landmark while watching for an error toast, so
// a rejected login fails at once instead of at the timeout.
func (b *Bootstrapper) awaitLandmark(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	err := poll(waitCtx, b.pollInterval, func(ctx context.Context) (bool, error) {
		state, err := b.page.State(ctx, b.form.Landmark)
		if err != nil {
			return false, err
		}
		if state.Visible {
			return true, nil
		}
		if b.form.ErrorToast == "" || b.form.ErrorPattern == nil {
			return false, nil
		}
		texts, err := b.page.Texts(ctx, b.form.ErrorToast)
		if err != nil {
			return false, err
		}
		if text, ok := firstMatch(texts, b.form.ErrorPattern); ok {
			return false, stop(fmt.Errorf("%w: %s", ErrLoginRejected, text))
		}
		return false, nil
	})
	if err != nil && !errors.Is(err, ErrLoginRejected) && waitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return fmt.Errorf("landmark '%s' not visible within %v: %w", b.form.Landmark, b.timeout, err)
	}
	return err
}

// firstMatch returns the first text the pattern matches.
func firstMatch(texts []string, pattern *regexp.Regexp) (string, bool) {
	for _, text := range texts {
		if pattern.MatchString(text) {
			return text, true
		}
	}
	return "", false
}
