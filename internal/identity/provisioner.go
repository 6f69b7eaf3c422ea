// internal/identity/provisioner.go
package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/operis-e2e/internal/config"
	"github.com/xkilldash9x/operis-e2e/internal/network"
)

// Provisioner ensures a test identity exists in an identity store before the
// harness logs in with it. Implementations must be idempotent: a user that
// already exists is a success.
type Provisioner interface {
	EnsureUser(ctx context.Context, email, password string) (Account, error)
}

// Account describes the identity that EnsureUser guaranteed.
type Account struct {
	Email string
	// UserID is the store's identifier; empty when the user already existed.
	UserID string
	// Existed is true when the store reported a duplicate.
	Existed bool
}

const (
	signUpPath = "/identitytoolkit.googleapis.com/v1/accounts:signUp"
	// emailExistsCode is the error message the identity toolkit returns for a duplicate.
	emailExistsCode = "EMAIL_EXISTS"
	// maxErrorBody bounds how much of a failed response is kept for diagnostics.
	maxErrorBody          = 4 << 10
	readinessPollInterval = 500 * time.Millisecond
)

var jwtParser = jwt.NewParser()

type signUpRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signUpResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	IDToken string `json:"idToken"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// EmulatorProvisioner creates users through the sign-up endpoint of a local
// identity toolkit emulator.
type EmulatorProvisioner struct {
	endpoint    string
	baseURL     string
	client      *http.Client
	logger      *zap.Logger
	limiter     *rate.Limiter
	maxAttempts int
	readiness   time.Duration
	group       singleflight.Group
}

// NewEmulatorProvisioner builds a provisioner from the identity configuration.
// A nil client selects the harness's default HTTP client.
func NewEmulatorProvisioner(cfg config.IdentityConfig, client *http.Client, logger *zap.Logger) (*EmulatorProvisioner, error) {
	if cfg.EmulatorURL == "" {
		return nil, fmt.Errorf("identity emulator URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(cfg.EmulatorURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid identity emulator URL '%s': %w", cfg.EmulatorURL, err)
	}

	if client == nil {
		clientCfg := network.NewDefaultClientConfig()
		if cfg.RequestTimeout > 0 {
			clientCfg.RequestTimeout = cfg.RequestTimeout
		}
		clientCfg.Logger = logger
		client = network.NewClient(clientCfg)
	}

	endpoint := *base
	endpoint.Path += signUpPath
	endpoint.RawQuery = url.Values{"key": []string{cfg.APIKey}}.Encode()

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryRate := cfg.RetryRate
	if retryRate <= 0 {
		retryRate = 1
	}

	return &EmulatorProvisioner{
		endpoint:    endpoint.String(),
		baseURL:     base.String(),
		client:      client,
		logger:      logger.Named("identity"),
		limiter:     rate.NewLimiter(rate.Limit(retryRate), 1),
		maxAttempts: maxAttempts,
		readiness:   cfg.ReadinessTimeout,
	}, nil
}

// EnsureUser creates the user or confirms it already exists. Concurrent calls
// for the same email share one request.
func (p *EmulatorProvisioner) EnsureUser(ctx context.Context, email, password string) (Account, error) {
	ch := p.group.DoChan(email, func() (interface{}, error) {
		return p.ensureWithRetry(ctx, email, password)
	})

	select {
	case <-ctx.Done():
		return Account{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Account{}, res.Err
		}
		return res.Val.(Account), nil
	}
}

// ensureWithRetry retries transport errors and 5xx responses. Any 4xx other
// than a duplicate is final.
func (p *EmulatorProvisioner) ensureWithRetry(ctx context.Context, email, password string) (Account, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			p.logger.Warn("Context cancelled while waiting for rate limiter", zap.Error(err))
			return Account{}, err
		}

		account, err := p.signUp(ctx, email, password)
		if err == nil {
			return account, nil
		}
		lastErr = err

		var perr *ProvisioningError
		if errors.As(err, &perr) && !perr.Retryable() {
			return Account{}, err
		}
		if ctx.Err() != nil {
			return Account{}, ctx.Err()
		}
		p.logger.Warn("Sign-up attempt failed, retrying.",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.maxAttempts),
			zap.Error(err))
	}
	return Account{}, lastErr
}

func (p *EmulatorProvisioner) signUp(ctx context.Context, email, password string) (Account, error) {
	payload, err := json.Marshal(signUpRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return Account{}, fmt.Errorf("failed to encode sign-up request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Account{}, fmt.Errorf("failed to build sign-up request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Account{}, &ProvisioningError{Email: email, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var body signUpResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			// The user exists even if the body is unreadable.
			p.logger.Warn("Could not decode sign-up response.", zap.Error(err))
			return Account{Email: email}, nil
		}
		account := Account{Email: email, UserID: body.LocalID}
		if account.UserID == "" {
			account.UserID = subjectFromToken(body.IDToken)
		}
		p.logger.Info("Provisioned test user.", zap.String("email", email), zap.String("user_id", account.UserID))
		return account, nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && bytes.Contains(raw, []byte(emailExistsCode)) {
		p.logger.Info("Test user already exists.", zap.String("email", email))
		return Account{Email: email, Existed: true}, nil
	}

	return Account{}, &ProvisioningError{
		Email:      email,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(raw),
	}
}

// WaitReady polls the emulator until it answers any HTTP request or the
// readiness timeout elapses.
func (p *EmulatorProvisioner) WaitReady(ctx context.Context) error {
	timeout := p.readiness
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readinessPollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(readyCtx, http.MethodGet, p.baseURL, nil)
		if err != nil {
			return fmt.Errorf("failed to build readiness request: %w", err)
		}
		resp, err := p.client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			p.logger.Debug("Identity emulator is reachable.", zap.String("url", p.baseURL))
			return nil
		}

		select {
		case <-readyCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &ProvisioningError{Err: fmt.Errorf("emulator at %s not reachable after %v: %w", p.baseURL, timeout, err)}
		case <-ticker.C:
		}
	}
}

// subjectFromToken reads the subject of the emulator's ID token without
// verifying it. The emulator signs nothing, so only the claims are useful.
func subjectFromToken(token string) string {
	if token == "" {
		return ""
	}
	parsed, _, err := jwtParser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		if claims, ok := parsed.Claims.(jwt.MapClaims); ok {
			if uid, ok := claims["user_id"].(string); ok {
				return uid
			}
		}
		return ""
	}
	return sub
}

func errorMessage(raw []byte) string {
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
