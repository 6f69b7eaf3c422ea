// internal/identity/errors.go
package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrProvisioning matches every *ProvisioningError via errors.Is.
var ErrProvisioning = errors.New("identity provisioning failed")

// ProvisioningError is an unexpected outcome from the identity store: a
// transport failure, or a non-2xx response that is not a duplicate.
type ProvisioningError struct {
	Email      string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProvisioningError) Error() string {
	switch {
	case e.Err != nil && e.Email != "":
		return fmt.Sprintf("provisioning %s: %v", e.Email, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("provisioning: %v", e.Err)
	default:
		return fmt.Sprintf("provisioning %s: HTTP %d: %s", e.Email, e.StatusCode, e.Message)
	}
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// Is reports whether target is ErrProvisioning.
func (e *ProvisioningError) Is(target error) bool { return target == ErrProvisioning }

// Retryable reports whether another attempt could succeed. Transport errors
// and server side failures are retried; client errors are not.
func (e *ProvisioningError) Retryable() bool {
	if e.Err != nil {
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}
