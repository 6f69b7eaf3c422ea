// internal/harness/errors.go
package harness

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/operis-e2e/internal/identity"
)

// FailureKind classifies why a scenario did not pass.
type FailureKind string

const (
	LoginFailure        FailureKind = "LOGIN_FAILURE"
	NavigationFailure   FailureKind = "NAVIGATION_FAILURE"
	PreconditionNotMet  FailureKind = "PRECONDITION_NOT_MET"
	AssertionFailure    FailureKind = "ASSERTION_FAILURE"
	ProvisioningFailure FailureKind = "PROVISIONING_FAILURE"
)

// Fatal reports whether the kind fails the run. Only an unmet precondition
// does not.
func (k FailureKind) Fatal() bool {
	return k != "" && k != PreconditionNotMet
}

// ErrNoMatch is returned by the driver when no row satisfies a predicate.
var ErrNoMatch = errors.New("no row matches the predicate")

// Failure is a classified error raised at a named step of a scenario.
type Failure struct {
	Kind FailureKind
	Step string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s at %s", f.Kind, f.Step)
	}
	return fmt.Sprintf("%s at %s: %v", f.Kind, f.Step, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Fail wraps err as a Failure. An err that is already a Failure keeps its
// original classification.
func Fail(kind FailureKind, step string, err error) error {
	var existing *Failure
	if errors.As(err, &existing) {
		return err
	}
	return &Failure{Kind: kind, Step: step, Err: err}
}

// KindOf classifies any error. Errors without a Failure in their chain are
// reported as assertion failures.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	switch {
	case errors.Is(err, ErrNoMatch):
		return PreconditionNotMet
	case errors.Is(err, identity.ErrProvisioning):
		return ProvisioningFailure
	default:
		return AssertionFailure
	}
}

// StepOf returns the step recorded on the first Failure in err's chain.
func StepOf(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Step
	}
	return ""
}
