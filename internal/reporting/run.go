// internal/reporting/run.go
package reporting

import (
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/operis-e2e/internal/harness"
)

// Run is one invocation of the harness and everything it produced.
type Run struct {
	ID        string
	BaseURL   string
	StartedAt time.Time
	EndedAt   time.Time
	Outcomes  []harness.Outcome
}

// NewRun stamps a run with a fresh ID.
func NewRun(baseURL string, startedAt time.Time) *Run {
	return &Run{
		ID:        uuid.NewString(),
		BaseURL:   baseURL,
		StartedAt: startedAt,
	}
}

// Summary counts outcomes by status.
type Summary struct {
	Total              int `json:"total"`
	Passed             int `json:"passed"`
	PreconditionNotMet int `json:"precondition_not_met"`
	Failed             int `json:"failed"`
}

// Summary tallies the run's outcomes.
func (r *Run) Summary() Summary {
	s := Summary{Total: len(r.Outcomes)}
	for _, o := range r.Outcomes {
		switch o.Status {
		case harness.StatusPassed:
			s.Passed++
		case harness.StatusPreconditionNotMet:
			s.PreconditionNotMet++
		default:
			s.Failed++
		}
	}
	return s
}

// Failed reports whether any scenario failed.
func (r *Run) Failed() bool {
	return r.Summary().Failed > 0
}

// Duration is the wall time of the run, or zero before it ends.
func (r *Run) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// UserID returns the first user id a scenario provisioned.
func (r *Run) UserID() string {
	for _, o := range r.Outcomes {
		if id := o.Details["user_id"]; id != "" {
			return id
		}
	}
	return ""
}
