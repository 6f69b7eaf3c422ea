// internal/reporting/json.go
package reporting

import (
	"fmt"
	"io"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/operis-e2e/internal/harness"
)

// runDocument is the JSON form of a run.
type runDocument struct {
	RunID      string             `json:"run_id"`
	BaseURL    string             `json:"base_url"`
	StartedAt  time.Time          `json:"started_at"`
	EndedAt    time.Time          `json:"ended_at"`
	DurationMS int64              `json:"duration_ms"`
	UserID     string             `json:"user_id,omitempty"`
	Summary    Summary            `json:"summary"`
	Scenarios  []scenarioDocument `json:"scenarios"`
}

type scenarioDocument struct {
	harness.Outcome
	DurationMS int64 `json:"duration_ms"`
}

func newRunDocument(run *Run) runDocument {
	doc := runDocument{
		RunID:      run.ID,
		BaseURL:    run.BaseURL,
		StartedAt:  run.StartedAt,
		EndedAt:    run.EndedAt,
		DurationMS: run.Duration().Milliseconds(),
		UserID:     run.UserID(),
		Summary:    run.Summary(),
		Scenarios:  make([]scenarioDocument, 0, len(run.Outcomes)),
	}
	for _, o := range run.Outcomes {
		doc.Scenarios = append(doc.Scenarios, scenarioDocument{Outcome: o, DurationMS: o.Duration.Milliseconds()})
	}
	return doc
}

func renderJSON(w io.Writer, run *Run) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ") // Pretty print
	return encoder.Encode(newRunDocument(run))
}

// ReadJSON loads a run from a report written in the JSON format.
func ReadJSON(r io.Reader) (*Run, error) {
	var doc runDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode run report: %w", err)
	}
	if doc.RunID == "" {
		return nil, fmt.Errorf("run report has no run_id")
	}
	run := &Run{
		ID:        doc.RunID,
		BaseURL:   doc.BaseURL,
		StartedAt: doc.StartedAt,
		EndedAt:   doc.EndedAt,
		Outcomes:  make([]harness.Outcome, 0, len(doc.Scenarios)),
	}
	for _, s := range doc.Scenarios {
		o := s.Outcome
		o.Duration = time.Duration(s.DurationMS) * time.Millisecond
		run.Outcomes = append(run.Outcomes, o)
	}
	return run, nil
}
