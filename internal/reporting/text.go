// internal/reporting/text.go
package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xkilldash9x/operis-e2e/internal/harness"
)

var statusMarks = map[harness.Status]string{
	harness.StatusPassed:             "✓",
	harness.StatusPreconditionNotMet: "⚠",
	harness.StatusFailed:             "✗",
}

// renderText writes a summary table for humans.
func renderText(w io.Writer, run *Run) error {
	var b strings.Builder
	summary := run.Summary()

	fmt.Fprintf(&b, "\nRun %s against %s\n", run.ID, run.BaseURL)
	for _, o := range run.Outcomes {
		fmt.Fprintf(&b, "  %s %-22s %-22s %s\n", statusMarks[o.Status], o.Name, o.Status, o.Duration.Round(time.Millisecond))
		if o.Kind != "" {
			fmt.Fprintf(&b, "      %s at %s\n", o.Kind, o.Step)
		}
		for _, key := range o.DetailKeys() {
			fmt.Fprintf(&b, "      %s: %s\n", key, o.Details[key])
		}
		for _, path := range o.Artifacts {
			fmt.Fprintf(&b, "      artifact: %s\n", path)
		}
	}
	fmt.Fprintf(&b, "%d scenario(s): %d passed, %d precondition not met, %d failed in %s\n",
		summary.Total, summary.Passed, summary.PreconditionNotMet, summary.Failed, run.Duration().Round(time.Millisecond))

	_, err := io.WriteString(w, b.String())
	return err
}
