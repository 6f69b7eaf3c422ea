// internal/reporting/junit.go
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/operis-e2e/internal/harness"
)

const suiteName = "operis-e2e"

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// renderJUnit writes the run as one JUnit test suite. Unmet preconditions
// are reported as skipped test cases.
func renderJUnit(w io.Writer, run *Run) error {
	summary := run.Summary()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", suiteName)
	suites.CreateAttr("tests", strconv.Itoa(summary.Total))
	suites.CreateAttr("failures", strconv.Itoa(summary.Failed))
	suites.CreateAttr("skipped", strconv.Itoa(summary.PreconditionNotMet))
	suites.CreateAttr("time", seconds(run.Duration()))

	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", suiteName)
	suite.CreateAttr("id", run.ID)
	suite.CreateAttr("timestamp", run.StartedAt.UTC().Format(time.RFC3339))
	suite.CreateAttr("tests", strconv.Itoa(summary.Total))
	suite.CreateAttr("failures", strconv.Itoa(summary.Failed))
	suite.CreateAttr("errors", "0")
	suite.CreateAttr("skipped", strconv.Itoa(summary.PreconditionNotMet))
	suite.CreateAttr("time", seconds(run.Duration()))

	props := suite.CreateElement("properties")
	addProperty(props, "run_id", run.ID)
	addProperty(props, "base_url", run.BaseURL)
	if id := run.UserID(); id != "" {
		addProperty(props, "user_id", id)
	}

	for _, o := range run.Outcomes {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", o.Name)
		tc.CreateAttr("classname", suiteName)
		tc.CreateAttr("time", seconds(o.Duration))

		switch o.Status {
		case harness.StatusFailed:
			failure := tc.CreateElement("failure")
			failure.CreateAttr("type", string(o.Kind))
			failure.CreateAttr("message", o.Message)
			failure.SetText(fmt.Sprintf("step: %s", o.Step))
		case harness.StatusPreconditionNotMet:
			skipped := tc.CreateElement("skipped")
			skipped.CreateAttr("message", o.Message)
		}

		if out := systemOut(o); out != "" {
			tc.CreateElement("system-out").SetText(out)
		}
	}

	doc.Indent(2)
	_, err := doc.WriteTo(w)
	return err
}

func addProperty(props *etree.Element, name, value string) {
	p := props.CreateElement("property")
	p.CreateAttr("name", name)
	p.CreateAttr("value", value)
}

// systemOut lists an outcome's details and artifacts, one per line.
func systemOut(o harness.Outcome) string {
	var lines []string
	for _, key := range o.DetailKeys() {
		lines = append(lines, key+": "+o.Details[key])
	}
	for _, path := range o.Artifacts {
		lines = append(lines, "artifact: "+path)
	}
	return strings.Join(lines, "\n")
}
