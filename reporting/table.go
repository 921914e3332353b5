package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

// TableReporter renders suite results as a go-pretty table
type TableReporter struct {
	title    string
	colored  bool
	showTest bool
}

// NewTableReporter creates a table reporter. Colored tables are meant for a
// terminal, plain ones for files.
func NewTableReporter(title string, colored bool, showIndividualTests bool) *TableReporter {
	return &TableReporter{
		title:    title,
		colored:  colored,
		showTest: showIndividualTests,
	}
}

// Render returns the table for results
func (tr *TableReporter) Render(results []*types.SuiteResult) string {
	t := tr.build(results)
	return t.Render()
}

// Print writes the table for results to w
func (tr *TableReporter) Print(w io.Writer, results []*types.SuiteResult) error {
	_, err := fmt.Fprintln(w, tr.Render(results))
	return err
}

func (tr *TableReporter) build(results []*types.SuiteResult) table.Writer {
	total := Summarize(results)

	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%s (%s)", tr.title, formatDuration(total.Duration)))

	t.AppendHeader(table.Row{
		"Type", "ID", "Mode", "Duration", "Tests", "Passed", "Failed", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, suite := range results {
		t.AppendRow(table.Row{
			"Suite",
			suite.Suite,
			suite.Mode.String(),
			formatDuration(suite.Stats.Duration),
			"-", // Don't count suite as a test
			suite.Stats.Passed,
			suite.Stats.Failed,
			getResultString(suite.Status),
			extractKeyErrorMessage(suite.Error),
		})

		if tr.showTest {
			tests := ranTests(suite)
			for i, test := range tests {
				prefix := "├──"
				if i == len(tests)-1 {
					prefix = "└──"
				}
				t.AppendRow(table.Row{
					"Test",
					fmt.Sprintf("%s %s", prefix, test.Name),
					"",
					formatDuration(test.Duration),
					"1",
					boolToInt(test.Status == types.TestStatusPass),
					boolToInt(test.Status != types.TestStatusPass),
					getResultString(test.Status),
					testError(test),
				})
			}
		}
		t.AppendSeparator()
	}

	if tr.colored {
		switch total.Status {
		case types.TestStatusPass:
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		case types.TestStatusSkip:
			t.SetStyle(table.StyleColoredBlackOnYellowWhite)
		default:
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		}
	} else {
		t.SetStyle(table.StyleLight)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		"",
		formatDuration(total.Duration),
		total.Total,
		total.Passed,
		total.Failed,
		getResultString(total.Status),
		"",
	})

	return t
}

// Totals aggregates several suite runs
type Totals struct {
	Suites   int
	Total    int
	Passed   int
	Failed   int
	Duration time.Duration
	Status   types.TestStatus
}

// Summarize adds up results. The status is error if any suite faulted, fail
// if any test failed and pass otherwise.
func Summarize(results []*types.SuiteResult) Totals {
	totals := Totals{Suites: len(results), Status: types.TestStatusPass}
	for _, r := range results {
		totals.Total += r.Stats.Total
		totals.Passed += r.Stats.Passed
		totals.Failed += r.Stats.Failed
		totals.Duration += r.Stats.Duration
		switch {
		case r.Status == types.TestStatusError:
			totals.Status = types.TestStatusError
		case r.Status == types.TestStatusFail && totals.Status != types.TestStatusError:
			totals.Status = types.TestStatusFail
		}
	}
	return totals
}

func ranTests(suite *types.SuiteResult) []*types.TestResult {
	tests := make([]*types.TestResult, 0, len(suite.Tests))
	for _, test := range suite.Tests {
		if test != nil {
			tests = append(tests, test)
		}
	}
	return tests
}

func testError(test *types.TestResult) string {
	if test.Error == nil {
		return ""
	}
	msg := extractKeyErrorMessage(test.Error)
	if test.Phase != "" && test.Phase != types.PhaseTest {
		msg = fmt.Sprintf("[%s] %s", test.Phase, msg)
	}
	return msg
}

// extractKeyErrorMessage extracts the most pertinent part of the error message for display
func extractKeyErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	for _, marker := range []string{"missing fixture", "type mismatch", "panic:"} {
		if idx := strings.Index(errStr, marker); idx != -1 {
			end := len(errStr)
			if newLine := strings.Index(errStr[idx:], "\n"); newLine != -1 {
				end = idx + newLine
			}
			return errStr[idx:end]
		}
	}

	// If we can't find a specific pattern, limit to the first line or 80 chars
	if idx := strings.Index(errStr, "\n"); idx != -1 {
		return errStr[:idx]
	} else if len(errStr) > 80 {
		return errStr[:70] + "..."
	}

	return errStr
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a string representing the test result
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	case types.TestStatusError:
		return "✗ error"
	default:
		return "✗ fail"
	}
}

// formatDuration formats a duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
