package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

// Sink consumes suite results as they are produced
type Sink interface {
	Consume(result *types.SuiteResult) error
	// Complete is called once all suites of a batch have run
	Complete(batchID string) error
}

// TextSummarySink writes a plain text summary per batch under baseDir
type TextSummarySink struct {
	baseDir        string
	includeDetails bool

	mu      sync.Mutex
	results []*types.SuiteResult
}

// NewTextSummarySink creates a new text summary sink
func NewTextSummarySink(baseDir string, includeDetails bool) *TextSummarySink {
	return &TextSummarySink{
		baseDir:        baseDir,
		includeDetails: includeDetails,
	}
}

// Consume collects a suite result for the next summary
func (s *TextSummarySink) Consume(result *types.SuiteResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Complete writes <baseDir>/testrun-<batchID>/summary.log and resets the sink
func (s *TextSummarySink) Complete(batchID string) error {
	s.mu.Lock()
	results := s.results
	s.results = nil
	s.mu.Unlock()

	outputDir := filepath.Join(s.baseDir, "testrun-"+batchID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	content := FormatSummary(batchID, time.Now(), results, s.includeDetails)

	summaryFile := filepath.Join(outputDir, "summary.log")
	if err := os.WriteFile(summaryFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

// FormatSummary formats results as a plain text summary. ANSI escapes in
// fault messages are stripped.
func FormatSummary(batchID string, now time.Time, results []*types.SuiteResult, includeDetails bool) string {
	var summary strings.Builder
	totals := Summarize(results)

	fmt.Fprintf(&summary, "TEST SUMMARY\n")
	fmt.Fprintf(&summary, "============\n")
	fmt.Fprintf(&summary, "Run ID: %s\n", batchID)
	fmt.Fprintf(&summary, "Time: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&summary, "Duration: %s\n\n", formatDuration(totals.Duration))

	fmt.Fprintf(&summary, "Results:\n")
	fmt.Fprintf(&summary, "  Suites:  %d\n", totals.Suites)
	fmt.Fprintf(&summary, "  Total:   %d\n", totals.Total)
	fmt.Fprintf(&summary, "  Passed:  %d\n", totals.Passed)
	fmt.Fprintf(&summary, "  Failed:  %d\n", totals.Failed)
	fmt.Fprintf(&summary, "  Status:  %s\n\n", strings.ToUpper(string(totals.Status)))

	var faulted []string
	for _, r := range results {
		if r.Error != nil {
			faulted = append(faulted, fmt.Sprintf("%s: %s", r.Suite, clean(r.Error)))
		}
	}
	if len(faulted) > 0 {
		fmt.Fprintf(&summary, "Suite errors:\n")
		for _, f := range faulted {
			fmt.Fprintf(&summary, "  - %s\n", f)
		}
		fmt.Fprintf(&summary, "\n")
	}

	var failed []string
	for _, r := range results {
		for _, f := range r.Failures {
			failed = append(failed, fmt.Sprintf("%s/%s: %s", r.Suite, f.Name, clean(f.Err)))
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&summary, "Failed tests:\n")
		for _, f := range failed {
			fmt.Fprintf(&summary, "  - %s\n", f)
		}
		fmt.Fprintf(&summary, "\n")
	}

	if includeDetails {
		fmt.Fprintf(&summary, "DETAILED RESULTS:\n")
		fmt.Fprintf(&summary, "=================\n")
		for _, r := range results {
			fmt.Fprintf(&summary, "Suite: %s (%s, %s) [%s] run %s\n",
				r.Suite, r.Mode, formatDuration(r.Stats.Duration), strings.ToUpper(string(r.Status)), r.RunID)
			for _, test := range ranTests(r) {
				fmt.Fprintf(&summary, "  - %s (%s) [%s]\n", test.Name, formatDuration(test.Duration), strings.ToUpper(string(test.Status)))
			}
			fmt.Fprintf(&summary, "\n")
		}
	}

	return summary.String()
}

func clean(err error) string {
	if err == nil {
		return ""
	}
	return strings.ReplaceAll(stripansi.Strip(err.Error()), "\n", " ")
}
