package runner

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-suite/metrics"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// Collector aggregates task outcomes into the result of one suite run.
// The run failed iff at least one failure was recorded or the suite faulted.
type Collector struct {
	mu     sync.Mutex
	result *types.SuiteResult
}

// NewCollector initializes the result of a run of n tests
func NewCollector(suite, runID string, mode types.Mode, n int) *Collector {
	return &Collector{
		result: &types.SuiteResult{
			Suite:  suite,
			RunID:  runID,
			Mode:   mode,
			Status: types.TestStatusFail, // recalculated in Finalize
			Tests:  make([]*types.TestResult, n),
			Stats: types.SuiteStats{
				StartTime: time.Now(),
			},
		},
	}
}

// Record stores a test result at its declaration index and, when the test
// failed, appends a failure record.
func (c *Collector) Record(test *types.TestResult) {
	if test == nil {
		panic("test cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if test.Index < 0 || test.Index >= len(c.result.Tests) {
		panic("test index out of range")
	}
	c.result.Tests[test.Index] = test
	metrics.RecordTestResult(c.result.Suite, test.Status)
	if test.Passed() {
		return
	}
	c.result.Failures = append(c.result.Failures, types.Failure{
		Index: test.Index,
		Name:  test.Name,
		Err:   test.Error,
	})
}

// SuiteError records a suite-level fault. Multiple faults are joined.
func (c *Collector) SuiteError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Error = errors.Join(c.result.Error, err)
}

// AfterAllRan marks after_all as executed.
func (c *Collector) AfterAllRan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.AfterAllRan = true
}

// Failed reports whether any failure was recorded so far.
func (c *Collector) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.result.Failures) > 0
}

// Finalize calculates the final status and timings and returns the result.
func (c *Collector) Finalize() *types.SuiteResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.result
	r.Stats.EndTime = time.Now()
	r.Stats.Duration = r.Stats.EndTime.Sub(r.Stats.StartTime)
	r.UpdateStats()
	r.Status = determineStatus(r)
	return r
}

func determineStatus(r *types.SuiteResult) types.TestStatus {
	switch {
	case r.Error != nil:
		return types.TestStatusError
	case len(r.Failures) > 0:
		return types.TestStatusFail
	}
	return types.TestStatusPass
}
