// Package types contains the result and configuration types shared across op-suite
package types

import (
	"fmt"
	"time"
)

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusSkip  TestStatus = "skip"
	TestStatusError TestStatus = "error"
)

// Phase names a stage of the hook pipeline
type Phase string

const (
	PhaseBeforeAll  Phase = "before_all"
	PhaseBeforeEach Phase = "before_each"
	PhaseTest       Phase = "test"
	PhaseAfterEach  Phase = "after_each"
	PhaseAfterAll   Phase = "after_all"
	PhaseCleanup    Phase = "cleanup"
)

func (p Phase) String() string {
	return string(p)
}

// PerTest reports whether the phase runs once per test rather than once per suite.
func (p Phase) PerTest() bool {
	switch p {
	case PhaseBeforeEach, PhaseTest, PhaseAfterEach, PhaseCleanup:
		return true
	}
	return false
}

// Mode is the execution mode of a suite run
type Mode struct {
	Parallel    bool
	Cooperative bool
}

func (m Mode) String() string {
	order, model := "sequential", "blocking"
	if m.Parallel {
		order = "parallel"
	}
	if m.Cooperative {
		model = "cooperative"
	}
	return order + "/" + model
}

// TestResult captures the outcome of a single test and its per-test hooks
type TestResult struct {
	Index    int // Declaration index, also the test's local scope id
	Name     string
	Status   TestStatus
	Error    error         // Original fault
	Phase    Phase         // Stage that failed, empty on pass
	Cleanup  error         // Error returned by cleanup, if cleanup ran and failed
	Duration time.Duration // Includes before_each, after_each and cleanup
}

// Passed reports whether the test passed.
func (r *TestResult) Passed() bool {
	return r != nil && r.Status == TestStatusPass
}

// Failure is one record of the failure aggregator
type Failure struct {
	Index int
	Name  string
	Err   error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %v", f.Name, f.Err)
}

// SuiteStats holds the counts and timings of a suite run
type SuiteStats struct {
	Total     int
	Passed    int
	Failed    int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// SuiteResult is the outcome of one suite run
type SuiteResult struct {
	Suite       string
	RunID       string
	Mode        Mode
	Status      TestStatus
	Tests       []*TestResult // Ordered by declaration index
	Failures    []Failure     // Ordered by record time
	Stats       SuiteStats
	AfterAllRan bool
	Error       error // Suite-level fault, if any
}

// Failed reports whether any test failed or the suite itself faulted.
func (r *SuiteResult) Failed() bool {
	return r.Status != TestStatusPass
}

// LastFailure returns the most recently recorded failure.
func (r *SuiteResult) LastFailure() (Failure, bool) {
	if len(r.Failures) == 0 {
		return Failure{}, false
	}
	return r.Failures[len(r.Failures)-1], true
}

// UpdateStats recomputes the counts from the test results.
func (r *SuiteResult) UpdateStats() {
	r.Stats.Total = len(r.Tests)
	r.Stats.Passed, r.Stats.Failed = 0, 0
	for _, t := range r.Tests {
		if t == nil {
			continue
		}
		switch t.Status {
		case TestStatusPass:
			r.Stats.Passed++
		case TestStatusFail, TestStatusError:
			r.Stats.Failed++
		}
	}
}
