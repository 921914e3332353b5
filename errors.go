package suite

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, before_all or after_all failing, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError represents a failure from test assertions (exit code 1).
// It unwraps to the last recorded fault.
type TestFailureError struct {
	Suite    string
	Failures int
	Last     types.Failure
	Result   *types.SuiteResult
}

func (e *TestFailureError) Error() string {
	if e.Failures <= 1 {
		return fmt.Sprintf("test failure: suite %s: %s", e.Suite, e.Last)
	}
	return fmt.Sprintf("test failure: suite %s: %d tests failed, last: %s", e.Suite, e.Failures, e.Last)
}

func (e *TestFailureError) Unwrap() error {
	return e.Last.Err
}

// NewTestFailureError creates a new TestFailureError from a failed result
func NewTestFailureError(result *types.SuiteResult) *TestFailureError {
	last, _ := result.LastFailure()
	return &TestFailureError{
		Suite:    result.Suite,
		Failures: len(result.Failures),
		Last:     last,
		Result:   result,
	}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
