package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	suite "github.com/ethereum-optimism/infra/op-suite"
	"github.com/ethereum-optimism/infra/op-suite/exitcodes"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// TestExitCode verifies that op-suite returns the correct exit codes:
// - Exit code 0 when all tests pass
// - Exit code 1 when any tests fail
// - Exit code 2 when there's a runtime error
func TestExitCode(t *testing.T) {
	failed := &types.SuiteResult{
		Suite:    "s",
		Status:   types.TestStatusFail,
		Failures: []types.Failure{{Name: "t", Err: errors.New("nope")}},
	}

	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "success", err: nil, expected: exitcodes.Success},
		{name: "test failure", err: suite.NewTestFailureError(failed), expected: exitcodes.TestFailure},
		{name: "runtime error", err: suite.NewRuntimeError(errors.New("before_all")), expected: exitcodes.RuntimeErr},
		{name: "wrapped runtime error", err: fmt.Errorf("app: %w", suite.NewRuntimeError(errors.New("config"))), expected: exitcodes.RuntimeErr},
		{name: "unspecified error", err: errors.New("unknown"), expected: exitcodes.TestFailure},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, exitCode(tc.err))
		})
	}
}
