// Package exitcodes defines the standard exit codes used by op-suite.
package exitcodes

// Exit code constants used by op-suite
//
// * Success (0): every suite passed
// * TestFailure (1): one or more tests failed
// * RuntimeErr (2): a suite could not run, e.g. before_all failed or the config is invalid
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Suite-level faults and configuration errors
)
