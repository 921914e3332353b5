package runner

import "time"

const (
	// PassMark and FailMark end the per-test result lines.
	PassMark = "✓"
	FailMark = "x"

	// MaxReasonableConcurrency is the concurrency above which a warning is logged.
	MaxReasonableConcurrency = 32

	// DefaultProgressInterval is the interval of the console progress indicator.
	DefaultProgressInterval = 30 * time.Second
)
