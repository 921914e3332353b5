package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
			assert.Regexp(t, validLabelRegex, result)
		})
	}
}

func TestRecordError(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordError("test_error")
		RecordErrorDetails("suite", errors.New("boom"))
		RecordErrorDetails("suite", nil)
	})
}

func TestRecordTestResult(t *testing.T) {
	before := testutil.ToFloat64(testResultsTotal.WithLabelValues("metrics-suite", "pass"))
	RecordTestResult("metrics-suite", types.TestStatusPass)
	RecordTestResult("metrics-suite", types.TestStatus("bogus"))
	after := testutil.ToFloat64(testResultsTotal.WithLabelValues("metrics-suite", "pass"))
	assert.Equal(t, before+1, after)
}

func TestRecordFixtureMiss(t *testing.T) {
	RecordFixtureMiss(types.PhaseTest, "metrics.counter")
	assert.Equal(t, 1.0, testutil.ToFloat64(fixtureMissesTotal.WithLabelValues("test", "metrics.counter")))
}

func TestRecordSuiteRun(t *testing.T) {
	RecordSuiteRun(nil)
	RecordSuiteRun(&types.SuiteResult{
		Suite:  "metrics-run",
		Status: types.TestStatusFail,
		Mode:   types.Mode{Parallel: true},
		Stats: types.SuiteStats{
			Total:    3,
			Passed:   2,
			Failed:   1,
			Duration: 2 * time.Second,
		},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(suiteRunsTotal.WithLabelValues("metrics-run", "parallel/blocking", "fail")))
	assert.Equal(t, 2.0, testutil.ToFloat64(suiteTests.WithLabelValues("metrics-run", "passed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(suiteDuration.WithLabelValues("metrics-run")))
}

func TestRecordHook(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordHook(types.PhaseBeforeAll, nil, time.Millisecond)
		RecordHook(types.PhaseTest, errors.New("x"), time.Millisecond)
	})
}

func TestRecordPassRate(t *testing.T) {
	RecordPassRate("metrics-rate", 0.5)
	assert.Equal(t, 0.5, testutil.ToFloat64(suitePassRate.WithLabelValues("metrics-rate")))
}

func TestRecordBatch(t *testing.T) {
	before := testutil.ToFloat64(batchesTotal.WithLabelValues("error"))
	completed := time.Unix(1_700_000_000, 0)
	RecordBatch(types.TestStatusError, completed)
	RecordBatch(types.TestStatus("bogus"), time.Now())

	assert.Equal(t, before+1, testutil.ToFloat64(batchesTotal.WithLabelValues("error")))
	assert.Equal(t, float64(completed.Unix()), testutil.ToFloat64(lastBatchTimestamp))
}
