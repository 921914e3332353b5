package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

const (
	MetricsNamespace = "op_suite"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip, types.TestStatusError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_results_total",
		Help:      "Count of test results",
	}, []string{
		"suite",
		"result",
	})

	hookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "hook_duration_seconds",
		Help:      "Duration of hook and test function calls",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{
		"phase",
		"result",
	})

	fixtureMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "fixture_misses_total",
		Help:      "Count of declared inputs found in neither the local nor the global scope",
	}, []string{
		"phase",
		"type",
	})

	suiteRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_runs_total",
		Help:      "Count of suite runs",
	}, []string{
		"suite",
		"mode",
		"result",
	})

	suiteTests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_tests",
		Help:      "Test counts of the last run of a suite",
	}, []string{
		"suite",
		"kind",
	})

	suiteDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_duration_seconds",
		Help:      "Duration of the last run of a suite",
	}, []string{
		"suite",
	})

	suitePassRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_pass_rate",
		Help:      "Fraction of passing runs among the recent recorded runs of a suite",
	}, []string{
		"suite",
	})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "batches_total",
		Help:      "Count of scheduled runs over all selected suites",
	}, []string{
		"result",
	})

	lastBatchTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "last_batch_timestamp_seconds",
		Help:      "Unix time the last batch completed",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordTestResult(suite string, result types.TestStatus) {
	if !isValidResult(result) {
		log.Error("RecordTestResult - invalid result", "result", result)
		return
	}
	testResultsTotal.WithLabelValues(suite, string(result)).Inc()
}

// RecordHook observes one hook or test call. Results are "ok" or "error".
func RecordHook(phase types.Phase, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	hookDuration.WithLabelValues(string(phase), result).Observe(duration.Seconds())
}

func RecordFixtureMiss(phase types.Phase, typ string) {
	if Debug {
		log.Debug("metric inc",
			"m", "fixture_misses_total",
			"phase", phase,
			"type", typ)
	}
	fixtureMissesTotal.WithLabelValues(string(phase), typ).Inc()
}

func RecordSuiteRun(result *types.SuiteResult) {
	if result == nil {
		return
	}
	suiteRunsTotal.WithLabelValues(result.Suite, result.Mode.String(), string(result.Status)).Inc()
	suiteTests.WithLabelValues(result.Suite, "total").Set(float64(result.Stats.Total))
	suiteTests.WithLabelValues(result.Suite, "passed").Set(float64(result.Stats.Passed))
	suiteTests.WithLabelValues(result.Suite, "failed").Set(float64(result.Stats.Failed))
	suiteDuration.WithLabelValues(result.Suite).Set(result.Stats.Duration.Seconds())
}

func RecordPassRate(suite string, rate float64) {
	suitePassRate.WithLabelValues(suite).Set(rate)
}

func RecordBatch(result types.TestStatus, completed time.Time) {
	if !isValidResult(result) {
		log.Error("RecordBatch - invalid result", "result", result)
		return
	}
	batchesTotal.WithLabelValues(string(result)).Inc()
	lastBatchTimestamp.Set(float64(completed.Unix()))
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
