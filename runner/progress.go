package runner

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

// ProgressIndicator interface for UI updates
type ProgressIndicator interface {
	StartSuite(suiteName string, totalTests int)
	StartTest(testName string)
	UpdateTest(testName string, status types.TestStatus)
	CompleteSuite(suiteName string)
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartSuite(suiteName string, totalTests int)         {}
func (n *noOpProgressIndicator) StartTest(testName string)                           {}
func (n *noOpProgressIndicator) UpdateTest(testName string, status types.TestStatus) {}
func (n *noOpProgressIndicator) CompleteSuite(suiteName string)                      {}

// ConsoleProgressIndicator logs a progress summary on every tick
type ConsoleProgressIndicator struct {
	logger log.Logger
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once
	mu     sync.RWMutex

	currentSuite   string
	completedTests int
	totalTests     int
	suiteStartTime time.Time

	// Track currently running tests
	runningTests map[string]time.Time // test name -> start time
}

// NewConsoleProgressIndicator creates a progress indicator that shows updates in the console
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) *ConsoleProgressIndicator {
	if updateInterval == 0 {
		updateInterval = DefaultProgressInterval
	}

	indicator := &ConsoleProgressIndicator{
		logger:       logger,
		ticker:       time.NewTicker(updateInterval),
		stopCh:       make(chan struct{}),
		runningTests: make(map[string]time.Time),
	}

	go indicator.progressReporter()

	return indicator
}

func (c *ConsoleProgressIndicator) StartSuite(suiteName string, totalTests int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentSuite = suiteName
	c.totalTests = totalTests
	c.completedTests = 0
	c.suiteStartTime = time.Now()
	c.runningTests = make(map[string]time.Time)

	c.logger.Info("Starting suite", "suite", suiteName, "totalTests", totalTests)
}

// StartTest tracks when a test starts running
func (c *ConsoleProgressIndicator) StartTest(testName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningTests[testName] = time.Now()
	c.logger.Debug("Test started", "test", testName, "runningTests", len(c.runningTests))
}

func (c *ConsoleProgressIndicator) UpdateTest(testName string, status types.TestStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningTests, testName)
	c.completedTests++

	c.logger.Debug("Test completed", "test", testName, "status", status, "completed", c.completedTests, "total", c.totalTests, "runningTests", len(c.runningTests))
}

func (c *ConsoleProgressIndicator) CompleteSuite(suiteName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	duration := time.Since(c.suiteStartTime).Truncate(time.Millisecond)
	c.logger.Info("Completed suite", "suite", suiteName, "totalTests", c.totalTests, "completed", c.completedTests, "duration", duration)
	c.currentSuite = ""
	c.runningTests = make(map[string]time.Time)
}

func (c *ConsoleProgressIndicator) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *ConsoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.currentSuite == "" {
		return
	}

	var percentComplete float64
	if c.totalTests > 0 {
		percentComplete = float64(c.completedTests) * 100.0 / float64(c.totalTests)
	}

	c.logger.Info("Progress update",
		"suite", c.currentSuite,
		"completed", c.completedTests,
		"total", c.totalTests,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"numRunning", len(c.runningTests),
		"longestRunning", formatRunningTests(c.runningTests, 3),
	)
}

// Stop stops the progress indicator
func (c *ConsoleProgressIndicator) Stop() {
	c.once.Do(func() {
		c.ticker.Stop()
		close(c.stopCh)
	})
}

// formatRunningTests lists the longest running tests first
func formatRunningTests(runningTests map[string]time.Time, maxShow int) string {
	if len(runningTests) == 0 {
		return ""
	}

	type runningTest struct {
		name     string
		duration time.Duration
	}

	var running []runningTest
	now := time.Now()
	for testName, startTime := range runningTests {
		running = append(running, runningTest{
			name:     testName,
			duration: now.Sub(startTime),
		})
	}

	sort.Slice(running, func(i, j int) bool {
		return running[i].duration > running[j].duration
	})

	var runningStrs []string
	for i, test := range running {
		if i >= maxShow {
			break
		}
		runningStrs = append(runningStrs, fmt.Sprintf("%s (%v)", test.name, test.duration.Truncate(time.Second)))
	}

	if len(running) > maxShow {
		runningStrs = append(runningStrs, fmt.Sprintf("+%d more", len(running)-maxShow))
	}

	return strings.Join(runningStrs, ", ")
}

// syncWriter serializes writes from concurrently running tasks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newSyncWriter(w io.Writer) *syncWriter {
	if sw, ok := w.(*syncWriter); ok {
		return sw
	}
	return &syncWriter{w: w}
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// resultLine formats the line printed when a test finishes.
func resultLine(name string, passed bool) string {
	mark := PassMark
	if !passed {
		mark = FailMark
	}
	return fmt.Sprintf("%s ... %s", name, mark)
}
