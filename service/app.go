package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	suite "github.com/ethereum-optimism/infra/op-suite"
	"github.com/ethereum-optimism/infra/op-suite/exitcodes"
	"github.com/ethereum-optimism/infra/op-suite/history"
	"github.com/ethereum-optimism/infra/op-suite/metrics"
	"github.com/ethereum-optimism/infra/op-suite/registry"
	"github.com/ethereum-optimism/infra/op-suite/reporting"
	"github.com/ethereum-optimism/infra/op-suite/runner"
	"github.com/ethereum-optimism/infra/op-suite/suites"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// passRateWindow is the number of recorded runs the pass rate metric covers
const passRateWindow = 20

// App implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = (*App)(nil)

// App runs the selected suites once or periodically.
type App struct {
	config    *Config
	version   string
	registry  *registry.Registry
	suites    []*suite.Suite
	trigger   BatchTrigger
	service   *Service
	table     *reporting.TableReporter
	sinks     []reporting.Sink
	history   *history.SQLiteStore
	progress  *runner.ConsoleProgressIndicator

	mu        sync.Mutex
	results   []*types.SuiteResult
	closeOnce sync.Once

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New builds every selected suite. Suites that cannot be built are configuration errors.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*App, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating app with config",
		"suiteConfig", config.SuiteConfig,
		"suites", config.Suites,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	reg, err := registry.NewRegistry(registry.Config{
		Log:             config.Log,
		SuiteConfigFile: config.SuiteConfig,
		Suites:          config.Suites,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	if err := suites.Register(reg); err != nil {
		return nil, fmt.Errorf("failed to register suites: %w", err)
	}

	return newApp(config, version, reg, shutdownCallback)
}

func newApp(config *Config, version string, reg *registry.Registry, shutdownCallback func(error)) (*App, error) {
	if config.Out == nil {
		config.Out = os.Stdout
	}

	a := &App{
		config:           config,
		version:          version,
		registry:         reg,
		table:            reporting.NewTableReporter("Suite Results", true, true),
		shutdownCallback: shutdownCallback,
	}

	var progress runner.ProgressIndicator
	if config.ShowProgress {
		a.progress = runner.NewConsoleProgressIndicator(config.Log, config.ProgressInterval)
		progress = a.progress
	}

	defs, err := reg.Definitions()
	if err != nil {
		return nil, fmt.Errorf("failed to select suites: %w", err)
	}
	if len(defs) == 0 {
		return nil, errors.New("no suites selected")
	}
	for _, def := range defs {
		def = a.applyOverrides(def)
		def.Out = config.Out
		def.Log = config.Log
		def.Progress = progress
		s, err := suite.Build(def)
		if err != nil {
			return nil, fmt.Errorf("failed to build suite: %w", err)
		}
		a.suites = append(a.suites, s)
	}

	if config.ReportDir != "" {
		a.sinks = append(a.sinks, reporting.NewTextSummarySink(config.ReportDir, true))
	}
	if config.HistoryDB != "" {
		h, err := history.NewSQLiteStore(config.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		a.history = h
		a.sinks = append(a.sinks, h)
	}

	a.service = NewService(config)
	a.trigger = NewIntervalTrigger(config.RunInterval, config.RunOnce, config.Log.New("component", "trigger"), a.scheduledRun)

	config.Log.Info("Created app", "suites", len(a.suites), "sinks", len(a.sinks))
	return a, nil
}

func (a *App) applyOverrides(def suite.Definition) suite.Definition {
	if a.config.Sequential {
		def.Sequential = true
	}
	if a.config.Verbose {
		def.Verbose = true
	}
	if a.config.Concurrency > 0 {
		def.Concurrency = a.config.Concurrency
	}
	if a.config.AfterAll != "" {
		def.AfterAllPolicy = a.config.AfterAll
	}
	return def
}

// Start runs the suites, then keeps running them at the configured interval.
// Start implements the cliapp.Lifecycle interface.
func (a *App) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			a.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	if a.config.RunOnce {
		a.config.Log.Info("Starting op-suite in run-once mode")
	} else {
		a.config.Log.Info("Starting op-suite in continuous mode", "interval", a.config.RunInterval)
	}

	a.service.Start(ctx)

	if err := a.trigger.Start(ctx); err != nil {
		if suite.IsTestFailureError(err) {
			a.config.Log.Warn("Run-once suite run completed with failures, returning exit code 1")
		} else {
			a.config.Log.Error("Runtime error running suites", "error", err)
		}
		return err
	}

	if a.config.RunOnce {
		a.config.Log.Info("Suites completed, exiting (run-once mode)")
		go func() {
			a.shutdownCallback(nil)
		}()
	}

	a.config.Log.Debug("op-suite started successfully")
	return nil
}

// scheduledRun runs every suite. Test failures only fail the process in run-once mode.
func (a *App) scheduledRun(ctx context.Context) error {
	err := a.runSuites(ctx)
	if !a.config.RunOnce && suite.IsTestFailureError(err) {
		a.config.Log.Warn("Suite run completed with failures", "error", err)
		return nil
	}
	return err
}

// runSuites runs every suite once, one after another, and reports the batch.
// It returns a *suite.RuntimeError if any suite faulted, else the
// *suite.TestFailureError of the last suite with failing tests.
func (a *App) runSuites(ctx context.Context) error {
	batchID := uuid.New().String()
	log := a.config.Log.New("batch", batchID)
	log.Info("Running suites...", "suites", len(a.suites))

	var (
		results []*types.SuiteResult
		faults  []error
		failure error
	)
	for _, s := range a.suites {
		result, err := s.Run(ctx)
		switch {
		case suite.IsRuntimeError(err):
			log.Error("Suite faulted", "suite", s.Name(), "error", err)
			faults = append(faults, fmt.Errorf("suite %s: %w", s.Name(), err))
		case suite.IsTestFailureError(err):
			failure = err
		case err != nil:
			faults = append(faults, fmt.Errorf("suite %s: %w", s.Name(), err))
		}
		if result == nil {
			continue
		}
		results = append(results, result)
		for _, sink := range a.sinks {
			if err := sink.Consume(result); err != nil {
				log.Error("Failed to consume result", "suite", result.Suite, "error", err)
			}
		}
	}

	a.report(ctx, batchID, results)

	if len(faults) > 0 {
		return suite.NewRuntimeError(errors.Join(faults...))
	}
	return failure
}

func (a *App) report(ctx context.Context, batchID string, results []*types.SuiteResult) {
	log := a.config.Log.New("batch", batchID)

	for _, sink := range a.sinks {
		if err := sink.Complete(batchID); err != nil {
			log.Error("Failed to complete report", "error", err)
			metrics.RecordErrorDetails("report", err)
		}
	}

	if a.history != nil {
		for _, r := range results {
			rate, err := a.history.PassRate(ctx, r.Suite, passRateWindow)
			if err != nil {
				log.Error("Failed to read pass rate", "suite", r.Suite, "error", err)
				continue
			}
			metrics.RecordPassRate(r.Suite, rate)
		}
	}

	if err := a.table.Print(a.config.Out, results); err != nil {
		log.Error("Failed to print results table", "error", err)
	}

	totals := reporting.Summarize(results)
	metrics.RecordBatch(totals.Status, time.Now())

	status := &BatchStatus{
		BatchID: batchID,
		Status:  totals.Status,
		Suites:  make(map[string]types.TestStatus, len(results)),
	}
	for _, r := range results {
		status.Suites[r.Suite] = r.Status
	}
	a.service.Healthz.SetStatus(status)

	a.mu.Lock()
	a.results = results
	a.mu.Unlock()

	log.Info("Suite run completed", "status", totals.Status,
		"passed", totals.Passed, "failed", totals.Failed, "total", totals.Total)
}

// Results returns the suite results of the last batch.
func (a *App) Results() []*types.SuiteResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.results
}

// Stop stops the op-suite service.
// Stop implements the cliapp.Lifecycle interface.
func (a *App) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping op-suite")

	var errs []error
	if a.trigger.Stopped() {
		a.config.Log.Debug("Batch trigger already stopped")
	} else {
		if err := a.trigger.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := a.trigger.WaitForShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	a.closeOnce.Do(func() {
		a.service.Shutdown()
		if a.progress != nil {
			a.progress.Stop()
		}
		if a.history != nil {
			if err := a.history.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing history: %w", err))
			}
		}
	})

	a.config.Log.Info("op-suite stopped successfully")
	return errors.Join(errs...)
}

// Stopped returns true if the op-suite service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (a *App) Stopped() bool {
	return a.trigger.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.trigger.WaitForShutdown(ctx)
}
