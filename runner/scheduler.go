package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-suite/metrics"
	"github.com/ethereum-optimism/infra/op-suite/pipeline"
	"github.com/ethereum-optimism/infra/op-suite/store"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// Config holds configuration for creating a new scheduler
type Config struct {
	Suite       string
	Tasks       []*pipeline.Task
	BeforeAll   *pipeline.Func
	AfterAll    *pipeline.Func
	Sequential  bool
	AfterAllRun types.AfterAllPolicy
	Concurrency int  // Parallel blocking only, 0 means one goroutine per task
	Verbose     bool // Print the fixture resolution trace
	Out         io.Writer
	Log         log.Logger
	Progress    ProgressIndicator
}

// Scheduler runs a suite. Each call to Run uses a fresh store.
type Scheduler struct {
	cfg    Config
	mode   types.Mode
	log    log.Logger
	out    *syncWriter
	tracer trace.Tracer
}

// NewScheduler validates cfg and selects the execution mode.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}
	if cfg.AfterAllRun == "" {
		cfg.AfterAllRun = types.AfterAllAlways
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative")
	}
	for i, task := range cfg.Tasks {
		if task == nil || task.Test == nil {
			return nil, fmt.Errorf("task %d has no test function", i)
		}
		if task.Index != store.ScopeID(i) {
			return nil, fmt.Errorf("task %q has index %d, expected %d", task.Name, task.Index, i)
		}
	}

	mode := types.Mode{Parallel: !cfg.Sequential, Cooperative: suspends(cfg)}
	logger := cfg.Log.New("component", "scheduler", "suite", cfg.Suite)
	if mode.Parallel && cfg.Concurrency > MaxReasonableConcurrency {
		logger.Warn("Very high concurrency requested", "concurrency", cfg.Concurrency,
			"recommendation", "Consider using lower values to avoid resource exhaustion")
	}
	logger.Debug("NewScheduler()", "tasks", len(cfg.Tasks), "mode", mode, "afterAll", cfg.AfterAllRun)

	return &Scheduler{
		cfg:    cfg,
		mode:   mode,
		log:    logger,
		out:    newSyncWriter(cfg.Out),
		tracer: otel.Tracer("op-suite scheduler"),
	}, nil
}

func suspends(cfg Config) bool {
	for _, f := range []*pipeline.Func{cfg.BeforeAll, cfg.AfterAll} {
		if f != nil && f.Suspends() {
			return true
		}
	}
	for _, task := range cfg.Tasks {
		if task.Suspends() {
			return true
		}
	}
	return false
}

// Mode returns the execution mode selected for the suite.
func (s *Scheduler) Mode() types.Mode {
	return s.mode
}

// run holds the state of one suite run.
type run struct {
	s         *Scheduler
	id        string
	log       log.Logger
	store     *store.Store
	buckets   []store.Bucket
	rt        *Runtime // nil in blocking modes
	collector *Collector
	diag      *pipeline.Diagnostics
}

// Run executes the suite. The result is always returned; the error is non-nil
// only for suite-level faults, in which case the result status is error.
// Test failures are reported through the result alone.
func (s *Scheduler) Run(ctx context.Context) (*types.SuiteResult, error) {
	runID := uuid.New().String()
	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("suite %s", s.cfg.Suite), trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("mode", s.mode.String()),
		attribute.Int("tests", len(s.cfg.Tasks)),
	))
	defer span.End()

	r := &run{
		s:         s,
		id:        runID,
		log:       s.log.New("run_id", runID),
		collector: NewCollector(s.cfg.Suite, runID, s.mode, len(s.cfg.Tasks)),
	}
	r.store = store.New(r.log)
	r.diag = &pipeline.Diagnostics{Log: r.log, Out: s.out, Verbose: s.cfg.Verbose}
	if s.mode.Cooperative {
		r.rt = NewRuntime(r.log.New("component", "runtime"))
		defer r.rt.Close()
	}

	r.log.Info("Running suite", "tests", len(s.cfg.Tasks), "mode", s.mode)
	s.cfg.Progress.StartSuite(s.cfg.Suite, len(s.cfg.Tasks))
	defer s.cfg.Progress.CompleteSuite(s.cfg.Suite)

	err := r.execute(ctx)
	r.collector.SuiteError(err)

	result := r.collector.Finalize()
	metrics.RecordSuiteRun(result)
	if result.Error != nil {
		span.SetStatus(codes.Error, result.Error.Error())
		metrics.RecordErrorDetails("suite", result.Error)
	}
	r.log.Info("Suite completed", "status", result.Status, "passed", result.Stats.Passed,
		"failed", result.Stats.Failed, "duration", result.Stats.Duration)
	return result, result.Error
}

func (r *run) execute(ctx context.Context) (err error) {
	if err := r.prepareScopes(); err != nil {
		return err
	}

	beforeAllOK := false
	defer func() {
		err = errors.Join(err, r.finish(ctx, beforeAllOK))
	}()

	if err := r.globalPhase(ctx, types.PhaseBeforeAll, r.s.cfg.BeforeAll, nil); err != nil {
		return err
	}
	beforeAllOK = true

	switch {
	case r.s.mode.Parallel && r.s.mode.Cooperative:
		r.runParallelCooperative(ctx)
	case r.s.mode.Parallel:
		r.runParallelBlocking(ctx)
	default:
		r.runSequential(ctx)
	}
	return nil
}

func (r *run) prepareScopes() error {
	ids := make([]store.ScopeID, len(r.s.cfg.Tasks))
	for i, task := range r.s.cfg.Tasks {
		ids[i] = task.Index
	}
	if err := r.store.CreateLocalScopes(ids...); err != nil {
		return fmt.Errorf("creating local scopes: %w", err)
	}
	r.buckets = make([]store.Bucket, len(ids))
	for i, id := range ids {
		b, err := r.store.Scope(id)
		if err != nil {
			return err
		}
		r.buckets[i] = b
	}
	return nil
}

// finish runs after_all when the policy allows it and always drains the global scope.
func (r *run) finish(ctx context.Context, beforeAllOK bool) error {
	runAfterAll := beforeAllOK && r.s.cfg.AfterAll != nil
	if runAfterAll && r.s.cfg.AfterAllRun == types.AfterAllOnSuccess && r.collector.Failed() {
		r.log.Info("Skipping after_all after test failures", "policy", r.s.cfg.AfterAllRun)
		runAfterAll = false
	}
	var fn *pipeline.Func
	if runAfterAll {
		fn = r.s.cfg.AfterAll
		r.collector.AfterAllRan()
	}
	return r.globalPhase(ctx, types.PhaseAfterAll, fn, func(w *store.GlobalWriter) {
		n := w.Len()
		if err := w.Drain(); err != nil {
			r.log.Warn("Failed to release global fixtures", "err", err)
			metrics.RecordErrorDetails("drain", err)
		}
		r.log.Debug("Drained global scope", "fixtures", n)
	})
}

// globalPhase runs fn, if any, inside the global write window, followed by after.
func (r *run) globalPhase(ctx context.Context, phase types.Phase, fn *pipeline.Func, after func(w *store.GlobalWriter)) error {
	return r.store.WithGlobalWrite(func(w *store.GlobalWriter) error {
		var err error
		if fn != nil {
			err = r.call(ctx, fn.Name(), store.GlobalScope, func(ctx context.Context) error {
				ctx, span := r.s.tracer.Start(ctx, string(phase))
				defer span.End()
				err := fn.Call(ctx, w, r.diag)
				if err != nil {
					span.SetStatus(codes.Error, err.Error())
				}
				return err
			})
			if err != nil {
				r.log.Error("Suite hook failed", "phase", phase, "fn", fn.Name(), "err", err)
				err = fmt.Errorf("%s %s: %w", phase, fn.Name(), err)
			}
		}
		if after != nil {
			after(w)
		}
		return err
	})
}

// call runs fn on the backend of the run and waits for it.
func (r *run) call(ctx context.Context, name string, index store.ScopeID, fn func(ctx context.Context) error) error {
	if r.rt == nil {
		return fn(ctx)
	}
	var err error
	if joinErr := r.rt.BlockOn(ctx, name, index, func(ctx context.Context) {
		err = fn(ctx)
	}); joinErr != nil {
		return joinErr
	}
	return err
}

// runTask executes a task up to cleanup.
func (r *run) runTask(ctx context.Context, task *pipeline.Task) pipeline.Outcome {
	ctx, span := r.s.tracer.Start(ctx, fmt.Sprintf("test %s", task.Name), trace.WithAttributes(
		attribute.Int("scope", int(task.Index)),
	))
	defer span.End()

	r.s.cfg.Progress.StartTest(task.Name)
	out := task.Run(ctx, r.buckets[task.Index], r.diag)
	if out.Err != nil {
		span.SetStatus(codes.Error, out.Err.Error())
	}
	return out
}

func (r *run) runSequential(ctx context.Context) {
	for _, task := range r.s.cfg.Tasks {
		var out pipeline.Outcome
		joinErr := r.call(ctx, task.Name, task.Index, func(ctx context.Context) error {
			out = r.runTask(ctx, task)
			return nil
		})
		r.complete(ctx, task, out, joinErr)
	}
}

func (r *run) runParallelBlocking(ctx context.Context) {
	tasks := r.s.cfg.Tasks
	outcomes := make([]*pipeline.Outcome, len(tasks))

	p := pool.New()
	if r.s.cfg.Concurrency > 0 {
		p = p.WithMaxGoroutines(r.s.cfg.Concurrency)
	}
	for i, task := range tasks {
		p.Go(func() {
			out := r.runTask(ctx, task)
			outcomes[i] = &out
		})
	}
	p.Wait()

	for i, task := range tasks {
		if outcomes[i] == nil {
			r.complete(ctx, task, pipeline.Outcome{}, abortedError(task.Name, task.Index))
			continue
		}
		r.complete(ctx, task, *outcomes[i], nil)
	}
}

func (r *run) runParallelCooperative(ctx context.Context) {
	tasks := r.s.cfg.Tasks
	outcomes := make([]pipeline.Outcome, len(tasks))
	futures := make([]*Future, len(tasks))
	for i, task := range tasks {
		futures[i] = r.rt.Spawn(ctx, task.Name, task.Index, func(ctx context.Context) {
			outcomes[i] = r.runTask(ctx, task)
		})
	}
	for i, task := range tasks {
		joinErr := futures[i].Await()
		r.complete(ctx, task, outcomes[i], joinErr)
	}
}

// complete runs cleanup for a failed task, then records the result and prints its line.
func (r *run) complete(ctx context.Context, task *pipeline.Task, out pipeline.Outcome, joinErr error) {
	result := &types.TestResult{
		Index:    int(task.Index),
		Name:     task.Name,
		Status:   types.TestStatusPass,
		Duration: out.Duration,
	}
	switch {
	case joinErr != nil:
		result.Status = types.TestStatusError
		result.Error = joinErr
		result.Phase = types.PhaseTest
	case out.Err != nil:
		result.Status = types.TestStatusFail
		result.Error = out.Err
		result.Phase = out.Phase
	}

	if !result.Passed() {
		start := time.Now()
		result.Cleanup = r.call(ctx, task.Name, task.Index, func(ctx context.Context) error {
			return task.RunCleanup(ctx, r.buckets[task.Index], r.diag)
		})
		result.Duration += time.Since(start)
		if result.Cleanup != nil {
			r.log.Warn("Cleanup failed", "test", task.Name, "err", result.Cleanup)
		}
		r.log.Error("Test failed", "test", task.Name, "phase", result.Phase, "err", result.Error)
	}

	r.collector.Record(result)
	r.s.cfg.Progress.UpdateTest(task.Name, result.Status)
	fmt.Fprintln(r.s.out, resultLine(task.Name, result.Passed()))
}
