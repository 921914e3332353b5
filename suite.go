// Package suite runs collections of independent tests that share setup and
// teardown data through a typed, lifecycle-scoped fixture store.
//
// A suite is declared as a Definition of plain Go functions and bound once by
// Build. Hook parameters declare the fixture types a function needs and its
// results declare the fixture types it provides:
//
//	def := suite.Definition{
//		Name:      "counter",
//		BeforeAll: &suite.Hook{Fn: func() (Config, error) { ... }},
//		BeforeEach: &suite.Hook{Fn: func(cfg Config) *Client { ... }},
//		Tests: []suite.TestCase{
//			{Name: "increments", Fn: func(t *pipeline.T, c *Client) { ... }},
//		},
//	}
//
// before_all outputs land in the global scope and before_each outputs in the
// test's own local scope. Reads look in the local scope first.
package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-suite/pipeline"
	"github.com/ethereum-optimism/infra/op-suite/runner"
	"github.com/ethereum-optimism/infra/op-suite/store"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// Hook is a setup or teardown function of a suite.
type Hook struct {
	Fn   any
	Name string // Defaults to the function name
	// Returns overrides the output types, one per non-error result.
	Returns []reflect.Type
}

// TestCase is one test of a suite.
type TestCase struct {
	Name string
	Fn   any
}

// Definition declares a suite.
type Definition struct {
	Name        string
	Description string
	Tests       []TestCase

	BeforeAll  *Hook
	BeforeEach *Hook
	AfterEach  *Hook
	AfterAll   *Hook
	Cleanup    *Hook // Runs instead of AfterEach when a test fails

	Sequential     bool
	Verbose        bool
	AfterAllPolicy types.AfterAllPolicy
	Concurrency    int

	Out      io.Writer
	Log      log.Logger
	Progress runner.ProgressIndicator
}

// Suite is a bound, runnable suite.
type Suite struct {
	name      string
	log       log.Logger
	scheduler *runner.Scheduler
}

// Build binds every function of def. Problems that can be detected without
// running anything, such as output type mismatches, are reported here.
func Build(def Definition) (*Suite, error) {
	if def.Name == "" {
		return nil, errors.New("suite name is required")
	}
	if def.Log == nil {
		def.Log = log.New()
	}
	if def.Out == nil {
		def.Out = os.Stdout
	}
	if _, err := types.ParseAfterAllPolicy(string(def.AfterAllPolicy)); err != nil {
		return nil, fmt.Errorf("suite %s: %w", def.Name, err)
	}
	logger := def.Log.New("suite", def.Name)

	hooks := make(map[types.Phase]*pipeline.Func)
	for phase, h := range map[types.Phase]*Hook{
		types.PhaseBeforeAll:  def.BeforeAll,
		types.PhaseBeforeEach: def.BeforeEach,
		types.PhaseAfterEach:  def.AfterEach,
		types.PhaseAfterAll:   def.AfterAll,
		types.PhaseCleanup:    def.Cleanup,
	} {
		if h == nil {
			continue
		}
		f, err := bindHook(phase, h)
		if err != nil {
			return nil, fmt.Errorf("suite %s: %w", def.Name, err)
		}
		hooks[phase] = f
	}

	seen := make(map[string]bool, len(def.Tests))
	tasks := make([]*pipeline.Task, 0, len(def.Tests))
	for i, tc := range def.Tests {
		if tc.Name == "" {
			return nil, fmt.Errorf("suite %s: test %d has no name", def.Name, i)
		}
		if seen[tc.Name] {
			return nil, fmt.Errorf("suite %s: duplicate test name %q", def.Name, tc.Name)
		}
		seen[tc.Name] = true

		fn, err := pipeline.Bind(types.PhaseTest, tc.Fn, pipeline.Named(tc.Name))
		if err != nil {
			return nil, fmt.Errorf("suite %s: %w", def.Name, err)
		}
		tasks = append(tasks, &pipeline.Task{
			Index:      store.ScopeID(i),
			Name:       tc.Name,
			Test:       fn,
			BeforeEach: hooks[types.PhaseBeforeEach],
			AfterEach:  hooks[types.PhaseAfterEach],
			Cleanup:    hooks[types.PhaseCleanup],
		})
	}

	warnUnprovided(logger, hooks, tasks)

	sched, err := runner.NewScheduler(runner.Config{
		Suite:       def.Name,
		Tasks:       tasks,
		BeforeAll:   hooks[types.PhaseBeforeAll],
		AfterAll:    hooks[types.PhaseAfterAll],
		Sequential:  def.Sequential,
		AfterAllRun: def.AfterAllPolicy,
		Concurrency: def.Concurrency,
		Verbose:     def.Verbose,
		Out:         def.Out,
		Log:         def.Log,
		Progress:    def.Progress,
	})
	if err != nil {
		return nil, fmt.Errorf("suite %s: %w", def.Name, err)
	}

	logger.Debug("Built suite", "tests", len(tasks), "mode", sched.Mode())
	return &Suite{
		name:      def.Name,
		log:       logger,
		scheduler: sched,
	}, nil
}

func bindHook(phase types.Phase, h *Hook) (*pipeline.Func, error) {
	var opts []pipeline.Option
	if h.Name != "" {
		opts = append(opts, pipeline.Named(h.Name))
	}
	if h.Returns != nil {
		opts = append(opts, pipeline.Returns(h.Returns...))
	}
	return pipeline.Bind(phase, h.Fn, opts...)
}

// warnUnprovided logs inputs that no hook of the suite publishes. They can only
// resolve if some other code filled the store, so they usually fail at run time.
func warnUnprovided(logger log.Logger, hooks map[types.Phase]*pipeline.Func, tasks []*pipeline.Task) {
	provided := make(map[reflect.Type]bool)
	for _, phase := range []types.Phase{types.PhaseBeforeAll, types.PhaseBeforeEach} {
		if f := hooks[phase]; f != nil {
			for _, out := range f.Outputs() {
				provided[out] = true
			}
		}
	}
	check := func(f *pipeline.Func) {
		if f == nil {
			return
		}
		for _, in := range f.Inputs() {
			if !provided[in] {
				logger.Warn("Input is not provided by any hook", "fn", f.Name(), "kind", f.Kind(), "type", in.String())
			}
		}
	}
	for _, f := range hooks {
		check(f)
	}
	for _, task := range tasks {
		check(task.Test)
	}
}

func (s *Suite) Name() string {
	return s.name
}

// Mode returns the execution mode selected for the suite.
func (s *Suite) Mode() types.Mode {
	return s.scheduler.Mode()
}

// Run executes the suite once. It returns a *RuntimeError for suite-level
// faults and a *TestFailureError, which unwraps to the last recorded fault,
// when any test failed. The result is returned in every case.
func (s *Suite) Run(ctx context.Context) (*types.SuiteResult, error) {
	result, err := s.scheduler.Run(ctx)
	if err != nil {
		return result, NewRuntimeError(err)
	}
	if result.Status == types.TestStatusFail {
		return result, NewTestFailureError(result)
	}
	return result, nil
}

// RunT builds and runs def as part of a Go test, reporting every failure on t.
func RunT(t testing.TB, def Definition) *types.SuiteResult {
	t.Helper()
	if def.Name == "" {
		def.Name = t.Name()
	}
	s, err := Build(def)
	if err != nil {
		t.Fatalf("building suite: %v", err)
		return nil
	}
	result, err := s.Run(context.Background())
	if IsRuntimeError(err) {
		t.Fatalf("%v", err)
		return result
	}
	for _, f := range result.Failures {
		t.Errorf("%s: %v", f.Name, f.Err)
	}
	return result
}
