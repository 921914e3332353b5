package pipeline

import (
	"context"
	"time"

	"github.com/ethereum-optimism/infra/op-suite/store"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// Task is one test together with the suite's per-test hooks.
type Task struct {
	Index      store.ScopeID
	Name       string
	Test       *Func
	BeforeEach *Func
	AfterEach  *Func
	Cleanup    *Func
}

// Outcome is the result of running a task's pipeline up to, but excluding, cleanup.
type Outcome struct {
	Phase    types.Phase // Stage that failed
	Err      error
	Duration time.Duration
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Suspends reports whether any function of the task is suspending.
func (t *Task) Suspends() bool {
	for _, f := range []*Func{t.Test, t.BeforeEach, t.AfterEach, t.Cleanup} {
		if f != nil && f.Suspends() {
			return true
		}
	}
	return false
}

// Run executes before_each, the test and after_each against b, stopping at the
// first failure. Cleanup is left to the caller so that it can be scheduled on the
// same backend as the task.
func (t *Task) Run(ctx context.Context, b store.Bucket, d *Diagnostics) Outcome {
	start := time.Now()
	stages := []struct {
		phase types.Phase
		fn    *Func
	}{
		{types.PhaseBeforeEach, t.BeforeEach},
		{types.PhaseTest, t.Test},
		{types.PhaseAfterEach, t.AfterEach},
	}
	for _, stage := range stages {
		if stage.fn == nil {
			continue
		}
		Yield(ctx)
		if err := stage.fn.Call(ctx, b, d); err != nil {
			d.logger().Debug("Task stage failed", "task", t.Name, "phase", stage.phase, "err", err)
			return Outcome{Phase: stage.phase, Err: err, Duration: time.Since(start)}
		}
	}
	return Outcome{Duration: time.Since(start)}
}

// RunCleanup runs the cleanup hook, if any, against b.
func (t *Task) RunCleanup(ctx context.Context, b store.Bucket, d *Diagnostics) error {
	if t.Cleanup == nil {
		return nil
	}
	Yield(ctx)
	return t.Cleanup.Call(ctx, b, d)
}
