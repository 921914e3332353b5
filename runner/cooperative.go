package runner

import (
	"context"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc"

	"github.com/ethereum-optimism/infra/op-suite/pipeline"
	"github.com/ethereum-optimism/infra/op-suite/store"
)

// Runtime is a cooperative runtime. Every spawned task runs on its own goroutine,
// but only the holder of the single execution baton makes progress. The baton
// changes hands when a task finishes or calls pipeline.Yield.
//
// Yield must only be called from the goroutine of a task spawned on the runtime.
type Runtime struct {
	log   log.Logger
	baton chan struct{}
	wg    conc.WaitGroup

	spawned atomic.Int64
	yields  atomic.Int64
}

var _ pipeline.Yielder = (*Runtime)(nil)

func NewRuntime(logger log.Logger) *Runtime {
	r := &Runtime{
		log:   logger,
		baton: make(chan struct{}, 1),
	}
	r.baton <- struct{}{}
	return r
}

// Future is the completion handle of a spawned task.
type Future struct {
	done chan struct{}
	err  error
}

// Await blocks until the task finished. It returns a *JoinError when the task
// goroutine ended without completing.
func (f *Future) Await() error {
	<-f.done
	return f.err
}

// Spawn starts fn as a task of the runtime. fn receives a context whose
// pipeline.Yield calls reach the runtime.
func (r *Runtime) Spawn(ctx context.Context, name string, index store.ScopeID, fn func(ctx context.Context)) *Future {
	f := &Future{done: make(chan struct{})}
	r.spawned.Add(1)
	taskCtx := pipeline.WithYielder(ctx, r)
	r.wg.Go(func() {
		completed := false
		r.acquire()
		defer func() {
			if !completed {
				r.log.Warn("Task ended without completing", "task", name, "scope", index)
				f.err = abortedError(name, index)
			}
			r.release()
			close(f.done)
		}()
		fn(taskCtx)
		completed = true
	})
	return f
}

// BlockOn spawns fn and waits for it.
func (r *Runtime) BlockOn(ctx context.Context, name string, index store.ScopeID, fn func(ctx context.Context)) error {
	return r.Spawn(ctx, name, index, fn).Await()
}

// Yield hands the baton to the next waiting task and waits to get it back.
func (r *Runtime) Yield() {
	r.yields.Add(1)
	r.release()
	r.acquire()
}

// Close waits for every spawned goroutine to exit.
func (r *Runtime) Close() {
	if rec := r.wg.WaitAndRecover(); rec != nil {
		r.log.Error("Cooperative task panicked", "panic", rec.Value)
	}
	r.log.Debug("Cooperative runtime closed", "spawned", r.spawned.Load(), "yields", r.yields.Load())
}

func (r *Runtime) acquire() {
	<-r.baton
}

func (r *Runtime) release() {
	r.baton <- struct{}{}
}
