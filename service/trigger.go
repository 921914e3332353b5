package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc"
)

// BatchTrigger decides when a batch of suites runs.
type BatchTrigger interface {
	Start(ctx context.Context) error
	Stop() error
	Stopped() bool
	WaitForShutdown(ctx context.Context) error
}

// IntervalTrigger runs one batch in run-once mode. Otherwise it runs a batch on
// Start and then one per interval until stopped. Ticks that arrive while a batch
// is still running are dropped, so batches never overlap.
type IntervalTrigger struct {
	interval time.Duration
	runOnce  bool
	log      log.Logger
	run      func(ctx context.Context) error

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped atomic.Bool
	loop    conc.WaitGroup
	batches atomic.Uint64
}

var _ BatchTrigger = (*IntervalTrigger)(nil)

func NewIntervalTrigger(interval time.Duration, runOnce bool, logger log.Logger, run func(ctx context.Context) error) *IntervalTrigger {
	return &IntervalTrigger{
		interval: interval,
		runOnce:  runOnce,
		log:      logger,
		run:      run,
	}
}

// Start runs the first batch and returns its error. In continuous mode a
// successful first batch starts the interval loop, which stops on Stop or
// when ctx is done.
func (t *IntervalTrigger) Start(ctx context.Context) error {
	if t.run == nil {
		return errors.New("no batch function to trigger")
	}
	if t.interval <= 0 && !t.runOnce {
		return errors.New("continuous mode needs a positive interval")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	t.stopped.Store(false)

	if t.runOnce {
		t.log.Info("Running a single batch")
		return t.trigger(ctx)
	}

	t.log.Info("Running batches", "interval", t.interval)
	if err := t.trigger(ctx); err != nil {
		cancel()
		t.stopped.Store(true)
		return err
	}

	t.loop.Go(func() {
		defer t.stopped.Store(true)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				t.log.Debug("Batch loop finished", "batches", t.batches.Load(), "reason", context.Cause(loopCtx))
				return
			case <-ticker.C:
				if err := t.trigger(loopCtx); err != nil {
					t.log.Error("Batch failed", "batch", t.batches.Load(), "err", err)
				}
			}
		}
	})
	return nil
}

func (t *IntervalTrigger) trigger(ctx context.Context) error {
	n := t.batches.Add(1)
	start := time.Now()
	err := t.run(ctx)
	elapsed := time.Since(start)
	if !t.runOnce && elapsed > t.interval {
		t.log.Warn("Batch took longer than the interval, skipping missed ticks", "batch", n, "elapsed", elapsed, "interval", t.interval)
	}
	t.log.Debug("Batch done", "batch", n, "elapsed", elapsed, "err", err)
	return err
}

// Batches returns the number of batches triggered so far.
func (t *IntervalTrigger) Batches() uint64 {
	return t.batches.Load()
}

// Stop ends the interval loop. A batch already running completes.
func (t *IntervalTrigger) Stop() error {
	if t.stopped.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

func (t *IntervalTrigger) Stopped() bool {
	return t.stopped.Load()
}

// WaitForShutdown blocks until the interval loop exited or ctx is done.
func (t *IntervalTrigger) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.loop.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.log.Warn("Timed out waiting for the batch loop", "err", ctx.Err())
		return ctx.Err()
	}
}
