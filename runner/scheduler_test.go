package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-suite/pipeline"
	"github.com/ethereum-optimism/infra/op-suite/store"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

type Profile struct {
	ID int
}

type Pair struct {
	A, B string
}

var allModes = []struct {
	name        string
	sequential  bool
	cooperative bool
}{
	{"sequential/blocking", true, false},
	{"parallel/blocking", false, false},
	{"sequential/cooperative", true, true},
	{"parallel/cooperative", false, true},
}

func discard() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func newScheduler(t *testing.T, cfg Config) (*Scheduler, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg.Out = &out
	cfg.Log = discard()
	if cfg.Suite == "" {
		cfg.Suite = t.Name()
	}
	s, err := NewScheduler(cfg)
	require.NoError(t, err)
	return s, &out
}

func tasks(fns ...*pipeline.Func) []*pipeline.Task {
	out := make([]*pipeline.Task, len(fns))
	for i, fn := range fns {
		out[i] = &pipeline.Task{Index: store.ScopeID(i), Name: fn.Name(), Test: fn}
	}
	return out
}

func TestGlobalFixtureFlowAllModes(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.name, func(t *testing.T) {
			beforeAll := pipeline.MustBind(types.PhaseBeforeAll, func() (int, Profile) {
				return 42, Profile{ID: 7}
			})
			check := func(name string) *pipeline.Func {
				if mode.cooperative {
					return pipeline.MustBind(types.PhaseTest, func(ctx context.Context, tt *pipeline.T, n int, p Profile) {
						pipeline.Yield(ctx)
						assert.Equal(tt, 42, n)
						assert.Equal(tt, 7, p.ID)
					}, pipeline.Named(name))
				}
				return pipeline.MustBind(types.PhaseTest, func(tt *pipeline.T, n int, p Profile) {
					assert.Equal(tt, 42, n)
					assert.Equal(tt, 7, p.ID)
				}, pipeline.Named(name))
			}

			s, out := newScheduler(t, Config{
				BeforeAll:  beforeAll,
				Tasks:      tasks(check("first"), check("second")),
				Sequential: mode.sequential,
			})
			assert.Equal(t, mode.cooperative, s.Mode().Cooperative)
			assert.Equal(t, !mode.sequential, s.Mode().Parallel)

			result, err := s.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, types.TestStatusPass, result.Status)
			assert.Equal(t, 2, result.Stats.Passed)
			assert.Empty(t, result.Failures)
			assert.Contains(t, out.String(), "first ... ✓")
			assert.Contains(t, out.String(), "second ... ✓")
		})
	}
}

func TestLocalFixturesAllModes(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.name, func(t *testing.T) {
			var checked atomic.Int32
			var beforeEach *pipeline.Func
			if mode.cooperative {
				beforeEach = pipeline.MustBind(types.PhaseBeforeEach, func(ctx context.Context) (byte, Pair) {
					pipeline.Yield(ctx)
					return 8, Pair{"a", "b"}
				})
			} else {
				beforeEach = pipeline.MustBind(types.PhaseBeforeEach, func() (byte, Pair) {
					return 8, Pair{"a", "b"}
				})
			}
			afterEach := pipeline.MustBind(types.PhaseAfterEach, func(tt *pipeline.T, p Pair, b byte) {
				assert.Equal(tt, Pair{"a", "b"}, p)
				assert.Equal(tt, byte(8), b)
				checked.Add(1)
			})

			const n = 8
			var ts []*pipeline.Task
			for i := 0; i < n; i++ {
				ts = append(ts, &pipeline.Task{
					Index:      store.ScopeID(i),
					Name:       fmt.Sprintf("task-%d", i),
					Test:       pipeline.MustBind(types.PhaseTest, func(p Pair) {}),
					BeforeEach: beforeEach,
					AfterEach:  afterEach,
				})
			}

			s, _ := newScheduler(t, Config{Tasks: ts, Sequential: mode.sequential})
			result, err := s.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, types.TestStatusPass, result.Status)
			assert.EqualValues(t, n, checked.Load())
		})
	}
}

func TestLocalOverride(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.name, func(t *testing.T) {
			beforeEach := pipeline.MustBind(types.PhaseBeforeEach, func(n int) int { return n + 1 })
			var seen sync.Map
			body := func(name string) *pipeline.Func {
				if mode.cooperative {
					return pipeline.MustBind(types.PhaseTest, func(ctx context.Context, n int) { seen.Store(name, n) }, pipeline.Named(name))
				}
				return pipeline.MustBind(types.PhaseTest, func(n int) { seen.Store(name, n) }, pipeline.Named(name))
			}
			ts := tasks(body("a"), body("b"))
			for _, task := range ts {
				task.BeforeEach = beforeEach
			}
			s, _ := newScheduler(t, Config{
				BeforeAll:  pipeline.MustBind(types.PhaseBeforeAll, func() int { return 1 }),
				Tasks:      ts,
				Sequential: mode.sequential,
			})
			result, err := s.Run(context.Background())
			require.NoError(t, err)
			require.Equal(t, types.TestStatusPass, result.Status)

			for _, name := range []string{"a", "b"} {
				v, ok := seen.Load(name)
				require.True(t, ok)
				assert.Equal(t, 2, v, "each task sees its own local value, not global or another task's")
			}
		})
	}
}

func TestScopeIsolationParallel(t *testing.T) {
	type owner struct{ name string }
	var leaks atomic.Int32

	var ts []*pipeline.Task
	for i := 0; i < 16; i++ {
		name := fmt.Sprintf("iso-%d", i)
		ts = append(ts, &pipeline.Task{
			Index: store.ScopeID(i),
			Name:  name,
			BeforeEach: pipeline.MustBind(types.PhaseBeforeEach, func() owner {
				return owner{name: name}
			}),
			Test: pipeline.MustBind(types.PhaseTest, func(o owner) {
				if o.name != name {
					leaks.Add(1)
				}
			}),
		})
	}
	s, _ := newScheduler(t, Config{Tasks: ts})
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.Zero(t, leaks.Load())
}

func TestAllTasksRunAfterFailure(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.name, func(t *testing.T) {
			var runs [4]atomic.Int32
			boom := errors.New("boom")
			var fns []*pipeline.Func
			for i := 0; i < 4; i++ {
				i := i
				if mode.cooperative {
					fns = append(fns, pipeline.MustBind(types.PhaseTest, func(ctx context.Context) error {
						runs[i].Add(1)
						if i == 1 {
							return boom
						}
						return nil
					}, pipeline.Named(fmt.Sprintf("t%d", i))))
					continue
				}
				fns = append(fns, pipeline.MustBind(types.PhaseTest, func() error {
					runs[i].Add(1)
					if i == 1 {
						return boom
					}
					return nil
				}, pipeline.Named(fmt.Sprintf("t%d", i))))
			}

			s, out := newScheduler(t, Config{Tasks: tasks(fns...), Sequential: mode.sequential})
			result, err := s.Run(context.Background())
			require.NoError(t, err, "test failures are not suite faults")

			for i := range runs {
				assert.EqualValues(t, 1, runs[i].Load(), "task %d runs exactly once", i)
			}
			assert.Equal(t, types.TestStatusFail, result.Status)
			require.Len(t, result.Failures, 1)
			assert.Equal(t, "t1", result.Failures[0].Name)
			assert.ErrorIs(t, result.Failures[0].Err, boom)
			assert.Equal(t, 3, result.Stats.Passed)
			assert.Equal(t, 1, result.Stats.Failed)

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			assert.Len(t, lines, 4)
			assert.Contains(t, lines, "t1 ... x")
			assert.Contains(t, lines, "t0 ... ✓")
		})
	}
}

func TestCleanupOnFailure(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.name, func(t *testing.T) {
			var mu sync.Mutex
			var events []string
			record := func(e string) {
				mu.Lock()
				defer mu.Unlock()
				events = append(events, e)
			}

			cleanup := pipeline.MustBind(types.PhaseCleanup, func(p Pair) {
				record("cleanup " + p.A)
			})
			beforeEach := pipeline.MustBind(types.PhaseBeforeEach, func(n int) Pair {
				return Pair{A: fmt.Sprint(n)}
			})
			progress := &recordingProgress{onUpdate: func(name string, status types.TestStatus) {
				record("recorded " + name + " " + string(status))
			}}

			mk := func(name string, fail bool) *pipeline.Func {
				if mode.cooperative {
					return pipeline.MustBind(types.PhaseTest, func(ctx context.Context, tt *pipeline.T) {
						require.False(tt, fail)
					}, pipeline.Named(name))
				}
				return pipeline.MustBind(types.PhaseTest, func(tt *pipeline.T) {
					require.False(tt, fail)
				}, pipeline.Named(name))
			}
			ts := tasks(mk("ok", false), mk("bad", true))
			for _, task := range ts {
				task.BeforeEach = beforeEach
				task.Cleanup = cleanup
			}

			s, _ := newScheduler(t, Config{
				BeforeAll:  pipeline.MustBind(types.PhaseBeforeAll, func() int { return 5 }),
				Tasks:      ts,
				Sequential: mode.sequential,
				Progress:   progress,
			})
			result, err := s.Run(context.Background())
			require.NoError(t, err)
			require.Equal(t, types.TestStatusFail, result.Status)

			var ae *pipeline.AssertionError
			require.ErrorAs(t, result.Failures[0].Err, &ae)

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 1, countPrefix(events, "cleanup"), "cleanup runs exactly once, only for the failed task")
			ci := indexOf(events, "cleanup 5")
			ri := indexOf(events, "recorded bad fail")
			require.GreaterOrEqual(t, ci, 0)
			require.GreaterOrEqual(t, ri, 0)
			assert.Less(t, ci, ri, "cleanup runs before the failure is recorded")
		})
	}
}

type volatile struct{}

func (volatile) Clone() volatile { panic("clone exploded") }

func TestPanickingCloneFailsOnlyReader(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.name, func(t *testing.T) {
			var cleanups atomic.Int32
			var okRan atomic.Bool

			var reader, other *pipeline.Func
			if mode.cooperative {
				reader = pipeline.MustBind(types.PhaseTest, func(ctx context.Context, v volatile) {}, pipeline.Named("reader"))
				other = pipeline.MustBind(types.PhaseTest, func(ctx context.Context) { okRan.Store(true) }, pipeline.Named("other"))
			} else {
				reader = pipeline.MustBind(types.PhaseTest, func(v volatile) {}, pipeline.Named("reader"))
				other = pipeline.MustBind(types.PhaseTest, func() { okRan.Store(true) }, pipeline.Named("other"))
			}
			ts := tasks(reader, other)
			cleanup := pipeline.MustBind(types.PhaseCleanup, func() { cleanups.Add(1) })
			for _, task := range ts {
				task.Cleanup = cleanup
			}

			s, _ := newScheduler(t, Config{
				BeforeAll:  pipeline.MustBind(types.PhaseBeforeAll, func() volatile { return volatile{} }),
				Tasks:      ts,
				Sequential: mode.sequential,
			})

			var result *types.SuiteResult
			var err error
			require.NotPanics(t, func() {
				result, err = s.Run(context.Background())
			})
			require.NoError(t, err)
			require.Len(t, result.Failures, 1)
			assert.Equal(t, "reader", result.Failures[0].Name)

			var pe *pipeline.PanicError
			require.ErrorAs(t, result.Failures[0].Err, &pe)
			assert.Equal(t, types.TestStatusPass, result.Tests[1].Status)
			assert.True(t, okRan.Load())
			assert.Equal(t, int32(1), cleanups.Load())
		})
	}
}

func TestCleanupErrorKeepsOriginalFault(t *testing.T) {
	boom := errors.New("boom")
	cleanupErr := errors.New("cleanup failed")
	ts := tasks(pipeline.MustBind(types.PhaseTest, func() error { return boom }, pipeline.Named("failing")))
	ts[0].Cleanup = pipeline.MustBind(types.PhaseCleanup, func() error { return cleanupErr })

	s, _ := newScheduler(t, Config{Tasks: ts})
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Tests, 1)
	assert.ErrorIs(t, result.Tests[0].Error, boom)
	assert.ErrorIs(t, result.Tests[0].Cleanup, cleanupErr)
	assert.Equal(t, types.PhaseTest, result.Tests[0].Phase)
}

func TestFixtureMissingFailsOnlyThatTask(t *testing.T) {
	ts := tasks(
		pipeline.MustBind(types.PhaseTest, func(p Profile) {}, pipeline.Named("needs_profile")),
		pipeline.MustBind(types.PhaseTest, func() {}, pipeline.Named("independent")),
	)
	s, _ := newScheduler(t, Config{Tasks: ts, Sequential: true})
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)

	var fe *pipeline.FixtureError
	require.ErrorAs(t, result.Failures[0].Err, &fe)
	assert.Equal(t, types.TestStatusPass, result.Tests[1].Status)
}

func TestBeforeAllFailureAbortsSuite(t *testing.T) {
	boom := errors.New("no node")
	var ran, afterAll atomic.Bool
	s, out := newScheduler(t, Config{
		BeforeAll: pipeline.MustBind(types.PhaseBeforeAll, func() (*closable, error) {
			return nil, boom
		}),
		AfterAll: pipeline.MustBind(types.PhaseAfterAll, func() { afterAll.Store(true) }),
		Tasks:    tasks(pipeline.MustBind(types.PhaseTest, func() { ran.Store(true) })),
	})
	result, err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "before_all")
	assert.Equal(t, types.TestStatusError, result.Status)
	assert.False(t, ran.Load())
	assert.False(t, afterAll.Load())
	assert.False(t, result.AfterAllRan)
	assert.Empty(t, out.String())
}

type closable struct {
	closed atomic.Bool
}

func (c *closable) Close() error {
	c.closed.Store(true)
	return nil
}

func TestGlobalDrainClosesFixtures(t *testing.T) {
	c := &closable{}
	s, _ := newScheduler(t, Config{
		BeforeAll: pipeline.MustBind(types.PhaseBeforeAll, func() *closable { return c }),
		Tasks: tasks(pipeline.MustBind(types.PhaseTest, func(tt *pipeline.T, got *closable) {
			assert.False(tt, got.closed.Load())
		})),
	})
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.True(t, c.closed.Load())
}

func TestAfterAllPolicy(t *testing.T) {
	tests := []struct {
		name         string
		policy       types.AfterAllPolicy
		fail         bool
		wantAfterAll bool
	}{
		{name: "always after success", policy: types.AfterAllAlways, wantAfterAll: true},
		{name: "always after failure", policy: types.AfterAllAlways, fail: true, wantAfterAll: true},
		{name: "default after failure", policy: "", fail: true, wantAfterAll: true},
		{name: "on success after success", policy: types.AfterAllOnSuccess, wantAfterAll: true},
		{name: "on success after failure", policy: types.AfterAllOnSuccess, fail: true, wantAfterAll: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ran atomic.Bool
			fail := tt.fail
			s, _ := newScheduler(t, Config{
				BeforeAll:   pipeline.MustBind(types.PhaseBeforeAll, func() int { return 1 }),
				AfterAll:    pipeline.MustBind(types.PhaseAfterAll, func(n int) { ran.Store(n == 1) }),
				AfterAllRun: tt.policy,
				Tasks: tasks(pipeline.MustBind(types.PhaseTest, func() error {
					if fail {
						return errors.New("fail")
					}
					return nil
				})),
			})
			result, err := s.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantAfterAll, ran.Load())
			assert.Equal(t, tt.wantAfterAll, result.AfterAllRan)
		})
	}
}

func TestAfterAllFailureIsSuiteFault(t *testing.T) {
	boom := errors.New("teardown")
	s, _ := newScheduler(t, Config{
		AfterAll: pipeline.MustBind(types.PhaseAfterAll, func() error { return boom }),
		Tasks:    tasks(pipeline.MustBind(types.PhaseTest, func() {})),
	})
	result, err := s.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, types.TestStatusError, result.Status)
	assert.Equal(t, types.TestStatusPass, result.Tests[0].Status)
}

func TestAbortedTaskIsJoinError(t *testing.T) {
	for _, mode := range allModes {
		if mode.name == "sequential/blocking" {
			// Runs on the caller's goroutine.
			continue
		}
		t.Run(mode.name, func(t *testing.T) {
			var fn *pipeline.Func
			if mode.cooperative {
				fn = pipeline.MustBind(types.PhaseTest, func(ctx context.Context) { runtime.Goexit() }, pipeline.Named("aborts"))
			} else {
				fn = pipeline.MustBind(types.PhaseTest, func() { runtime.Goexit() }, pipeline.Named("aborts"))
			}
			var cleaned atomic.Bool
			ts := tasks(fn, pipeline.MustBind(types.PhaseTest, func() {}, pipeline.Named("fine")))
			ts[0].Cleanup = pipeline.MustBind(types.PhaseCleanup, func() { cleaned.Store(true) })

			s, _ := newScheduler(t, Config{Tasks: ts, Sequential: mode.sequential})
			result, err := s.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, result.Failures, 1)

			var je *JoinError
			require.ErrorAs(t, result.Failures[0].Err, &je)
			assert.Equal(t, "task aborted", je.Reason)
			assert.Equal(t, types.TestStatusError, result.Tests[0].Status)
			assert.Equal(t, types.TestStatusPass, result.Tests[1].Status)
			assert.True(t, cleaned.Load())
		})
	}
}

func TestParallelResultsIndexedByScope(t *testing.T) {
	var fns []*pipeline.Func
	for i := 0; i < 10; i++ {
		fns = append(fns, pipeline.MustBind(types.PhaseTest, func() {
			runtime.Gosched()
		}, pipeline.Named(fmt.Sprintf("p%d", i))))
	}
	s, _ := newScheduler(t, Config{Tasks: tasks(fns...), Concurrency: 3})
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	for i, r := range result.Tests {
		require.NotNil(t, r)
		assert.Equal(t, i, r.Index)
		assert.Equal(t, fmt.Sprintf("p%d", i), r.Name)
	}
}

func TestConcurrencyCap(t *testing.T) {
	var running, peak atomic.Int32
	gate := make(chan struct{})
	var fns []*pipeline.Func
	for i := 0; i < 6; i++ {
		fns = append(fns, pipeline.MustBind(types.PhaseTest, func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-gate
			running.Add(-1)
		}))
	}
	close(gate)
	s, _ := newScheduler(t, Config{Tasks: tasks(fns...), Concurrency: 2})
	_, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestCooperativeRunsOneTaskAtATime(t *testing.T) {
	var running, peak atomic.Int32
	var fns []*pipeline.Func
	for i := 0; i < 5; i++ {
		fns = append(fns, pipeline.MustBind(types.PhaseTest, func(ctx context.Context) {
			for j := 0; j < 3; j++ {
				n := running.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				running.Add(-1)
				pipeline.Yield(ctx)
			}
		}, pipeline.Named(fmt.Sprintf("c%d", i))))
	}
	s, _ := newScheduler(t, Config{Tasks: tasks(fns...)})
	require.True(t, s.Mode().Cooperative)
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.EqualValues(t, 1, peak.Load())
}

func TestVerboseDiagnostics(t *testing.T) {
	s, out := newScheduler(t, Config{
		BeforeAll: pipeline.MustBind(types.PhaseBeforeAll, func() int { return 3 }),
		Tasks:     tasks(pipeline.MustBind(types.PhaseTest, func(n int) {}, pipeline.Named("reads_int"))),
		Verbose:   true,
	})
	_, err := s.Run(context.Background())
	require.NoError(t, err)
	got := out.String()
	assert.Contains(t, got, "Running before_all")
	assert.Contains(t, got, "setting int to global state")
	assert.Contains(t, got, "reads_int - starting test")
	assert.Contains(t, got, "reads_int - getting int from local state")
	assert.Contains(t, got, "reads_int - int not found in local state, getting from global")
	assert.Contains(t, got, "reads_int ... ✓")
}

func TestNewSchedulerValidation(t *testing.T) {
	fn := pipeline.MustBind(types.PhaseTest, func() {})
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "negative concurrency", cfg: Config{Concurrency: -1}, wantErr: "negative"},
		{name: "missing test", cfg: Config{Tasks: []*pipeline.Task{{Index: 0}}}, wantErr: "no test function"},
		{name: "wrong index", cfg: Config{Tasks: []*pipeline.Task{{Index: 3, Test: fn}}}, wantErr: "expected 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Log = discard()
			_, err := NewScheduler(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEmptySuitePasses(t *testing.T) {
	var afterAll atomic.Bool
	s, _ := newScheduler(t, Config{AfterAll: pipeline.MustBind(types.PhaseAfterAll, func() { afterAll.Store(true) })})
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.True(t, afterAll.Load())
}

func TestRunIsRepeatable(t *testing.T) {
	s, _ := newScheduler(t, Config{
		BeforeAll: pipeline.MustBind(types.PhaseBeforeAll, func() int { return 1 }),
		Tasks:     tasks(pipeline.MustBind(types.PhaseTest, func(n int) {})),
	})
	first, err := s.Run(context.Background())
	require.NoError(t, err)
	second, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, types.TestStatusPass, second.Status)
}

type recordingProgress struct {
	onUpdate func(name string, status types.TestStatus)
}

func (p *recordingProgress) StartSuite(string, int) {}
func (p *recordingProgress) StartTest(string)       {}
func (p *recordingProgress) UpdateTest(name string, status types.TestStatus) {
	p.onUpdate(name, status)
}
func (p *recordingProgress) CompleteSuite(string) {}

func countPrefix(events []string, prefix string) int {
	n := 0
	for _, e := range events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func indexOf(events []string, e string) int {
	for i, v := range events {
		if v == e {
			return i
		}
	}
	return -1
}
