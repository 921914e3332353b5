package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	suite "github.com/ethereum-optimism/infra/op-suite"
	"github.com/ethereum-optimism/infra/op-suite/history"
	"github.com/ethereum-optimism/infra/op-suite/pipeline"
	"github.com/ethereum-optimism/infra/op-suite/registry"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

type Seed int

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		RunOnce: true,
		Out:     &bytes.Buffer{},
		Log:     log.NewLogger(log.DiscardHandler()),
	}
}

func testRegistry(t *testing.T, defs ...suite.Definition) *registry.Registry {
	t.Helper()
	reg, err := registry.NewRegistry(registry.Config{Log: log.NewLogger(log.DiscardHandler())})
	require.NoError(t, err)
	for _, def := range defs {
		require.NoError(t, reg.Register(def))
	}
	return reg
}

func passingSuite(name string) suite.Definition {
	return suite.Definition{
		Name:      name,
		BeforeAll: &suite.Hook{Fn: func() Seed { return 3 }},
		Tests: []suite.TestCase{
			{Name: "seed_is_3", Fn: func(t *pipeline.T, s Seed) { assert.Equal(t, Seed(3), s) }},
		},
	}
}

func failingSuite(name string) suite.Definition {
	return suite.Definition{
		Name: name,
		Tests: []suite.TestCase{
			{Name: "fails", Fn: func() error { return errors.New("nope") }},
		},
	}
}

func faultingSuite(name string) suite.Definition {
	return suite.Definition{
		Name:      name,
		BeforeAll: &suite.Hook{Fn: func() (Seed, error) { return 0, errors.New("no seed") }},
		Tests:     []suite.TestCase{{Name: "unreached", Fn: func(s Seed) {}}},
	}
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)
	cfg.Suites = []string{"resources"}
	a, err := New(context.Background(), cfg, "test", func(error) {})
	require.NoError(t, err)
	require.Len(t, a.suites, 1)
	assert.Equal(t, "resources", a.suites[0].Name())

	_, err = New(context.Background(), nil, "test", nil)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Suites = []string{"does-not-exist"}
	_, err = New(context.Background(), cfg, "test", nil)
	assert.ErrorContains(t, err, "unknown suite")
}

func TestAppOverrides(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sequential = true
	cfg.Concurrency = 2
	cfg.AfterAll = types.AfterAllOnSuccess
	cfg.Verbose = true

	a, err := newApp(cfg, "test", testRegistry(t, passingSuite("alpha")), nil)
	require.NoError(t, err)
	def := a.applyOverrides(suite.Definition{Name: "x", Concurrency: 8})
	assert.True(t, def.Sequential)
	assert.True(t, def.Verbose)
	assert.Equal(t, 2, def.Concurrency)
	assert.Equal(t, types.AfterAllOnSuccess, def.AfterAllPolicy)
	assert.False(t, a.suites[0].Mode().Parallel)
}

func TestAppRunOnce(t *testing.T) {
	tests := []struct {
		name        string
		defs        []suite.Definition
		wantStatus  types.TestStatus
		wantFailure bool
		wantRuntime bool
	}{
		{
			name:       "all pass",
			defs:       []suite.Definition{passingSuite("alpha"), passingSuite("beta")},
			wantStatus: types.TestStatusPass,
		},
		{
			name:        "test failure",
			defs:        []suite.Definition{passingSuite("alpha"), failingSuite("beta")},
			wantStatus:  types.TestStatusFail,
			wantFailure: true,
		},
		{
			name:        "suite fault wins",
			defs:        []suite.Definition{faultingSuite("alpha"), failingSuite("beta")},
			wantStatus:  types.TestStatusError,
			wantRuntime: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			var shutdowns atomic.Int32
			shutdown := make(chan struct{}, 1)
			a, err := newApp(cfg, "test", testRegistry(t, tt.defs...), func(error) {
				shutdowns.Add(1)
				shutdown <- struct{}{}
			})
			require.NoError(t, err)

			err = a.Start(context.Background())
			switch {
			case tt.wantRuntime:
				assert.True(t, suite.IsRuntimeError(err), "got %v", err)
			case tt.wantFailure:
				assert.True(t, suite.IsTestFailureError(err), "got %v", err)
				assert.False(t, suite.IsRuntimeError(err))
			default:
				require.NoError(t, err)
				select {
				case <-shutdown:
				case <-time.After(time.Second):
					t.Fatal("run-once success did not request shutdown")
				}
			}

			assert.Len(t, a.Results(), len(tt.defs))
			assert.Contains(t, cfg.Out.(*bytes.Buffer).String(), "TOTAL")

			a.service.Healthz.mu.RLock()
			status := a.service.Healthz.last
			a.service.Healthz.mu.RUnlock()
			require.NotNil(t, status)
			assert.Equal(t, tt.wantStatus, status.Status)

			require.NoError(t, a.Stop(context.Background()))
			assert.True(t, a.Stopped())
		})
	}
}

func TestAppContinuousModeToleratesFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunOnce = false
	cfg.RunInterval = 10 * time.Millisecond

	var runs atomic.Int32
	def := failingSuite("flaky")
	def.AfterAll = &suite.Hook{Fn: func() { runs.Add(1) }}

	a, err := newApp(cfg, "test", testRegistry(t, def), nil)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()), "failures do not stop continuous mode")

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, a.WaitForShutdown(context.Background()))
}

func TestAppSinks(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.ReportDir = filepath.Join(dir, "reports")
	cfg.HistoryDB = filepath.Join(dir, "history.db")

	a, err := newApp(cfg, "test", testRegistry(t, passingSuite("alpha"), failingSuite("beta")), nil)
	require.NoError(t, err)
	require.Len(t, a.sinks, 2)

	err = a.runSuites(context.Background())
	require.True(t, suite.IsTestFailureError(err))
	require.NoError(t, a.Stop(context.Background()))

	entries, err := os.ReadDir(cfg.ReportDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	summary, err := os.ReadFile(filepath.Join(cfg.ReportDir, entries[0].Name(), "summary.log"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "beta/fails: nope")

	h, err := history.NewSQLiteStore(cfg.HistoryDB)
	require.NoError(t, err)
	defer h.Close()
	runs, err := h.ListRuns(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, runs[0].BatchID, runs[1].BatchID)
}

func TestNoSuitesSelected(t *testing.T) {
	cfg := testConfig(t)
	_, err := newApp(cfg, "test", testRegistry(t), nil)
	assert.ErrorContains(t, err, "no suites selected")
}
