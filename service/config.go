package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-suite/flags"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// Config holds the application configuration
type Config struct {
	SuiteConfig      string               // Optional YAML file overriding suite settings
	Suites           []string             // Suites to run, empty means every enabled suite
	RunInterval      time.Duration        // Interval between runs
	RunOnce          bool                 // Exit after one run
	Sequential       bool                 // Force every suite to run its tests one at a time
	Verbose          bool                 // Force the fixture resolution trace on
	Concurrency      int                  // Cap on parallel tests (0 = suite setting)
	AfterAll         types.AfterAllPolicy // Empty keeps the suite setting
	ShowProgress     bool                 // Log periodic progress updates
	ProgressInterval time.Duration        // Interval between progress updates when ShowProgress is 'true'
	ReportDir        string               // Directory for text summaries, disabled when empty
	HistoryDB        string               // SQLite run history, disabled when empty
	HealthzAddr      string               // Health check listen address, disabled when empty
	Metrics          opmetrics.CLIConfig
	Out              io.Writer
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if runInterval < 0 {
		return nil, fmt.Errorf("run interval cannot be negative: %s", runInterval)
	}

	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative: %d", concurrency)
	}

	var afterAll types.AfterAllPolicy
	if v := ctx.String(flags.AfterAll.Name); v != "" {
		var err error
		if afterAll, err = types.ParseAfterAllPolicy(v); err != nil {
			return nil, err
		}
	}

	suiteConfig := ctx.String(flags.SuiteConfig.Name)
	if suiteConfig != "" {
		abs, err := filepath.Abs(suiteConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for suite config '%s': %w", suiteConfig, err)
		}
		suiteConfig = abs
	}

	reportDir := ctx.String(flags.ReportDir.Name)
	if reportDir != "" {
		abs, err := filepath.Abs(reportDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for report directory '%s': %w", reportDir, err)
		}
		reportDir = abs
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	return &Config{
		SuiteConfig:      suiteConfig,
		Suites:           ctx.StringSlice(flags.Suites.Name),
		RunInterval:      runInterval,
		RunOnce:          runInterval == 0,
		Sequential:       ctx.Bool(flags.Sequential.Name),
		Verbose:          ctx.Bool(flags.Verbose.Name),
		Concurrency:      concurrency,
		AfterAll:         afterAll,
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		ReportDir:        reportDir,
		HistoryDB:        ctx.String(flags.HistoryDB.Name),
		HealthzAddr:      ctx.String(flags.HealthzAddr.Name),
		Metrics:          metricsCfg,
		Out:              os.Stdout,
		Log:              log,
	}, nil
}
