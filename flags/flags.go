package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

const EnvVarPrefix = "OP_SUITE"

var (
	SuiteConfig = &cli.StringFlag{
		Name:    "suite-config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITE_CONFIG"),
		Usage:   "Path to a YAML file overriding suite settings (eg. 'suites.yaml')",
	}
	Suites = &cli.StringSliceFlag{
		Name:    "suites",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITES"),
		Usage:   "Suites to run (eg. 'global-fixtures,resources'). Runs every enabled suite when omitted.",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between suite runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Sequential = &cli.BoolFlag{
		Name:    "sequential",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SEQUENTIAL"),
		Usage:   "Run the tests of every suite one at a time, in declaration order",
	}
	Verbose = &cli.BoolFlag{
		Name:    "verbose",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "VERBOSE"),
		Usage:   "Print the fixture resolution trace of every hook and test",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Maximum number of tests running at once in parallel suites (0 = one per test)",
	}
	AfterAll = &cli.StringFlag{
		Name:    "after-all",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "AFTER_ALL"),
		Usage: fmt.Sprintf("When after_all runs: %q or %q. Suite config wins when omitted.",
			types.AfterAllAlways, types.AfterAllOnSuccess),
		Action: func(_ *cli.Context, v string) error {
			return validateAfterAll(v)
		},
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Log periodic progress updates while suites run",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when show-progress is enabled (0 = 30s)",
	}
	ReportDir = &cli.StringFlag{
		Name:    "report-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT_DIR"),
		Usage:   "Directory for per-run text summaries. Disabled when empty.",
	}
	HistoryDB = &cli.StringFlag{
		Name:    "history-db",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HISTORY_DB"),
		Usage:   "Path to a SQLite database recording every suite run. Disabled when empty.",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the health check server. Disabled when empty.",
	}
)

var requiredFlags []cli.Flag

var optionalFlags = []cli.Flag{
	SuiteConfig,
	Suites,
	RunInterval,
	Sequential,
	Verbose,
	Concurrency,
	AfterAll,
	ShowProgress,
	ProgressInterval,
	ReportDir,
	HistoryDB,
	HealthzAddr,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func validateAfterAll(v string) error {
	_, err := types.ParseAfterAllPolicy(v)
	return err
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
