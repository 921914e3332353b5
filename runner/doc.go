// Package runner executes a bound suite.
//
// The main components are:
//   - Scheduler: runs before_all, every task and after_all in one of four modes,
//     (sequential|parallel) x (blocking|cooperative)
//   - Runtime: the cooperative runtime, which lets exactly one task run at a time and
//     switches tasks at hook boundaries and explicit pipeline.Yield calls
//   - Collector: aggregates task outcomes into a single suite result
//   - ProgressIndicator: periodic progress logging for long runs
package runner
