// Package logging assembles structured slog loggers and formatting helpers used
// across shuttle services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so orchestration code can tag log
// lines with phases, triggers, and correlation IDs. A bounded StreamHub keeps
// recent records for the daemon's log endpoint, while Throttle and
// ProgressSampler keep repetitive diagnostics out of the output. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
