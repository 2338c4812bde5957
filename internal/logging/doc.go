// Package logging assembles structured slog loggers and formatting helpers used
// across digitflow processes.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so orchestrator and API code can
// tag log lines with run IDs, stages, correction IDs, and correlation IDs. The
// package also provides a no-op logger for tests and log retention pruning.
package logging
