// Package logging assembles structured slog loggers and formatting helpers used
// across psorcast.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so render tasks automatically
// tag log lines with task IDs, activity identifiers, and correlation IDs. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
