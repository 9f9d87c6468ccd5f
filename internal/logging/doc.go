// Package logging assembles structured slog loggers and formatting helpers used
// across the node and station daemons.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so component code can tag log
// lines with session IDs, node IDs, stages, and correlation IDs. The package
// also provides HTTP request logging middleware, log retention, and a no-op
// logger for tests and wiring code that cannot fail.
package logging
