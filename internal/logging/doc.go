// Package logging assembles structured slog loggers and formatting helpers used
// across mediarepo services.
//
// It owns the console and JSON handlers, fans output out to the console, the
// log file, and the in-memory StreamHub, and exposes context-aware helpers so
// pipeline code automatically tags log lines with job IDs, asset IDs, stages,
// and correlation IDs. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
