// Package logging assembles structured slog loggers and formatting helpers used
// across ChromaScale.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing (including the CRITICAL level used for pipeline-stopping faults),
// prunes old per-run log files, and exposes a no-op logger for tests and wiring
// code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// lines with the same shape as the rest of the system.
package logging
