// Package logging assembles structured slog loggers and formatting helpers used
// across vidgrab.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with job IDs, stages, source keys, and correlation IDs. The package
// also provides a no-op logger for tests, a progress sampler for noisy encoder
// output, and pruning of old per-run log files.
package logging
