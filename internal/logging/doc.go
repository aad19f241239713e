// Package logging assembles structured slog loggers and formatting helpers used
// across spotrip.
//
// It owns the console and JSON handlers, routes output to stderr, stdout or a
// log file, and exposes context-aware helpers so engine code can tag log lines
// with run IDs, track URIs and pipeline stages. The package also provides a
// no-op logger for tests and a progress sampler that keeps per-track progress
// logging to a handful of lines when the progress bar is not rendered.
package logging
