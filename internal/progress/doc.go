// Package progress renders per-track and aggregate rip progress.
//
// The Reporter draws a single progressbar line prefixed with "[n/total]" when
// it owns an interactive terminal. Otherwise it stays silent and emits
// sampled progress log lines instead. All methods are safe for concurrent
// use; HandleResize may run from a signal goroutine while the engine calls
// Update.
package progress
