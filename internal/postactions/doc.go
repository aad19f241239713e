// Package postactions runs the bookkeeping that follows each track and each
// run: the success/failure lists behind the end-of-run summary, the fail-log
// file, partial-file clean-up, m3u/wpl playlist files, removal of ripped
// tracks from the remote playlist, and playlist sync.
//
// An Actions value belongs to one run. It is safe for concurrent use, but the
// engine only calls it from its own goroutine.
package postactions
