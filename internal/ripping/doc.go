// Package ripping runs the rip queue.
//
// An Engine logs in through a session, expands the requested URIs into
// tracks and processes them strictly one at a time. For every track the
// session's delivery goroutine pushes PCM into a bounded frame buffer while
// the engine goroutine drains it into an encoder sink; the buffer refusing a
// push is the only back-pressure the session sees. Transient delivery errors
// are retried, per-track failures let the queue advance, and authentication
// or encoder spawn failures stop the run.
//
// After the queue ends, or after Abort, the engine closes the fail log,
// writes playlist files, removes ripped tracks from the remote playlist,
// prints the summary and records the run in history.
package ripping
