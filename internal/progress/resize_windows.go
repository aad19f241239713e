//go:build windows

package progress

import "context"

// Resizer reacts to terminal size changes.
type Resizer interface {
	HandleResize()
}

// WatchResize is a no-op on Windows, which has no SIGWINCH.
func WatchResize(ctx context.Context, r Resizer) {}
