//go:build !windows

package progress

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Resizer reacts to terminal size changes.
type Resizer interface {
	HandleResize()
}

// WatchResize calls r.HandleResize on every SIGWINCH until ctx is done.
func WatchResize(ctx context.Context, r Resizer) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				r.HandleResize()
			}
		}
	}()
}
