// Package runlock keeps one rip per settings directory. A session holds a
// single delivery context per account, so two concurrent runs would steal
// audio from each other.
package runlock

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"

	"spotrip/internal/fileutil"
	"spotrip/internal/services"
)

// ErrLocked reports that another spotrip process holds the lock.
var ErrLocked = errors.New("another spotrip instance is already running")

// Lock is a held run lock.
type Lock struct {
	lock *flock.Flock
}

// Acquire takes the lock at path without waiting.
func Acquire(path string) (*Lock, error) {
	if err := fileutil.EnsureParent(path); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "runlock", "acquire", path, ErrLocked)
	}
	return &Lock{lock: lock}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.lock.Path()
}

// Release drops the lock. Safe on nil and after a previous Release.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
