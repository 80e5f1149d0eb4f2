// Package lock provides the named mutual-exclusion locks that serialize
// read-modify-write sequences on a single tracker issue.
//
// Two implementations are provided:
//   - Local: an in-process keyed mutex, for single-instance runs and tests
//   - SQLite: leases in a shared SQLite database, for several processes
//     that share the database file
//
// Callers normally go through WithLock, which guarantees the release on
// every exit path.
package lock

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a lock could not be acquired in time.
	ErrTimeout = errors.New("lock acquisition timed out")

	// ErrNotHeld is returned by Release when the lease was lost, e.g. it
	// expired and another holder took it.
	ErrNotHeld = errors.New("lock not held")
)

// Handle identifies one acquired lock.
type Handle struct {
	Namespace string
	Key       string
	token     string
}

func (h *Handle) String() string {
	return fmt.Sprintf("%s/%s", h.Namespace, h.Key)
}

// Locker acquires and releases named locks.
type Locker interface {
	Acquire(ctx context.Context, namespace, key string) (*Handle, error)
	Release(ctx context.Context, h *Handle) error
}

// WithLock runs fn while holding namespace/key. The lock is released even if
// fn fails or panics. A release failure is joined to fn's error.
func WithLock(ctx context.Context, l Locker, namespace, key string, fn func(ctx context.Context) error) (err error) {
	h, err := l.Acquire(ctx, namespace, key)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s/%s: %w", namespace, key, err)
	}
	defer func() {
		// Release even when ctx is already cancelled.
		if rerr := l.Release(context.WithoutCancel(ctx), h); rerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release lock %s: %w", h, rerr))
		}
	}()
	return fn(ctx)
}
