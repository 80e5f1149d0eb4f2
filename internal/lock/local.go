package lock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process keyed mutex.
type Local struct {
	// Timeout bounds Acquire. Zero waits until ctx is done.
	Timeout time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocal returns a Local locker with the given acquire timeout.
func NewLocal(timeout time.Duration) *Local {
	return &Local{Timeout: timeout, slots: make(map[string]chan struct{})}
}

func (l *Local) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = make(map[string]chan struct{})
	}
	ch, ok := l.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[name] = ch
	}
	return ch
}

func (l *Local) Acquire(ctx context.Context, namespace, key string) (*Handle, error) {
	ch := l.slot(namespace + "\x00" + key)

	var timeout <-chan time.Time
	if l.Timeout > 0 {
		timer := time.NewTimer(l.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ch <- struct{}{}:
		return &Handle{Namespace: namespace, Key: key}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, ErrTimeout
	}
}

func (l *Local) Release(ctx context.Context, h *Handle) error {
	ch := l.slot(h.Namespace + "\x00" + h.Key)
	select {
	case <-ch:
		return nil
	default:
		return ErrNotHeld
	}
}
