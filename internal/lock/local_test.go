package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalMutualExclusion(t *testing.T) {
	l := NewLocal(0)
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(ctx, l, "ns", "key", func(ctx context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocalDistinctKeysDoNotBlock(t *testing.T) {
	l := NewLocal(50 * time.Millisecond)
	ctx := context.Background()

	h1, err := l.Acquire(ctx, "ns", "a")
	require.NoError(t, err)
	h2, err := l.Acquire(ctx, "ns", "b")
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, h1))
	require.NoError(t, l.Release(ctx, h2))
}

func TestLocalTimeout(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)
	ctx := context.Background()

	h, err := l.Acquire(ctx, "ns", "key")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "ns", "key")
	assert.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, l.Release(ctx, h))
	h, err = l.Acquire(ctx, "ns", "key")
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, h))
}

func TestLocalContextCancelled(t *testing.T) {
	l := NewLocal(0)
	h, err := l.Acquire(context.Background(), "ns", "key")
	require.NoError(t, err)
	defer func() { _ = l.Release(context.Background(), h) }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "ns", "key")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalReleaseNotHeld(t *testing.T) {
	l := NewLocal(0)
	err := l.Release(context.Background(), &Handle{Namespace: "ns", Key: "key"})
	assert.ErrorIs(t, err, ErrNotHeld)
}

func TestWithLockReleasesOnError(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithLock(ctx, l, "ns", "key", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	// The lock must be free again.
	err = WithLock(ctx, l, "ns", "key", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestWithLockAcquireFailure(t *testing.T) {
	l := NewLocal(10 * time.Millisecond)
	ctx := context.Background()
	h, err := l.Acquire(ctx, "ns", "key")
	require.NoError(t, err)
	defer func() { _ = l.Release(ctx, h) }()

	called := false
	err = WithLock(ctx, l, "ns", "key", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, called)
	assert.Contains(t, err.Error(), "ns/key")
}
