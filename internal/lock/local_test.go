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

// exclusive checks that at most one fn runs per key at a time.
func exclusive(t *testing.T, l Locker, key string, workers int) {
	t.Helper()
	var running, maxRunning, done int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), key, func(ctx context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					m := atomic.LoadInt32(&maxRunning)
					if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&running, -1)
				atomic.AddInt32(&done, 1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxRunning)
	assert.Equal(t, int32(workers), done)
}

func TestLocalWithLock(t *testing.T) {
	t.Run("serializes same key", func(t *testing.T) {
		exclusive(t, NewLocal(), GroupKey("g1"), 20)
	})

	t.Run("returns fn error unchanged", func(t *testing.T) {
		want := errors.New("boom")
		err := NewLocal().WithLock(context.Background(), "k", func(ctx context.Context) error { return want })
		assert.Same(t, want, err)
	})

	t.Run("empty key", func(t *testing.T) {
		err := NewLocal().WithLock(context.Background(), " ", func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, err, ErrEmptyKey)
	})

	t.Run("different keys do not block each other", func(t *testing.T) {
		l := NewLocal()
		entered := make(chan struct{})
		release := make(chan struct{})
		go func() {
			_ = l.WithLock(context.Background(), "a", func(ctx context.Context) error {
				close(entered)
				<-release
				return nil
			})
		}()
		<-entered

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		ran := false
		require.NoError(t, l.WithLock(ctx, "b", func(ctx context.Context) error {
			ran = true
			return nil
		}))
		assert.True(t, ran)
		close(release)
	})

	t.Run("waiting honours context", func(t *testing.T) {
		l := NewLocal()
		entered := make(chan struct{})
		release := make(chan struct{})
		go func() {
			_ = l.WithLock(context.Background(), "a", func(ctx context.Context) error {
				close(entered)
				<-release
				return nil
			})
		}()
		<-entered

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := l.WithLock(ctx, "a", func(ctx context.Context) error {
			t.Error("fn must not run without the lock")
			return nil
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		close(release)
	})

	t.Run("idle keys are dropped", func(t *testing.T) {
		l := NewLocal()
		for _, k := range []string{"a", "b", "c"} {
			require.NoError(t, l.WithLock(context.Background(), k, func(ctx context.Context) error { return nil }))
		}
		assert.Equal(t, 0, l.size())
	})
}
