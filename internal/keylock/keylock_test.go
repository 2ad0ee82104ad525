package keylock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	l := New[string]()

	var (
		running    atomic.Int32
		maxRunning atomic.Int32
		wg         sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Do(t.Context(), "acc-1", func() error {
				cur := running.Add(1)
				if cur > maxRunning.Load() {
					maxRunning.Store(cur)
				}
				time.Sleep(2 * time.Millisecond)
				running.Add(-1)
				return nil
			}))
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxRunning.Load())
	require.Equal(t, 0, l.Len())
}

func TestLocker_ParallelAcrossKeys(t *testing.T) {
	l := New[string]()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.Do(t.Context(), "a", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		_ = l.Do(t.Context(), "b", func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("key b blocked by key a")
	}
	close(release)
}

func TestLocker_ReturnsFnError(t *testing.T) {
	l := New[int]()
	boom := errors.New("boom")
	require.ErrorIs(t, l.Do(t.Context(), 1, func() error { return boom }), boom)
}

func TestLocker_ContextCancelWhileWaiting(t *testing.T) {
	l := New[string]()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.Do(t.Context(), "k", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()

	called := false
	err := l.Do(ctx, "k", func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, called)
	close(release)
}
