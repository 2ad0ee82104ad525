package sf

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGroup_Dedup(t *testing.T) {
	var (
		g       = New[int]()
		calls   atomic.Int32
		release = make(chan struct{})
		started = make(chan struct{})
		wg      sync.WaitGroup
		results = make([]int, 5)
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _, _ = g.Do("k", func() (int, error) {
			close(started)
			calls.Add(1)
			<-release
			return 42, nil
		})
	}()
	<-started

	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _, _ = g.Do("k", func() (int, error) {
				calls.Add(1)
				return -1, nil
			})
		}()
	}

	close(release)
	wg.Wait()

	require.Equal(t, 42, results[0])
	for _, r := range results[1:] {
		// late callers either joined the flight or ran after it finished
		require.Contains(t, []int{42, -1}, r)
	}
	require.LessOrEqual(t, calls.Load(), int32(len(results)))
}

func TestGroup_Error(t *testing.T) {
	g := New[*string]()
	boom := errors.New("boom")

	v, err, _ := g.Do("k", func() (*string, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.Nil(t, v)

	s := "ok"
	v, err, shared := g.Do("k", func() (*string, error) { return &s, nil })
	require.NoError(t, err)
	require.False(t, shared)
	require.Equal(t, "ok", *v)

	g.Forget("k")
}
