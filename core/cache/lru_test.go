package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLRU_Basic(t *testing.T) {
	l := NewLRU[int](LRUOpts{Size: 2})

	l.Put("a", 1)
	l.Put("b", 2)

	val, ok := l.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, val)

	l.Put("c", 3) // evicts "b", "a" was used more recently

	_, ok = l.Get("b")
	require.False(t, ok)

	val, ok = l.Get("c")
	require.True(t, ok)
	require.Equal(t, 3, val)
	require.Equal(t, 2, l.Len())
}

func TestLRU_Update(t *testing.T) {
	l := NewLRU[int](LRUOpts{Size: 2})

	l.Put("a", 1)
	l.Put("a", 2)

	val, ok := l.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, val)
	require.Equal(t, 1, l.Len())
}

func TestLRU_Delete(t *testing.T) {
	l := NewLRU[int](LRUOpts{Size: 2})
	l.Put("a", 1)
	l.Put("b", 2)

	l.Delete("a")
	l.Delete("nonexistent")

	_, ok := l.Get("a")
	require.False(t, ok)
	val, ok := l.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, val)
}

func TestLRU_TTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLRU[int](LRUOpts{Size: 4, TTL: time.Hour})
	l.now = func() time.Time { return now }

	l.Put("a", 1, WithTTL(time.Minute))
	l.Put("b", 2)

	_, ok := l.Get("a")
	require.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = l.Get("a")
	require.False(t, ok)
	require.Equal(t, 1, l.Len())

	_, ok = l.Get("b")
	require.True(t, ok)

	// re-putting refreshes the expiry
	l.Put("b", 3)
	now = now.Add(59 * time.Minute)
	val, ok := l.Get("b")
	require.True(t, ok)
	require.Equal(t, 3, val)

	now = now.Add(time.Minute)
	_, ok = l.Get("b")
	require.False(t, ok)
}

func TestLRU_DefaultSize(t *testing.T) {
	l := NewLRU[int](LRUOpts{})
	for i := range defaultLRUSize + 1 {
		l.Put(fmt.Sprint(i), i)
	}
	require.Equal(t, defaultLRUSize, l.Len())
	_, ok := l.Get("0")
	require.False(t, ok)
}

func TestLRU_Concurrent(t *testing.T) {
	l := NewLRU[int](LRUOpts{Size: 100})

	var wg sync.WaitGroup
	for w := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 1000 {
				l.Put(fmt.Sprint(w), j)
				l.Get(fmt.Sprint(w))
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 10, l.Len())
}

func TestNop(t *testing.T) {
	var c Cache[string] = NewNop[string]()
	c.Put("key", "val")
	c.Delete("key")
	val, ok := c.Get("key")
	require.False(t, ok)
	require.Empty(t, val)
}
