package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Memory(t *testing.T) {
	type Foo struct {
		Name string
		Age  int
	}
	s := NewMemStore()

	_, err := Get[Foo](t.Context(), s, "foobar")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Put[Foo](t.Context(), s, "p1", Foo{Name: "P1", Age: 10}, PutOptions{}))
	require.NoError(t, Put[Foo](t.Context(), s, "p2", Foo{Name: "P2", Age: 20}, PutOptions{}))
	require.Equal(t, 2, s.Len())

	loaded, err := Get[Foo](t.Context(), s, "p1")
	require.NoError(t, err)
	require.Equal(t, Foo{Name: "P1", Age: 10}, loaded)

	require.NoError(t, s.Delete(t.Context(), "p1"))
	_, err = Get[Foo](t.Context(), s, "p1")
	require.ErrorIs(t, err, ErrNotFound)
}

func Test_MemoryTTL(t *testing.T) {
	var (
		now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		s   = NewMemStore()
	)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(t.Context(), "short", Entry{Data: []byte("1")}, PutOptions{TTL: time.Minute}))
	require.NoError(t, s.Put(t.Context(), "forever", Entry{Data: []byte("2")}, PutOptions{}))

	_, err := s.Get(t.Context(), "short")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	require.Equal(t, 1, s.Len())
	_, err = s.Get(t.Context(), "short")
	require.ErrorIs(t, err, ErrNotFound)

	e, err := s.Get(t.Context(), "forever")
	require.NoError(t, err)
	require.Equal(t, []byte("2"), e.Data)
}
