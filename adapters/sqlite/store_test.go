package sqlite

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esgo/core/es"
	"github.com/codewandler/esgo/ports/kv"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.Context(), Config{Path: filepath.Join(t.TempDir(), "esgo.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func event(name string, v es.Version, p es.Payload) es.Event {
	return es.Event{
		ID:           fmt.Sprintf("%s-%d", name, v),
		Name:         name,
		EventVersion: 1,
		Version:      v,
		Payload:      p,
		Meta:         es.Meta{es.MetaAggregateType: "Account"},
	}
}

func TestOpen(t *testing.T) {
	_, err := Open(t.Context(), Config{})
	require.Error(t, err)

	// migrations run once per database
	path := filepath.Join(t.TempDir(), "esgo.db")
	for range 2 {
		s, err := Open(t.Context(), Config{Path: path})
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
}

func TestStore_Events(t *testing.T) {
	var (
		ctx   = t.Context()
		store = openTestStore(t)
	)

	events, err := store.Load(ctx, "Account", "acct-1")
	require.NoError(t, err)
	require.Empty(t, events)

	res, err := store.Append(ctx, "Account", "acct-1", 0, []es.Event{
		event("Opened", 1, es.Payload{"owner": "alice"}),
		event("Deposited", 2, es.Payload{"amount": 5}),
	})
	require.NoError(t, err)
	require.Equal(t, es.Version(2), res.LastVersion)
	require.Equal(t, uint64(2), res.LastSeq)

	t.Run("load", func(t *testing.T) {
		events, err := store.Load(ctx, "Account", "acct-1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		require.Equal(t, "Opened-1", events[0].ID)
		require.Equal(t, "alice", events[0].Payload["owner"])
		require.EqualValues(t, 5, events[1].Payload["amount"])
		require.Equal(t, "Account", events[1].Meta[es.MetaAggregateType])
		require.False(t, events[1].OccurredAt.IsZero())
	})

	t.Run("start at version", func(t *testing.T) {
		events, err := store.Load(ctx, "Account", "acct-1", es.WithStartAtVersion(2))
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, es.Version(2), events[0].Version)
	})

	t.Run("conflict", func(t *testing.T) {
		_, err := store.Append(ctx, "Account", "acct-1", 1, []es.Event{event("Deposited", 2, nil)})
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)

		events, err := store.Load(ctx, "Account", "acct-1")
		require.NoError(t, err)
		require.Len(t, events, 2)
	})

	t.Run("sequencing", func(t *testing.T) {
		_, err := store.Append(ctx, "Account", "acct-1", 2, []es.Event{event("Deposited", 4, nil)})
		require.ErrorIs(t, err, es.ErrSequencing)
	})

	t.Run("streams are isolated", func(t *testing.T) {
		events, err := store.Load(ctx, "Invoice", "acct-1")
		require.NoError(t, err)
		require.Empty(t, events)
	})
}

func TestStore_ConcurrentAppend(t *testing.T) {
	store := openTestStore(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(t.Context(), "Account", "acct-1", 0, []es.Event{event("Opened", 1, nil)})
			if err != nil {
				assert.ErrorIs(t, err, es.ErrConcurrencyConflict)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, succeeded)
}

func TestStore_Snapshots(t *testing.T) {
	var (
		ctx   = t.Context()
		store = openTestStore(t)
	)

	_, err := store.LoadSnapshot(ctx, "Account", "acct-1")
	require.ErrorIs(t, err, es.ErrSnapshotNotFound)

	for _, v := range []es.Version{3, 7} {
		require.NoError(t, store.SaveSnapshot(ctx, &es.Snapshot{
			ID:            fmt.Sprintf("snap-%d", v),
			AggregateType: "Account",
			AggregateID:   "acct-1",
			Version:       v,
			State:         es.State{"balance": float64(v)},
		}))
	}

	snap, err := store.LoadSnapshot(ctx, "Account", "acct-1")
	require.NoError(t, err)
	require.Equal(t, "snap-7", snap.ID)
	require.Equal(t, es.Version(7), snap.Version)
	require.Equal(t, es.State{"balance": float64(7)}, snap.State)
}

func TestStore_KV(t *testing.T) {
	var (
		ctx   = t.Context()
		store = openTestStore(t)
		now   = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	)
	store.now = func() time.Time { return now }

	_, err := store.Get(ctx, "balances.acct-1")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, kv.Put(ctx, store, "balances.acct-1", map[string]int{"balance": 5}, kv.PutOptions{}))
	require.NoError(t, kv.Put(ctx, store, "balances.acct-1", map[string]int{"balance": 8}, kv.PutOptions{}))
	got, err := kv.Get[map[string]int](ctx, store, "balances.acct-1")
	require.NoError(t, err)
	require.Equal(t, 8, got["balance"])

	require.NoError(t, store.Put(ctx, "session", kv.Entry{Data: []byte("x"), Meta: map[string]any{"by": "cli"}}, kv.PutOptions{TTL: time.Minute}))
	e, err := store.Get(ctx, "session")
	require.NoError(t, err)
	require.Equal(t, "cli", e.Meta["by"])

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "session")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "balances.acct-1"))
	_, err = store.Get(ctx, "balances.acct-1")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStore_Env(t *testing.T) {
	store := openTestStore(t)
	repo, err := es.NewRepository(store, es.WithSnapshotter(store))
	require.NoError(t, err)

	s, err := repo.Load(t.Context(), "Account", "acct-1")
	require.NoError(t, err)
	require.NoError(t, s.AddEvents(event("Opened", 1, es.Payload{"owner": "bob"})))
	require.NoError(t, repo.Save(t.Context(), s))

	s, err = repo.Load(t.Context(), "Account", "acct-1", es.WithSnapshot(true))
	require.NoError(t, err)
	require.Equal(t, es.Version(1), s.CommittedVersion())
	require.Nil(t, s.Snapshot())
}
