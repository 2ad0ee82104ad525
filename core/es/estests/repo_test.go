package estests

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esgo/core/es"
	"github.com/codewandler/esgo/core/es/estests/domain"
)

func newCounter(t *testing.T) *es.Aggregate {
	t.Helper()
	agg, err := domain.NewCounter()
	require.NoError(t, err)
	return agg
}

func TestRepository_LoadEmpty(t *testing.T) {
	repo, err := es.NewRepository(es.NewInMemoryStore())
	require.NoError(t, err)

	s, err := repo.Load(t.Context(), domain.CounterType, "c-1")
	require.NoError(t, err)
	require.Empty(t, s.Events(0))
	require.Equal(t, es.Version(1), s.ExpectedNextVersion())

	_, err = repo.Load(t.Context(), domain.CounterType, "")
	require.ErrorIs(t, err, es.ErrConfiguration)

	_, err = es.NewRepository(nil)
	require.ErrorIs(t, err, es.ErrConfiguration)
}

func TestRepository_SaveCommitsOnlyOnSuccess(t *testing.T) {
	var (
		ctx   = t.Context()
		agg   = newCounter(t)
		store = es.NewInMemoryStore()
	)
	repo, err := es.NewRepository(store)
	require.NoError(t, err)

	s, err := repo.Load(ctx, domain.CounterType, "c-1")
	require.NoError(t, err)
	_, err = agg.Execute(ctx, domain.IncCommand(2), s)
	require.NoError(t, err)
	require.True(t, s.HasUncommitted())

	// a competing writer gets there first
	_, err = store.Append(ctx, domain.CounterType, "c-1", 0, []es.Event{{Name: "Reset", EventVersion: 1, Version: 1}})
	require.NoError(t, err)

	err = repo.Save(ctx, s)
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)
	require.True(t, s.HasUncommitted())
	require.Equal(t, es.Version(0), s.CommittedVersion())

	// the fresh stream saves fine
	s, err = repo.Load(ctx, domain.CounterType, "c-1")
	require.NoError(t, err)
	_, err = agg.Execute(ctx, domain.IncCommand(2), s)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, s))
	require.False(t, s.HasUncommitted())
	require.Equal(t, es.Version(2), s.CommittedVersion())

	// nothing to save is a no-op
	require.NoError(t, repo.Save(ctx, s))
}

// racingStore lets a competing writer append right before the first n appends.
type racingStore struct {
	*es.InMemoryStore
	races atomic.Int32
}

func (r *racingStore) Append(
	ctx context.Context,
	aggType, aggID string,
	expectedVersion es.Version,
	events []es.Event,
) (*es.StoreAppendResult, error) {
	if r.races.Add(-1) >= 0 {
		_, err := r.InMemoryStore.Append(ctx, aggType, aggID, expectedVersion, []es.Event{{
			Name:         "Incremented",
			EventVersion: 1,
			Version:      expectedVersion + 1,
			Payload:      es.Payload{"by": 1},
		}})
		if err != nil {
			return nil, err
		}
	}
	return r.InMemoryStore.Append(ctx, aggType, aggID, expectedVersion, events)
}

func TestRepository_ExecuteRetriesOnConflict(t *testing.T) {
	store := &racingStore{InMemoryStore: es.NewInMemoryStore()}
	store.races.Store(2)

	repo, err := es.NewRepository(store)
	require.NoError(t, err)
	agg := newCounter(t)

	s, err := repo.Execute(t.Context(), agg, "c-1", domain.IncCommand(5))
	require.NoError(t, err)
	require.Equal(t, es.Version(3), s.CommittedVersion())

	st, err := agg.Project(s)
	require.NoError(t, err)
	require.Equal(t, 7, domain.Count(st))
}

func TestRepository_ExecuteGivesUp(t *testing.T) {
	store := &racingStore{InMemoryStore: es.NewInMemoryStore()}
	store.races.Store(10)

	repo, err := es.NewRepository(store)
	require.NoError(t, err)

	_, err = repo.Execute(t.Context(), newCounter(t), "c-1", domain.IncCommand(1), es.WithMaxRetries(2))
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)
	require.Equal(t, int32(7), store.races.Load())
}

func TestRepository_ExecuteDoesNotRetryValidation(t *testing.T) {
	repo, err := es.NewRepository(es.NewInMemoryStore())
	require.NoError(t, err)

	_, err = repo.Execute(t.Context(), newCounter(t), "c-1", domain.IncCommand(25))
	require.ErrorIs(t, err, es.ErrValidation)

	var ve *es.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, []string{"counter cannot exceed 24"}, ve.Violations)
}

func TestRepository_Snapshots(t *testing.T) {
	var (
		ctx         = t.Context()
		agg         = newCounter(t)
		store       = es.NewInMemoryStore()
		snapshotter = es.NewInMemorySnapshotter()
	)
	repo, err := es.NewRepository(store, es.WithSnapshotter(snapshotter))
	require.NoError(t, err)

	for range 3 {
		_, err := repo.Execute(ctx, agg, "c-1", domain.IncCommand(2), es.WithSnapshot(true))
		require.NoError(t, err)
	}

	snap, err := snapshotter.LoadSnapshot(ctx, domain.CounterType, "c-1")
	require.NoError(t, err)
	require.Equal(t, es.Version(3), snap.Version)
	require.Equal(t, 6, domain.Count(snap.State))

	// another writer appends behind the snapshot's back
	_, err = store.Append(ctx, domain.CounterType, "c-1", 3, []es.Event{{
		Name: "Incremented", EventVersion: 1, Version: 4, Payload: es.Payload{"by": 4},
	}})
	require.NoError(t, err)

	s, err := repo.Load(ctx, domain.CounterType, "c-1", es.WithSnapshot(true))
	require.NoError(t, err)
	require.NotNil(t, s.Snapshot())
	require.Len(t, s.Events(0), 1)
	require.Equal(t, es.Version(4), s.CommittedVersion())

	st, err := agg.Project(s)
	require.NoError(t, err)
	require.Equal(t, 10, domain.Count(st))

	_, err = repo.CreateSnapshot(ctx, agg, s)
	require.NoError(t, err)
	snap, err = snapshotter.LoadSnapshot(ctx, domain.CounterType, "c-1")
	require.NoError(t, err)
	require.Equal(t, es.Version(4), snap.Version)
}

func TestRepository_CreateSnapshotRequiresCommittedStream(t *testing.T) {
	repo, err := es.NewRepository(es.NewInMemoryStore(), es.WithSnapshotter(es.NewInMemorySnapshotter()))
	require.NoError(t, err)
	agg := newCounter(t)

	s, err := repo.Load(t.Context(), domain.CounterType, "c-1")
	require.NoError(t, err)
	_, err = agg.Execute(t.Context(), domain.IncCommand(1), s)
	require.NoError(t, err)

	_, err = repo.CreateSnapshot(t.Context(), agg, s)
	require.ErrorIs(t, err, es.ErrConfiguration)

	noSnap, err := es.NewRepository(es.NewInMemoryStore())
	require.NoError(t, err)
	_, err = noSnap.CreateSnapshot(t.Context(), agg, s)
	require.ErrorIs(t, err, es.ErrConfiguration)
}

func TestEnv_ConcurrentCommands(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(newCounter(t)))

	const n = 12
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := te.Execute(t.Context(), domain.CounterType, "c-1", domain.IncCommand(2))
			assert.NoError(t, err)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout")
	case <-done:
	}

	te.Assert().Version(t.Context(), domain.CounterType, "c-1", n)
	te.Assert().State(t.Context(), domain.CounterType, "c-1", es.State{"count": 24})

	_, err := te.Execute(t.Context(), domain.CounterType, "c-1", domain.IncCommand(1))
	require.ErrorIs(t, err, es.ErrValidation)
}
