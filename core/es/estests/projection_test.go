package estests

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/esgo/core/es"
	"github.com/codewandler/esgo/core/es/estests/domain"
	"github.com/codewandler/esgo/ports/kv"
)

type completions struct {
	mu     sync.Mutex
	events []string
}

func (c *completions) record(prefix string) es.CompleteFunc {
	return func(_ context.Context, _ es.State, evt es.Event) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, prefix+":"+evt.Name)
		return nil
	}
}

func (c *completions) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func totalsProjection(t *testing.T, c *completions, opts ...es.ProjectionOption) *es.Projection {
	t.Helper()
	p, err := es.NewProjection(es.ProjectionConfig{
		Name: "totals",
		Events: []es.HandlerConfig[es.EventFunc]{
			{
				Name:    "Incremented",
				Version: 1,
				Callback: func(p es.Payload, st es.State) (es.State, error) {
					next := st.Clone()
					next["total"] = domain.Count(es.State{"count": st["total"]}) + domain.Count(es.State{"count": p["by"]})
					return next, nil
				},
				OnComplete: c.record("handler"),
			},
		},
		OnComplete: c.record("projection"),
	}, opts...)
	require.NoError(t, err)
	return p
}

func TestProjection_Config(t *testing.T) {
	_, err := es.NewProjection(es.ProjectionConfig{})
	require.ErrorIs(t, err, es.ErrConfiguration)

	_, err = es.NewProjection(es.ProjectionConfig{Name: "p"})
	require.ErrorIs(t, err, es.ErrConfiguration)

	nop := func(es.Payload, es.State) (es.State, error) { return nil, nil }
	_, err = es.NewProjection(es.ProjectionConfig{
		Name: "p",
		Events: []es.HandlerConfig[es.EventFunc]{
			{Name: "A", Version: 1, Callback: nop},
			{Name: "B", Version: 1, Callback: nop},
		},
	})
	require.ErrorIs(t, err, es.ErrConfiguration)
	require.ErrorContains(t, err, "[A,B]")

	// versions of one event are reported once
	_, err = es.NewProjection(es.ProjectionConfig{
		Name: "p",
		Events: []es.HandlerConfig[es.EventFunc]{
			{Name: "A", Version: 1, Callback: nop},
			{Name: "A", Version: 2, Callback: nop},
		},
	})
	require.ErrorIs(t, err, es.ErrConfiguration)
	require.ErrorContains(t, err, "[A]")
}

func TestProjection_HandleEvent(t *testing.T) {
	var (
		ctx = t.Context()
		c   = &completions{}
		p   = totalsProjection(t, c)
	)
	require.Equal(t, []string{"Incremented"}, p.Events())

	_, err := p.State(ctx, "c-1")
	require.ErrorIs(t, err, es.ErrProjectionStateNotFound)

	// unknown events are ignored
	st, err := p.HandleEvent(ctx, es.Event{Name: "Reset", Meta: es.Meta{es.MetaAggregateID: "c-1"}})
	require.NoError(t, err)
	require.Nil(t, st)

	for _, n := range []int{2, 3} {
		_, err := p.HandleEvent(ctx, es.Event{
			Name:         "Incremented",
			EventVersion: 1,
			Payload:      es.Payload{"by": n},
			Meta:         es.Meta{es.MetaAggregateID: "c-1"},
		})
		require.NoError(t, err)
	}

	st, err = p.State(ctx, "c-1")
	require.NoError(t, err)
	require.EqualValues(t, 5, st["total"])
	require.Equal(t, []string{
		"handler:Incremented", "projection:Incremented",
		"handler:Incremented", "projection:Incremented",
	}, c.list())

	_, err = p.HandleEvent(ctx, es.Event{Name: "Incremented", EventVersion: 1, Payload: es.Payload{"by": 1}})
	require.ErrorIs(t, err, es.ErrConfiguration)
}

func TestProjection_CompleteErrorKeepsState(t *testing.T) {
	boom := errors.New("boom")
	p, err := es.NewProjection(es.ProjectionConfig{
		Name: "failing",
		Events: []es.HandlerConfig[es.EventFunc]{{
			Name:       "Incremented",
			Version:    1,
			Callback:   func(es.Payload, es.State) (es.State, error) { return es.State{"x": 1}, nil },
			OnComplete: func(context.Context, es.State, es.Event) error { return boom },
		}},
	})
	require.NoError(t, err)

	_, err = p.HandleEvent(t.Context(), es.Event{Name: "Incremented", Meta: es.Meta{es.MetaAggregateID: "c-1"}})
	require.ErrorIs(t, err, boom)

	_, err = p.State(t.Context(), "c-1")
	require.ErrorIs(t, err, es.ErrProjectionStateNotFound)
}

func TestEnv_ProjectionReceivesCommittedEvents(t *testing.T) {
	var (
		ctx    = t.Context()
		c      = &completions{}
		states = kv.NewMemStore()
		p      = totalsProjection(t, c, es.WithStateStore(states))
		te     = es.StartTestEnv(t, es.WithAggregates(newCounter(t)), es.WithProjections(p))
	)

	got, ok := te.Projection("totals")
	require.True(t, ok)
	require.Same(t, p, got)

	te.Assert().Execute(ctx, domain.CounterType, "c-1", domain.IncCommand(4))
	te.Assert().Execute(ctx, domain.CounterType, "c-1", domain.IncCommand(6))
	te.Assert().Execute(ctx, domain.CounterType, "c-2", domain.IncCommand(1))
	te.Assert().Execute(ctx, domain.CounterType, "c-1", domain.ResetCommand())

	st, err := p.State(ctx, "c-1")
	require.NoError(t, err)
	require.EqualValues(t, 10, st["total"])

	st, err = p.State(ctx, "c-2")
	require.NoError(t, err)
	require.EqualValues(t, 1, st["total"])

	// failed commands publish nothing
	_, err = te.Execute(ctx, domain.CounterType, "c-2", domain.IncCommand(99))
	require.ErrorIs(t, err, es.ErrValidation)
	st, err = p.State(ctx, "c-2")
	require.NoError(t, err)
	require.EqualValues(t, 1, st["total"])

	_, err = te.Execute(ctx, "Unknown", "c-1", domain.IncCommand(1))
	require.ErrorIs(t, err, es.ErrConfiguration)
}

func TestEnv_SnapshotAndState(t *testing.T) {
	ctx := t.Context()
	te := es.StartTestEnv(t, es.WithAggregates(newCounter(t)))

	te.Assert().Execute(ctx, domain.CounterType, "c-1", domain.IncCommand(3))
	te.Assert().Execute(ctx, domain.CounterType, "c-1", domain.IncCommand(3))

	snap, err := te.Snapshot(ctx, domain.CounterType, "c-1")
	require.NoError(t, err)
	require.Equal(t, es.Version(2), snap.Version)

	te.Assert().Execute(ctx, domain.CounterType, "c-1", domain.IncCommand(1), es.WithSnapshot(true))

	s, err := te.Load(ctx, domain.CounterType, "c-1", es.WithSnapshot(true))
	require.NoError(t, err)
	require.Equal(t, es.Version(3), s.CommittedVersion())
	te.Assert().State(ctx, domain.CounterType, "c-1", es.State{"count": 7})
}
