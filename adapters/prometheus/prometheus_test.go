package prometheus

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esgo/core/es"
)

func TestNewESMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewESMetrics(reg)

	for _, timer := range []interface{ ObserveDuration() }{
		m.CommandDuration("Account", "Open"),
		m.ProjectDuration("Account"),
		m.StoreLoadDuration("Account"),
		m.StoreAppendDuration("Account"),
		m.SnapshotLoadDuration("Account"),
		m.SnapshotSaveDuration("Account"),
	} {
		require.NotNil(t, timer)
		timer.ObserveDuration()
	}

	m.CommandExecuted("Account", "Open", true)
	m.CommandExecuted("Account", "Open", false)
	m.EventsAppended("Account", 5)
	m.ConcurrencyConflict("Account")
	m.CommandRetried("Account")
	m.ProjectionEventProcessed("balances", "Opened", true)

	assert.Equal(t, float64(5), testutil.ToFloat64(m.eventsAppended.WithLabelValues("Account")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.commandsTotal.WithLabelValues("Account", "Open", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.concurrencyConflicts.WithLabelValues("Account")))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["esgo_es_command_duration_seconds"])
	assert.True(t, names["esgo_es_store_load_duration_seconds"])
	assert.True(t, names["esgo_es_projection_events_total"])
}

func TestESMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewESMetrics(reg)
	require.Panics(t, func() { NewESMetrics(reg) })
}

func TestESMetrics_WithEnv(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewESMetrics(reg)

	agg, err := es.NewAggregate(
		"Account",
		es.WithMetrics(m),
		es.WithCommands(es.HandlerConfig[es.CommandFunc]{
			Name:    "Open",
			Version: 1,
			Callback: func(_ context.Context, cmd es.Command, _ es.State, a *es.Aggregate) ([]es.Event, error) {
				evt, err := a.CreateEvent("Opened", cmd.Payload)
				return []es.Event{evt}, err
			},
		}),
		es.WithEvents(es.HandlerConfig[es.EventFunc]{
			Name:     "Opened",
			Version:  1,
			Callback: func(p es.Payload, st es.State) (es.State, error) { return nil, nil },
		}),
	)
	require.NoError(t, err)

	te := es.StartTestEnv(t, es.WithMetrics(m), es.WithAggregates(agg))
	te.Assert().Execute(t.Context(), "Account", "acct-1", es.Command{Name: "Open", Payload: es.Payload{"owner": "alice"}})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.commandsTotal.WithLabelValues("Account", "Open", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsAppended.WithLabelValues("Account")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.storeLoadDuration))
}
