// Package es is a small event-sourcing framework built around plain maps:
// commands and events carry a Payload, aggregates fold events into a State.
//
// # Overview
//
// A [Stream] is the versioned event log of one aggregate instance. It holds
// committed events (known to be durable) and uncommitted events (produced in
// memory, waiting to be persisted). Versions are contiguous and start after
// the version of an optional [Snapshot].
//
// Behaviour lives in versioned handlers kept in a [Registry]. Every handler
// has a name, a version and a callback; command and event payloads are
// checked against an optional schema (see package core/schema). Asking for a
// version that is not registered falls back to the highest one.
//
// An [Aggregate] combines a command registry with a [Projector]:
//
//	account, _ := es.NewAggregate("Account",
//	    es.WithCommands(es.HandlerConfig[es.CommandFunc]{
//	        Name: "Open", Version: 1, Schema: openSchema,
//	        Callback: func(ctx context.Context, cmd es.Command, st es.State, agg *es.Aggregate) ([]es.Event, error) {
//	            evt, err := agg.CreateEvent("Opened", cmd.Payload)
//	            return []es.Event{evt}, err
//	        },
//	    }),
//	    es.WithEvents(es.HandlerConfig[es.EventFunc]{
//	        Name: "Opened", Version: 1,
//	        Callback: func(p es.Payload, st es.State) (es.State, error) { ... },
//	    }),
//	)
//
// [Aggregate.Execute] projects the stream, validates the command, runs the
// handler, validates the produced events and appends them as uncommitted.
// It never persists anything.
//
// # Persistence
//
// The [Repository] implements the commit protocol: load the committed
// stream from an [EventStore] (optionally starting from a [Snapshotter]),
// execute, append the uncommitted events at the committed version and only
// then mark them committed. A concurrent writer makes the append fail with
// [ErrConcurrencyConflict]; [Repository.Execute] then reloads and re-runs the
// command, it never merges.
//
// Committed events are published on a [MessageBus]. A [Projection] builds
// keyed read models from them.
//
// # Environment
//
// [Env] wires everything together:
//
//	env, _ := es.NewEnv(
//	    es.WithLog(logger),
//	    es.WithStore(store),
//	    es.WithAggregates(account),
//	    es.WithProjections(balances),
//	)
//	stream, err := env.Execute(ctx, "Account", id, es.Command{Name: "Open", Payload: ...})
package es
