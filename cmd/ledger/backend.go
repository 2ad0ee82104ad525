package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codewandler/esgo/adapters/nats"
	"github.com/codewandler/esgo/adapters/sqlite"
	"github.com/codewandler/esgo/core/es"
	"github.com/codewandler/esgo/examples/accounting"
)

// ledger is one opened backend with the accounting domain wired in.
type ledger struct {
	env      *es.Env
	account  *es.Aggregate
	balances *es.Projection
	closers  []func() error
}

func (l *ledger) Close() error {
	l.env.Shutdown()
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		errs = append(errs, l.closers[i]())
	}
	return errors.Join(errs...)
}

func openLedger(ctx context.Context, cfg Config, log *slog.Logger) (_ *ledger, err error) {
	l := &ledger{}
	defer func() {
		if err != nil {
			for i := len(l.closers) - 1; i >= 0; i-- {
				_ = l.closers[i]()
			}
		}
	}()

	var (
		envOpts     []es.EnvOption
		projOpts    = []es.ProjectionOption{es.WithLog(log)}
		snapshotter es.Snapshotter
	)

	switch cfg.Backend {
	case backendMemory:
		snapshotter = es.NewInMemorySnapshotter()

	case backendSQLite:
		store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLitePath, Log: log})
		if err != nil {
			return nil, err
		}
		l.closers = append(l.closers, store.Close)
		envOpts = append(envOpts, es.WithStore(store))
		projOpts = append(projOpts, es.WithStateStore(store))
		snapshotter = store

	case backendNATS:
		connect := nats.ReuseConnection(nats.ConnectURL(cfg.NatsURL))
		name := strings.ReplaceAll(cfg.NatsPrefix, ".", "_")

		store, err := nats.NewEventStore(nats.EventStoreConfig{
			Connect:       connect,
			Log:           log,
			SubjectPrefix: cfg.NatsPrefix + ".es",
			StreamName:    name + "_events",
		})
		if err != nil {
			return nil, fmt.Errorf("nats event store: %w", err)
		}
		l.closers = append(l.closers, store.Close)

		snaps, err := nats.NewKvStore(nats.KvConfig{Connect: connect, Bucket: name + "_snapshots"})
		if err != nil {
			return nil, fmt.Errorf("nats snapshots: %w", err)
		}
		l.closers = append(l.closers, func() error { snaps.Close(); return nil })

		states, err := nats.NewKvStore(nats.KvConfig{Connect: connect, Bucket: name + "_balances"})
		if err != nil {
			return nil, fmt.Errorf("nats balances: %w", err)
		}
		l.closers = append(l.closers, func() error { states.Close(); return nil })

		bus, err := nats.NewBus(nats.BusConfig{Connect: connect, Log: log, SubjectPrefix: cfg.NatsPrefix + ".events"})
		if err != nil {
			return nil, fmt.Errorf("nats bus: %w", err)
		}
		l.closers = append(l.closers, func() error { bus.Close(); return nil })

		envOpts = append(envOpts, es.WithStore(store), es.WithBus(bus))
		projOpts = append(projOpts, es.WithStateStore(states))
		snapshotter = es.NewKeyValueSnapshotter(snaps)

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.CacheSize > 0 {
		snapshotter = es.NewCachedSnapshotter(snapshotter, es.CachedSnapshotterOpts{Size: cfg.CacheSize})
	}

	if l.account, err = accounting.NewAccount(es.WithLog(log)); err != nil {
		return nil, err
	}
	if l.balances, err = accounting.NewBalances(nil, projOpts...); err != nil {
		return nil, err
	}

	l.env, err = es.NewEnv(append(envOpts,
		es.WithLog(log),
		es.WithSnapshotter(snapshotter),
		es.WithSnapshot(cfg.Snapshots),
		es.WithAggregates(l.account),
		es.WithProjections(l.balances),
	)...)
	if err != nil {
		return nil, err
	}
	return l, nil
}
