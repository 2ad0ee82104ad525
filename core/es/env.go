package es

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/esgo/internal/keylock"
)

// Env wires store, snapshotter, bus, metrics, aggregates and projections into
// one place. Commands for the same aggregate instance are serialized within
// an Env; across processes the repository's conflict retry applies.
type Env struct {
	id           string
	log          *slog.Logger
	store        EventStore
	snapshotter  Snapshotter
	bus          MessageBus
	metrics      ESMetrics
	repo         *Repository
	aggregates   map[string]*Aggregate
	projections  map[string]*Projection
	loadOpts     []LoadOption
	locks        *keylock.Locker[string]
	shutdownOnce sync.Once
}

func NewEnv(opts ...EnvOption) (*Env, error) {
	var (
		id      = gonanoid.Must(6)
		options = newEnvOpts(opts...)
		log     = options.log.With(slog.String("env", id))
	)

	repo, err := NewRepository(
		options.store,
		WithLog(log),
		WithMetrics(options.metrics),
		WithSnapshotter(options.snapshotter),
		WithBus(options.bus),
	)
	if err != nil {
		return nil, err
	}

	e := &Env{
		id:          id,
		log:         log,
		store:       options.store,
		snapshotter: options.snapshotter,
		bus:         options.bus,
		metrics:     options.metrics,
		repo:        repo,
		aggregates:  map[string]*Aggregate{},
		projections: map[string]*Projection{},
		loadOpts:    options.loadOpts,
		locks:       keylock.New[string](),
	}

	for _, agg := range options.aggregates {
		if !IsValidAggregate(agg) {
			return nil, configErrorf("invalid aggregate")
		}
		if _, dup := e.aggregates[agg.AggregateType()]; dup {
			return nil, configErrorf("aggregate %s registered twice", agg.AggregateType())
		}
		e.aggregates[agg.AggregateType()] = agg
		e.log.Debug("registered aggregate", slog.String("type", agg.AggregateType()))
	}

	for _, p := range options.projections {
		if _, dup := e.projections[p.Name()]; dup {
			e.Shutdown()
			return nil, configErrorf("projection %s registered twice", p.Name())
		}
		if err := p.Subscribe(e.bus); err != nil {
			e.Shutdown()
			return nil, err
		}
		e.projections[p.Name()] = p
		e.log.Debug("registered projection", slog.String("name", p.Name()), slog.Any("events", p.Events()))
	}

	return e, nil
}

func (e *Env) ID() string               { return e.id }
func (e *Env) Repository() *Repository  { return e.repo }
func (e *Env) Store() EventStore        { return e.store }
func (e *Env) Snapshotter() Snapshotter { return e.snapshotter }
func (e *Env) Bus() MessageBus          { return e.bus }

// Aggregate returns the registered aggregate definition for aggType.
func (e *Env) Aggregate(aggType string) (*Aggregate, error) {
	agg, ok := e.aggregates[aggType]
	if !ok {
		return nil, configErrorf("unknown aggregate type %s", aggType)
	}
	return agg, nil
}

func (e *Env) Projection(name string) (*Projection, bool) {
	p, ok := e.projections[name]
	return p, ok
}

func (e *Env) withDefaults(opts []LoadOption) []LoadOption {
	return append(append([]LoadOption(nil), e.loadOpts...), opts...)
}

// Execute runs cmd against aggregate aggType/aggID and persists the result.
func (e *Env) Execute(ctx context.Context, aggType, aggID string, cmd Command, opts ...LoadOption) (*Stream, error) {
	agg, err := e.Aggregate(aggType)
	if err != nil {
		return nil, err
	}
	var s *Stream
	err = e.locks.Do(ctx, fmt.Sprintf("%s/%s", aggType, aggID), func() (err error) {
		s, err = e.repo.Execute(ctx, agg, aggID, cmd, e.withDefaults(opts)...)
		return
	})
	return s, err
}

func (e *Env) Load(ctx context.Context, aggType, aggID string, opts ...LoadOption) (*Stream, error) {
	return e.repo.Load(ctx, aggType, aggID, e.withDefaults(opts)...)
}

// State loads aggType/aggID and projects its current state.
func (e *Env) State(ctx context.Context, aggType, aggID string, opts ...LoadOption) (State, error) {
	agg, err := e.Aggregate(aggType)
	if err != nil {
		return nil, err
	}
	s, err := e.Load(ctx, aggType, aggID, opts...)
	if err != nil {
		return nil, err
	}
	return agg.Project(s)
}

// Snapshot stores the committed state of aggType/aggID.
func (e *Env) Snapshot(ctx context.Context, aggType, aggID string) (*Snapshot, error) {
	agg, err := e.Aggregate(aggType)
	if err != nil {
		return nil, err
	}
	s, err := e.Load(ctx, aggType, aggID)
	if err != nil {
		return nil, err
	}
	return e.repo.CreateSnapshot(ctx, agg, s)
}

// Shutdown detaches all projections from the bus.
func (e *Env) Shutdown() {
	e.shutdownOnce.Do(func() {
		for _, p := range e.projections {
			p.Close()
		}
		e.log.Debug("env shutdown")
	})
}
