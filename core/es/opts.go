package es

import (
	"log/slog"

	"github.com/codewandler/esgo/ports/kv"
)

type (
	valueOption[T any] struct{ v T }

	LogOption         valueOption[*slog.Logger]
	ESMetricsOption   valueOption[ESMetrics]
	IdentityOption    valueOption[Identity]
	CommandsOption    valueOption[[]HandlerConfig[CommandFunc]]
	EventsOption      valueOption[[]HandlerConfig[EventFunc]]
	StoreOption       valueOption[EventStore]
	SnapshotterOption valueOption[Snapshotter]
	BusOption         valueOption[MessageBus]
	SnapshotOption    valueOption[bool]
	MaxRetriesOption  valueOption[int]
	AggregatesOption  valueOption[[]*Aggregate]
	ProjectionsOption valueOption[[]*Projection]
	StateStoreOption  valueOption[kv.Store]
)

func WithLog(l *slog.Logger) LogOption                { return LogOption{v: l} }
func WithMetrics(m ESMetrics) ESMetricsOption         { return ESMetricsOption{v: m} }
func WithIdentity(id Identity) IdentityOption         { return IdentityOption{v: id} }
func WithStore(s EventStore) StoreOption              { return StoreOption{v: s} }
func WithSnapshotter(s Snapshotter) SnapshotterOption { return SnapshotterOption{v: s} }
func WithBus(b MessageBus) BusOption                  { return BusOption{v: b} }
func WithMaxRetries(n int) MaxRetriesOption           { return MaxRetriesOption{v: n} }

// WithSnapshot enables snapshot usage for a load or execute call.
func WithSnapshot(enabled bool) SnapshotOption { return SnapshotOption{v: enabled} }

func WithCommands(cfgs ...HandlerConfig[CommandFunc]) CommandsOption {
	return CommandsOption{v: cfgs}
}

func WithEvents(cfgs ...HandlerConfig[EventFunc]) EventsOption {
	return EventsOption{v: cfgs}
}

// WithStateStore sets where a Projection keeps its states.
func WithStateStore(s kv.Store) StateStoreOption { return StateStoreOption{v: s} }

func WithAggregates(aggs ...*Aggregate) AggregatesOption { return AggregatesOption{v: aggs} }
func WithProjections(ps ...*Projection) ProjectionsOption {
	return ProjectionsOption{v: ps}
}

// === aggregate ===

type (
	aggregateOpts struct {
		log      *slog.Logger
		metrics  ESMetrics
		identity Identity
		commands []HandlerConfig[CommandFunc]
		events   []HandlerConfig[EventFunc]
	}

	AggregateOption interface{ applyToAggregate(*aggregateOpts) }
)

func (o LogOption) applyToAggregate(a *aggregateOpts)       { a.log = o.v }
func (o ESMetricsOption) applyToAggregate(a *aggregateOpts) { a.metrics = o.v }
func (o IdentityOption) applyToAggregate(a *aggregateOpts)  { a.identity = o.v }
func (o CommandsOption) applyToAggregate(a *aggregateOpts) {
	a.commands = append(a.commands, o.v...)
}
func (o EventsOption) applyToAggregate(a *aggregateOpts) { a.events = append(a.events, o.v...) }

func newAggregateOpts(opts ...AggregateOption) aggregateOpts {
	options := aggregateOpts{
		log:     slog.Default(),
		metrics: NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToAggregate(&options)
	}
	return options
}

// === create event ===

type (
	eventOpts struct {
		version int
		meta    Meta
	}

	EventOption        interface{ applyToEvent(*eventOpts) }
	EventVersionOption valueOption[int]
	EventMetaOption    valueOption[Meta]
)

func WithEventVersion(v int) EventVersionOption { return EventVersionOption{v: v} }
func WithEventMeta(m Meta) EventMetaOption      { return EventMetaOption{v: m} }

func (o EventVersionOption) applyToEvent(e *eventOpts) { e.version = o.v }
func (o EventMetaOption) applyToEvent(e *eventOpts) {
	if e.meta == nil {
		e.meta = Meta{}
	}
	for k, v := range o.v {
		e.meta[k] = v
	}
}

// === repository ===

type (
	repoOpts struct {
		log         *slog.Logger
		metrics     ESMetrics
		snapshotter Snapshotter
		bus         MessageBus
	}

	RepositoryOption interface{ applyToRepository(*repoOpts) }

	repoLoadOpts struct {
		snapshot   bool
		maxRetries int
	}

	LoadOption interface{ applyToLoadOptions(*repoLoadOpts) }
)

func (o LogOption) applyToRepository(r *repoOpts)         { r.log = o.v }
func (o ESMetricsOption) applyToRepository(r *repoOpts)   { r.metrics = o.v }
func (o SnapshotterOption) applyToRepository(r *repoOpts) { r.snapshotter = o.v }
func (o BusOption) applyToRepository(r *repoOpts)         { r.bus = o.v }

func (o SnapshotOption) applyToLoadOptions(l *repoLoadOpts)   { l.snapshot = o.v }
func (o MaxRetriesOption) applyToLoadOptions(l *repoLoadOpts) { l.maxRetries = o.v }

func newRepoOpts(opts ...RepositoryOption) repoOpts {
	options := repoOpts{
		log:     slog.Default(),
		metrics: NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToRepository(&options)
	}
	return options
}

func newLoadOpts(opts ...LoadOption) repoLoadOpts {
	options := repoLoadOpts{maxRetries: 3}
	for _, opt := range opts {
		opt.applyToLoadOptions(&options)
	}
	return options
}

// === projection ===

type (
	projectionOpts struct {
		log     *slog.Logger
		metrics ESMetrics
		states  kv.Store
	}

	ProjectionOption interface{ applyToProjection(*projectionOpts) }
)

func (o LogOption) applyToProjection(p *projectionOpts)        { p.log = o.v }
func (o ESMetricsOption) applyToProjection(p *projectionOpts)  { p.metrics = o.v }
func (o StateStoreOption) applyToProjection(p *projectionOpts) { p.states = o.v }

func newProjectionOpts(opts ...ProjectionOption) projectionOpts {
	options := projectionOpts{
		log:     slog.Default(),
		metrics: NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToProjection(&options)
	}
	if options.states == nil {
		options.states = kv.NewMemStore()
	}
	return options
}

// === env ===

type (
	envOpts struct {
		log         *slog.Logger
		metrics     ESMetrics
		store       EventStore
		snapshotter Snapshotter
		bus         MessageBus
		aggregates  []*Aggregate
		projections []*Projection
		loadOpts    []LoadOption
	}

	EnvOption interface{ applyToEnv(*envOpts) }
)

func (o LogOption) applyToEnv(e *envOpts)         { e.log = o.v }
func (o ESMetricsOption) applyToEnv(e *envOpts)   { e.metrics = o.v }
func (o StoreOption) applyToEnv(e *envOpts)       { e.store = o.v }
func (o SnapshotterOption) applyToEnv(e *envOpts) { e.snapshotter = o.v }
func (o BusOption) applyToEnv(e *envOpts)         { e.bus = o.v }
func (o SnapshotOption) applyToEnv(e *envOpts)    { e.loadOpts = append(e.loadOpts, o) }
func (o MaxRetriesOption) applyToEnv(e *envOpts)  { e.loadOpts = append(e.loadOpts, o) }
func (o AggregatesOption) applyToEnv(e *envOpts) {
	e.aggregates = append(e.aggregates, o.v...)
}
func (o ProjectionsOption) applyToEnv(e *envOpts) {
	e.projections = append(e.projections, o.v...)
}

func newEnvOpts(opts ...EnvOption) envOpts {
	options := envOpts{
		log:     slog.Default(),
		metrics: NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToEnv(&options)
	}
	if options.store == nil {
		options.store = NewInMemoryStore()
	}
	if options.snapshotter == nil {
		options.snapshotter = NewInMemorySnapshotter()
	}
	if options.bus == nil {
		options.bus = NewInMemoryBus(options.log)
	}
	return options
}
