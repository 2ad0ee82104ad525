package es

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

// Aggregate is a named aggregate definition: a command registry plus a
// Projector. It owns no stream; streams are passed per call, so one
// definition serves every instance of its type.
type Aggregate struct {
	aggType   string
	identity  Identity
	commands  *Registry[CommandFunc]
	projector *Projector
	log       *slog.Logger
	metrics   ESMetrics
}

func NewAggregate(aggType string, opts ...AggregateOption) (*Aggregate, error) {
	if aggType == "" {
		return nil, configErrorf("aggregate type is required")
	}
	options := newAggregateOpts(opts...)

	identity := options.identity
	if identity == nil {
		identity = User{Name: "Aggregate " + aggType}
	}

	a := &Aggregate{
		aggType:   aggType,
		identity:  identity,
		commands:  NewRegistry[CommandFunc](CommandKind),
		projector: &Projector{events: NewRegistry[EventFunc](EventKind)},
		log:       options.log.With(slog.String("aggregate", aggType)),
		metrics:   options.metrics,
	}

	if err := a.RegisterCommands(options.commands...); err != nil {
		return nil, err
	}
	if err := a.RegisterEvents(options.events...); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Aggregate) AggregateType() string            { return a.aggType }
func (a *Aggregate) Identity() Identity               { return a.identity }
func (a *Aggregate) Projector() *Projector            { return a.projector }
func (a *Aggregate) Commands() *Registry[CommandFunc] { return a.commands }
func (a *Aggregate) Project(s *Stream) (State, error) { return a.projector.Project(s) }

func (a *Aggregate) RegisterCommands(cfgs ...HandlerConfig[CommandFunc]) error {
	return a.commands.Register(cfgs...)
}

func (a *Aggregate) RegisterEvents(cfgs ...HandlerConfig[EventFunc]) error {
	return a.projector.RegisterEvents(cfgs...)
}

// NewID returns a fresh random aggregate id.
func (a *Aggregate) NewID() string { return uuid.NewString() }

// NewStream returns an empty stream for a new instance of this aggregate.
func (a *Aggregate) NewStream(aggID string) (*Stream, error) {
	return NewStream(StreamOpts{AggregateID: aggID, AggregateType: a.aggType})
}

func (a *Aggregate) HasEventHandler(name string) bool { return a.projector.HasEventHandler(name) }

// CreateEvent builds an event for a registered event name. Without
// WithEventVersion the currently registered version is used.
func (a *Aggregate) CreateEvent(name string, payload Payload, opts ...EventOption) (Event, error) {
	options := eventOpts{}
	for _, opt := range opts {
		opt.applyToEvent(&options)
	}

	if !a.HasEventHandler(name) {
		return Event{}, NewValidationError(
			"error creating event",
			fmt.Sprintf("unknown event name '%s' for aggregate '%s'", name, a.aggType),
		)
	}

	version := options.version
	if version == 0 {
		version, _ = a.projector.EventVersion(name)
	}
	if payload == nil {
		payload = Payload{}
	}
	meta := options.meta
	if meta == nil {
		meta = Meta{}
	}

	return Event{
		ID:           gonanoid.Must(),
		Name:         name,
		EventVersion: version,
		Payload:      payload,
		Meta:         meta,
		OccurredAt:   time.Now(),
	}, nil
}

// Execute runs cmd against the current state of s and appends the resulting
// events as uncommitted. The stream is left untouched unless every step up to
// the append succeeded.
func (a *Aggregate) Execute(ctx context.Context, cmd Command, s *Stream) (_ *Stream, err error) {
	if s == nil {
		return nil, configErrorf("stream is required")
	}

	timer := a.metrics.CommandDuration(a.aggType, cmd.Name)
	defer func() {
		timer.ObserveDuration()
		a.metrics.CommandExecuted(a.aggType, cmd.Name, err == nil)
	}()

	log := a.log.With(
		slog.Group(
			"agg",
			slog.String("id", s.AggregateID()),
			s.LatestVersion().SlogAttr(),
		),
		slog.String("command", cmd.Name),
		slog.String("identity", a.identity.DisplayName()),
	)

	// project and resolve the handler; neither depends on the other
	var (
		state   State
		handler *Handler[CommandFunc]
	)
	var g errgroup.Group
	g.Go(func() (err error) {
		defer a.metrics.ProjectDuration(a.aggType).ObserveDuration()
		state, err = a.projector.Project(s)
		return
	})
	g.Go(func() error {
		h, ok := a.commands.Get(cmd.Name, cmd.CommandVersion)
		if !ok {
			return &LookupError{
				Kind:          CommandKind.Name,
				Name:          cmd.Name,
				Version:       cmd.CommandVersion,
				AggregateType: a.aggType,
			}
		}
		handler = h
		return nil
	})
	if err = g.Wait(); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	if state.AggregateType() != a.aggType {
		return nil, &TypeMismatchError{Expected: a.aggType, Got: state.AggregateType()}
	}

	if violations := handler.ValidateMessage(cmd); len(violations) > 0 {
		return nil, NewValidationError(fmt.Sprintf("invalid command %s", cmd.Name), violations...)
	}

	events, err := handler.Callback()(ctx, cmd, state, a)
	if err != nil {
		return nil, fmt.Errorf("command %s v%d: %w", cmd.Name, handler.Version(), err)
	}

	events, err = a.prepareEvents(cmd, events)
	if err != nil {
		return nil, err
	}

	if err = s.AddEvents(events...); err != nil {
		return nil, err
	}

	log.Debug("executed", slog.Int("num_events", len(events)), s.LatestVersion().SlogAttrWithKey("new_version"))
	return s, nil
}

// prepareEvents checks produced events against the event registry, pins
// their event version and tags them with the causing command.
func (a *Aggregate) prepareEvents(cmd Command, events []Event) ([]Event, error) {
	var (
		violations []string
		out        = make([]Event, 0, len(events))
		tags       = Meta{MetaAggregateType: a.aggType, MetaCommand: cmd.Meta.Clone()}
	)
	for i, evt := range events {
		h, err := a.projector.EventHandler(evt)
		if err != nil {
			violations = append(violations, fmt.Sprintf("event #%d: %s", i, err))
			continue
		}
		for _, v := range h.ValidateMessage(evt) {
			violations = append(violations, fmt.Sprintf("event #%d (%s): %s", i, evt.Name, v))
		}
		evt.EventVersion = h.Version()
		if evt.ID == "" {
			evt.ID = gonanoid.Must()
		}
		if evt.OccurredAt.IsZero() {
			evt.OccurredAt = time.Now()
		}
		out = append(out, evt.ExtendMeta(tags))
	}
	if len(violations) > 0 {
		return nil, NewValidationError(fmt.Sprintf("command %s produced invalid events", cmd.Name), violations...)
	}
	return out, nil
}

// IsValidAggregate reports whether a is a usable aggregate definition.
func IsValidAggregate(a *Aggregate) bool { return a != nil && a.aggType != "" }
