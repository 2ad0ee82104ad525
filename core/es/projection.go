package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/codewandler/esgo/core/ds"
	"github.com/codewandler/esgo/internal/keylock"
	"github.com/codewandler/esgo/ports/kv"
)

// ProjectionConfig describes a read model built from committed events.
type ProjectionConfig struct {
	Name string
	// Events must each define OnComplete.
	Events []HandlerConfig[EventFunc]
	// Key selects the state an event folds into. Defaults to the aggregate
	// id found in the event meta.
	Key func(Event) string
	// OnComplete runs after the handler's OnComplete for every event.
	OnComplete CompleteFunc
}

// Projection folds committed events into keyed states. Updates for one key
// are serialized; different keys are processed concurrently.
type Projection struct {
	name       string
	projector  *Projector
	keyOf      func(Event) string
	onComplete CompleteFunc
	eventNames []string

	states  kv.Store
	locks   *keylock.Locker[string]
	log     *slog.Logger
	metrics ESMetrics

	mu           sync.Mutex
	unsubscribes []func()
}

func NewProjection(cfg ProjectionConfig, opts ...ProjectionOption) (*Projection, error) {
	if cfg.Name == "" {
		return nil, configErrorf("projection name is required")
	}
	if len(cfg.Events) == 0 {
		return nil, configErrorf("missing 'events' property from projection %s", cfg.Name)
	}

	missing := ds.NewSet[string]()
	for _, e := range cfg.Events {
		if e.OnComplete == nil {
			missing.Add(e.Name)
		}
	}
	if missing.Len() > 0 {
		return nil, configErrorf("these event handlers are missing an onComplete method: [%s]", strings.Join(missing.Values(), ","))
	}

	projector, err := NewProjector(cfg.Events...)
	if err != nil {
		return nil, err
	}

	options := newProjectionOpts(opts...)
	keyOf := cfg.Key
	if keyOf == nil {
		keyOf = func(evt Event) string {
			id, _ := evt.Meta[MetaAggregateID].(string)
			return id
		}
	}

	return &Projection{
		name:       cfg.Name,
		projector:  projector,
		keyOf:      keyOf,
		onComplete: cfg.OnComplete,
		eventNames: projector.Events().Names(),
		states:     options.states,
		locks:      keylock.New[string](),
		log:        options.log.With(slog.String("projection", cfg.Name)),
		metrics:    options.metrics,
	}, nil
}

func (p *Projection) Name() string { return p.name }

// Events lists the event names this projection handles.
func (p *Projection) Events() []string { return append([]string(nil), p.eventNames...) }

func (p *Projection) stateKey(key string) string { return p.name + "." + key }

// State returns the current state for key, or ErrProjectionStateNotFound.
func (p *Projection) State(ctx context.Context, key string) (State, error) {
	st, err := kv.Get[State](ctx, p.states, p.stateKey(key))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrProjectionStateNotFound
		}
		return nil, err
	}
	return st, nil
}

// HandleEvent folds evt into its keyed state. Events without a handler are
// ignored and yield a nil state.
func (p *Projection) HandleEvent(ctx context.Context, evt Event) (state State, err error) {
	h, lookupErr := p.projector.EventHandler(evt)
	if lookupErr != nil {
		return nil, nil
	}

	key := p.keyOf(evt)
	if key == "" {
		return nil, configErrorf("projection %s: no state key for event %s", p.name, evt.Name)
	}

	defer func() { p.metrics.ProjectionEventProcessed(p.name, evt.Name, err == nil) }()

	err = p.locks.Do(ctx, key, func() error {
		current, err := p.State(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrProjectionStateNotFound) {
				return err
			}
			current = State{}
		}

		next, err := h.Callback()(evt.Payload, current)
		if err != nil {
			return fmt.Errorf("apply event %s v%d: %w", evt.Name, evt.EventVersion, err)
		}
		if next == nil {
			next = current
		}

		if err := h.Complete(ctx, next, evt); err != nil {
			return err
		}
		if p.onComplete != nil {
			if err := p.onComplete(ctx, next, evt); err != nil {
				return err
			}
		}

		if err := kv.Put(ctx, p.states, p.stateKey(key), next, kv.PutOptions{}); err != nil {
			return fmt.Errorf("failed to store projection state: %w", err)
		}
		state = next
		return nil
	})
	if err != nil {
		p.log.Warn("failed to handle event", slog.String("event", evt.Name), slog.String("key", key), slog.Any("error", err))
		return nil, err
	}

	p.log.Debug("handled", slog.String("event", evt.Name), slog.String("key", key), evt.Version.SlogAttr())
	return state, nil
}

// Subscribe registers the projection on bus for each of its event names.
func (p *Projection) Subscribe(bus MessageBus) error {
	listener := func(ctx context.Context, evt Event) error {
		_, err := p.HandleEvent(ctx, evt)
		return err
	}
	for _, name := range p.eventNames {
		unsub, err := bus.Subscribe(name, listener)
		if err != nil {
			p.Close()
			return fmt.Errorf("projection %s: subscribe %s: %w", p.name, name, err)
		}
		p.mu.Lock()
		p.unsubscribes = append(p.unsubscribes, unsub)
		p.mu.Unlock()
	}
	return nil
}

// Close removes all bus subscriptions.
func (p *Projection) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, unsub := range p.unsubscribes {
		unsub()
	}
	p.unsubscribes = nil
}
