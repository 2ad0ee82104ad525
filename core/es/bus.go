package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// AllEvents subscribes a listener to every event name.
const AllEvents = "*"

type (
	// EventListener receives committed events.
	EventListener func(ctx context.Context, evt Event) error

	// MessageBus fans committed events out to listeners by event name.
	MessageBus interface {
		Publish(ctx context.Context, events ...Event) error
		Subscribe(eventName string, listener EventListener) (unsubscribe func(), err error)
	}
)

type subscription struct {
	id       string
	listener EventListener
}

// InMemoryBus delivers events synchronously in publish order. Listener errors
// do not stop delivery; they are joined and returned from Publish.
type InMemoryBus struct {
	mu   sync.RWMutex
	log  *slog.Logger
	subs map[string][]subscription
}

func NewInMemoryBus(log *slog.Logger) *InMemoryBus {
	if log == nil {
		log = slog.Default()
	}
	return &InMemoryBus{
		log:  log.With(slog.String("bus", "memory")),
		subs: map[string][]subscription{},
	}
}

func (b *InMemoryBus) Subscribe(eventName string, listener EventListener) (func(), error) {
	if eventName == "" {
		return nil, configErrorf("event name is required")
	}
	if listener == nil {
		return nil, configErrorf("listener is required")
	}

	sub := subscription{id: gonanoid.Must(), listener: listener}

	b.mu.Lock()
	b.subs[eventName] = append(b.subs[eventName], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[eventName]
			for i, s := range list {
				if s.id == sub.id {
					b.subs[eventName] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}, nil
}

func (b *InMemoryBus) listeners(eventName string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]subscription, 0, len(b.subs[eventName])+len(b.subs[AllEvents]))
	out = append(out, b.subs[eventName]...)
	return append(out, b.subs[AllEvents]...)
}

func (b *InMemoryBus) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, evt := range events {
		for _, sub := range b.listeners(evt.Name) {
			if err := sub.listener(ctx, evt); err != nil {
				b.log.Warn(
					"listener failed",
					slog.String("event", evt.Name),
					evt.Version.SlogAttr(),
					slog.Any("error", err),
				)
				errs = append(errs, fmt.Errorf("event %s v%d: %w", evt.Name, evt.Version, err))
			}
		}
	}
	return errors.Join(errs...)
}

var _ MessageBus = (*InMemoryBus)(nil)
