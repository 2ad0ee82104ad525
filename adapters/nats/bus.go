package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/esgo/core/es"
)

const defaultBusPrefix = "esgo.bus"

type BusConfig struct {
	Connect Connector
	Log     *slog.Logger
	// SubjectPrefix of the event subjects, events go to <prefix>.<event name>
	SubjectPrefix string
}

// Bus is an es.MessageBus over core NATS. Delivery is at most once and
// asynchronous: listener errors are logged, not returned from Publish.
type Bus struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	prefix  string

	mu   sync.Mutex
	subs map[*natsgo.Subscription]struct{}
}

func NewBus(cfg BusConfig) (*Bus, error) {
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}
	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = defaultBusPrefix
	}

	return &Bus{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("bus", "nats"), slog.String("subject_prefix", prefix)),
		prefix:  prefix,
		subs:    map[*natsgo.Subscription]struct{}{},
	}, nil
}

func (b *Bus) subject(eventName string) string {
	if eventName == es.AllEvents {
		return b.prefix + ".>"
	}
	return b.prefix + "." + eventName
}

func (b *Bus) Publish(_ context.Context, events ...es.Event) error {
	var errs []error
	for _, evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msg := natsgo.NewMsg(b.subject(evt.Name))
		msg.Header.Set(headerEventName, evt.Name)
		msg.Data = data
		if err := b.nc.PublishMsg(msg); err != nil {
			errs = append(errs, fmt.Errorf("failed to publish %s: %w", evt.Name, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return b.nc.Flush()
}

func (b *Bus) Subscribe(eventName string, listener es.EventListener) (func(), error) {
	if eventName == "" || listener == nil {
		return nil, &es.ConfigurationError{Msg: "subscription requires an event name and a listener"}
	}

	sub, err := b.nc.Subscribe(b.subject(eventName), func(msg *natsgo.Msg) {
		var evt es.Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			b.log.Error("failed to decode event", slog.String("subject", msg.Subject), slog.Any("err", err))
			return
		}
		if err := listener(context.Background(), evt); err != nil {
			b.log.Error(
				"listener failed",
				slog.String("event", evt.Name),
				slog.String("event_id", evt.ID),
				slog.Any("err", err),
			)
		}
	})
	if err != nil {
		return nil, err
	}
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			_ = sub.Unsubscribe()
		})
	}, nil
}

func (b *Bus) Close() {
	b.mu.Lock()
	for sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	clear(b.subs)
	b.mu.Unlock()
	b.closeNc()
}

var _ es.MessageBus = (*Bus)(nil)
