package es

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/esgo/core/schema"
)

var (
	openedSchema = schema.MustCompile("test.opened", `{
		"type": "object",
		"required": ["owner"],
		"properties": {"owner": {"type": "string", "minLength": 1}}
	}`)

	depositSchema = schema.MustCompile("test.deposit", `{
		"type": "object",
		"required": ["amount"],
		"properties": {"amount": {"type": "integer", "minimum": 1}}
	}`)
)

func amountOf(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func testAccountCommands() []HandlerConfig[CommandFunc] {
	return []HandlerConfig[CommandFunc]{
		{
			Name:    "Open",
			Version: 1,
			Schema:  openedSchema,
			Callback: func(_ context.Context, cmd Command, st State, agg *Aggregate) ([]Event, error) {
				if st["owner"] != nil {
					return nil, errors.New("already open")
				}
				evt, err := agg.CreateEvent("Opened", Payload{"owner": cmd.Payload["owner"]})
				return []Event{evt}, err
			},
		},
		{
			Name:    "Deposit",
			Version: 1,
			Schema:  depositSchema,
			Callback: func(_ context.Context, cmd Command, _ State, agg *Aggregate) ([]Event, error) {
				evt, err := agg.CreateEvent("Deposited", Payload{"amount": cmd.Payload["amount"]})
				return []Event{evt}, err
			},
		},
		{
			Name:    "Deposit",
			Version: 2,
			Schema:  depositSchema,
			Callback: func(_ context.Context, cmd Command, _ State, agg *Aggregate) ([]Event, error) {
				// v2 splits a deposit into a fee and the remainder
				amount := amountOf(cmd.Payload["amount"])
				fee, err := agg.CreateEvent("Deposited", Payload{"amount": int64(1), "fee": true})
				if err != nil {
					return nil, err
				}
				rest, err := agg.CreateEvent("Deposited", Payload{"amount": amount - 1})
				return []Event{fee, rest}, err
			},
		},
	}
}

func testAccountEvents() []HandlerConfig[EventFunc] {
	return []HandlerConfig[EventFunc]{
		{
			Name:    "Opened",
			Version: 1,
			Schema:  openedSchema,
			Callback: func(p Payload, st State) (State, error) {
				next := st.Clone()
				next["owner"] = p["owner"]
				next["balance"] = int64(0)
				return next, nil
			},
		},
		{
			Name:    "Deposited",
			Version: 1,
			Schema:  depositSchema,
			Callback: func(p Payload, st State) (State, error) {
				next := st.Clone()
				next["balance"] = amountOf(st["balance"]) + amountOf(p["amount"])
				return next, nil
			},
		},
	}
}

func newTestAccount(t *testing.T, opts ...AggregateOption) *Aggregate {
	t.Helper()
	agg, err := NewAggregate(
		"Account",
		append([]AggregateOption{
			WithCommands(testAccountCommands()...),
			WithEvents(testAccountEvents()...),
		}, opts...)...,
	)
	require.NoError(t, err)
	return agg
}

func newTestStream(t *testing.T, id string, events ...Event) *Stream {
	t.Helper()
	s, err := NewStream(StreamOpts{AggregateID: id, AggregateType: "Account", Events: events})
	require.NoError(t, err)
	return s
}

func versionedEvent(name string, v Version, payload Payload) Event {
	return Event{
		ID:           fmt.Sprintf("evt-%d", v),
		Name:         name,
		EventVersion: 1,
		Version:      v,
		Payload:      payload,
	}
}
