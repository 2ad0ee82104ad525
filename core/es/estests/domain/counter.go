// Package domain holds a small counter aggregate used by the es tests.
package domain

import (
	"context"

	"github.com/codewandler/esgo/core/es"
	"github.com/codewandler/esgo/core/es/assert"
	"github.com/codewandler/esgo/core/schema"
)

const (
	CounterType = "Counter"
	MaxCount    = 24
)

var incSchema = schema.MustCompile("counter.inc", `{
	"type": "object",
	"required": ["by"],
	"properties": {"by": {"type": "integer", "minimum": 1}}
}`)

func count(st es.State) int {
	switch n := st["count"].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func by(p es.Payload) int {
	switch n := p["by"].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func Count(st es.State) int { return count(st) }

func IncCommand(n int) es.Command {
	return es.Command{Name: "Inc", Payload: es.Payload{"by": n}}
}

func ResetCommand() es.Command { return es.Command{Name: "Reset", Payload: es.Payload{}} }

// NewCounter returns a counter that refuses to go above MaxCount.
func NewCounter(opts ...es.AggregateOption) (*es.Aggregate, error) {
	return es.NewAggregate(
		CounterType,
		append([]es.AggregateOption{
			es.WithCommands(
				es.HandlerConfig[es.CommandFunc]{
					Name:    "Inc",
					Version: 1,
					Schema:  incSchema,
					Callback: func(_ context.Context, cmd es.Command, st es.State, agg *es.Aggregate) ([]es.Event, error) {
						n := by(cmd.Payload)
						if err := assert.Check(
							"cannot increment",
							assert.GreaterOrEqual(MaxCount, count(st)+n, "counter cannot exceed 24"),
						); err != nil {
							return nil, err
						}
						evt, err := agg.CreateEvent("Incremented", es.Payload{"by": n})
						return []es.Event{evt}, err
					},
				},
				es.HandlerConfig[es.CommandFunc]{
					Name:    "Reset",
					Version: 1,
					Callback: func(_ context.Context, _ es.Command, _ es.State, agg *es.Aggregate) ([]es.Event, error) {
						evt, err := agg.CreateEvent("Reset", nil)
						return []es.Event{evt}, err
					},
				},
			),
			es.WithEvents(
				es.HandlerConfig[es.EventFunc]{
					Name:    "Incremented",
					Version: 1,
					Schema:  incSchema,
					Callback: func(p es.Payload, st es.State) (es.State, error) {
						next := st.Clone()
						next["count"] = count(st) + by(p)
						return next, nil
					},
				},
				es.HandlerConfig[es.EventFunc]{
					Name:    "Reset",
					Version: 1,
					Callback: func(_ es.Payload, st es.State) (es.State, error) {
						next := st.Clone()
						next["count"] = 0
						return next, nil
					},
				},
			),
		}, opts...)...,
	)
}
