package es

import (
	"time"
)

// Well-known meta keys written by streams and aggregates.
const (
	MetaAggregateID   = "aggregateId"
	MetaAggregateType = "aggregateType"
	MetaCommand       = "command"
)

type (
	Payload map[string]any
	Meta    map[string]any
	State   map[string]any
)

// Message is what a Handler validates: commands and events both qualify.
type Message interface {
	MessageName() string
	MessageVersion() int
	MessagePayload() Payload
}

// Command is a request to change aggregate state. It is never stored.
type Command struct {
	Name           string  `json:"name"`
	CommandVersion int     `json:"commandVersion,omitempty"`
	Payload        Payload `json:"payload"`
	Meta           Meta    `json:"meta,omitempty"`
}

func (c Command) MessageName() string     { return c.Name }
func (c Command) MessageVersion() int     { return c.CommandVersion }
func (c Command) MessagePayload() Payload { return c.Payload }

// Event is an immutable fact. Version is assigned by the Stream; EventVersion
// is the version of the handler (and schema) the event was written for.
type Event struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	EventVersion int       `json:"eventVersion"`
	Payload      Payload   `json:"payload"`
	Meta         Meta      `json:"meta,omitempty"`
	Version      Version   `json:"version"`
	OccurredAt   time.Time `json:"occurredAt"`
}

func (e Event) MessageName() string     { return e.Name }
func (e Event) MessageVersion() int     { return e.EventVersion }
func (e Event) MessagePayload() Payload { return e.Payload }

// ExtendMeta returns a copy of e whose meta is overlaid with ext.
func (e Event) ExtendMeta(ext Meta) Event {
	m := make(Meta, len(e.Meta)+len(ext))
	for k, v := range e.Meta {
		m[k] = v
	}
	for k, v := range ext {
		m[k] = v
	}
	e.Meta = m
	return e
}

// Snapshot caches aggregate state at a known stream version.
type Snapshot struct {
	ID            string    `json:"id,omitempty"`
	AggregateType string    `json:"aggregateType,omitempty"`
	AggregateID   string    `json:"aggregateId,omitempty"`
	Version       Version   `json:"version"`
	State         State     `json:"state"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

func (s State) AggregateID() string {
	v, _ := s[MetaAggregateID].(string)
	return v
}

func (s State) AggregateType() string {
	v, _ := s[MetaAggregateType].(string)
	return v
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	return State(cloneMap(s))
}

func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return Payload(cloneMap(p))
}

func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	return Meta(cloneMap(m))
}

func cloneMap[M ~map[string]any](m M) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case State:
		return t.Clone()
	case Payload:
		return t.Clone()
	case Meta:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
