package es

import (
	"fmt"
)

// Projector folds an ordered event sequence over an initial state using its
// own event handler registry. The fold is deterministic: handlers receive only
// the payload and the current state.
type Projector struct {
	events *Registry[EventFunc]
}

func NewProjector(cfgs ...HandlerConfig[EventFunc]) (*Projector, error) {
	p := &Projector{events: NewRegistry[EventFunc](EventKind)}
	if err := p.RegisterEvents(cfgs...); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Projector) RegisterEvents(cfgs ...HandlerConfig[EventFunc]) error {
	return p.events.Register(cfgs...)
}

func (p *Projector) Events() *Registry[EventFunc] { return p.events }

func (p *Projector) EventHandler(evt Event) (*Handler[EventFunc], error) {
	return p.events.Resolve(evt)
}

func (p *Projector) HasEventHandler(name string) bool { return p.events.Has(name) }

// EventVersion is the currently registered (highest) version for name.
func (p *Projector) EventVersion(name string) (int, bool) { return p.events.LatestVersion(name) }

// Project replays every event in s, committed and uncommitted, over
// s.CurrentState().
func (p *Projector) Project(s *Stream) (State, error) {
	return p.ProjectEvents(s.CurrentState(), s.all())
}

// ProjectEvents folds events over seed. An event without a matching handler
// aborts the fold: an unreplayable stream is never silently skipped.
// Callbacks receive a copy of each payload.
func (p *Projector) ProjectEvents(seed State, events []Event) (State, error) {
	state := seed
	if state == nil {
		state = State{}
	}
	for _, evt := range events {
		h, err := p.events.Resolve(evt)
		if err != nil {
			return nil, err
		}
		next, err := h.Callback()(evt.Payload.Clone(), state)
		if err != nil {
			return nil, fmt.Errorf("apply event %s v%d (version %d): %w", evt.Name, evt.EventVersion, evt.Version, err)
		}
		if next != nil {
			state = next
		}
	}
	return state, nil
}
