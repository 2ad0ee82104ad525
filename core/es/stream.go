package es

import (
	"cmp"
	"fmt"
	"slices"
)

// StreamOpts is the storage-provided input for NewStream.
type StreamOpts struct {
	AggregateID   string
	AggregateType string
	Meta          Meta
	Snapshot      *Snapshot
	Events        []Event
}

// Stream is the versioned event log of one aggregate instance. Committed
// events are known to be durable; uncommitted events were produced in memory
// and wait for the caller to persist and commit (or discard) them.
//
// A Stream is not safe for concurrent mutation.
type Stream struct {
	aggregateID   string
	aggregateType string
	meta          Meta
	snapshot      *Snapshot

	events      []Event
	uncommitted []Event
}

// NewStream rebuilds a stream from stored events and an optional snapshot.
// Events at or below the snapshot version are dropped, the rest are sorted by
// version, appended and committed.
func NewStream(opts StreamOpts) (*Stream, error) {
	if opts.AggregateID == "" {
		return nil, configErrorf("missing aggregateId from stream creation")
	}
	if opts.AggregateType == "" {
		return nil, configErrorf("missing aggregateType from stream creation")
	}

	s := &Stream{
		aggregateID:   opts.AggregateID,
		aggregateType: opts.AggregateType,
		meta:          opts.Meta.Clone(),
		snapshot:      opts.Snapshot,
	}

	events, err := sortEvents(trimEventsBeforeSnapshot(opts.Snapshot, opts.Events))
	if err != nil {
		return nil, err
	}
	if err := s.AddEvents(events...); err != nil {
		return nil, fmt.Errorf("rebuild stream %s/%s: %w", opts.AggregateType, opts.AggregateID, err)
	}
	s.CommitAll()
	return s, nil
}

func snapshotVersion(snap *Snapshot) Version {
	if snap == nil {
		return 0
	}
	return snap.Version
}

func trimEventsBeforeSnapshot(snap *Snapshot, events []Event) []Event {
	after := snapshotVersion(snap)
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Version == 0 || e.Version > after {
			out = append(out, e)
		}
	}
	return out
}

// sortEvents fails when an event carries no version: stored events must never
// be renumbered.
func sortEvents(events []Event) ([]Event, error) {
	var violations []string
	for i, e := range events {
		if e.Version == 0 {
			violations = append(violations, fmt.Sprintf("event #%d (%s) has no version number", i, e.Name))
		}
	}
	if len(violations) > 0 {
		return nil, NewValidationError("malformed event", violations...)
	}
	slices.SortStableFunc(events, func(a, b Event) int { return cmp.Compare(a.Version, b.Version) })
	return events, nil
}

func (s *Stream) AggregateID() string   { return s.aggregateID }
func (s *Stream) AggregateType() string { return s.aggregateType }
func (s *Stream) Meta() Meta            { return s.meta.Clone() }
func (s *Stream) Snapshot() *Snapshot   { return s.snapshot }

// AddEvent assigns or verifies the event version, merges stream metadata
// into the event and appends it to the uncommitted events.
func (s *Stream) AddEvent(evt Event) (Event, error) {
	next := s.ExpectedNextVersion()
	if evt.Version == 0 {
		evt.Version = next
	}
	if evt.Version != next {
		return evt, &SequencingError{Expected: next, Got: evt.Version}
	}

	evt.Payload = evt.Payload.Clone()
	meta := evt.Meta.Clone()
	if meta == nil {
		meta = Meta{}
	}
	for k, v := range s.meta {
		meta[k] = v
	}
	meta[MetaAggregateID] = s.aggregateID
	meta[MetaAggregateType] = s.aggregateType
	evt.Meta = meta

	s.uncommitted = append(s.uncommitted, evt)
	return evt, nil
}

// AddEvents adds events in order. The first failure stops the batch; events
// already added by this call stay in place, so callers must treat any error
// as a failed batch and discard the stream.
func (s *Stream) AddEvents(events ...Event) error {
	for _, evt := range events {
		if _, err := s.AddEvent(evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) ExpectedNextVersion() Version {
	switch {
	case len(s.uncommitted) > 0:
		return s.uncommitted[len(s.uncommitted)-1].Version + 1
	case len(s.events) > 0:
		return s.events[len(s.events)-1].Version + 1
	default:
		return snapshotVersion(s.snapshot) + 1
	}
}

// Events returns copies of the committed then uncommitted events with a
// version above after.
func (s *Stream) Events(after Version) []Event {
	out := make([]Event, 0, len(s.events)+len(s.uncommitted))
	for _, list := range [][]Event{s.events, s.uncommitted} {
		for _, e := range list {
			if e.Version > after {
				out = append(out, copyEvent(e))
			}
		}
	}
	return out
}

func (s *Stream) Uncommitted() []Event {
	out := make([]Event, len(s.uncommitted))
	for i, e := range s.uncommitted {
		out[i] = copyEvent(e)
	}
	return out
}

// all returns the committed then uncommitted events without copying their
// maps. Callers must not modify them.
func (s *Stream) all() []Event {
	return append(append(make([]Event, 0, len(s.events)+len(s.uncommitted)), s.events...), s.uncommitted...)
}

func copyEvent(e Event) Event {
	e.Payload = e.Payload.Clone()
	e.Meta = e.Meta.Clone()
	return e
}

func (s *Stream) HasUncommitted() bool { return len(s.uncommitted) > 0 }

// CommitAll marks all uncommitted events as durable.
func (s *Stream) CommitAll() {
	if len(s.uncommitted) == 0 {
		return
	}
	s.events = append(s.events, s.uncommitted...)
	s.uncommitted = nil
}

// DiscardUncommitted drops pending events, e.g. after a failed append.
func (s *Stream) DiscardUncommitted() {
	s.uncommitted = nil
}

// ExtendUncommitted overlays ext on the meta of every uncommitted event.
func (s *Stream) ExtendUncommitted(ext Meta) {
	for i, e := range s.uncommitted {
		s.uncommitted[i] = e.ExtendMeta(ext)
	}
}

// CommittedVersion is the version of the last committed event, falling back
// to the snapshot version. It is the expected version for the next append.
func (s *Stream) CommittedVersion() Version {
	if len(s.events) > 0 {
		return s.events[len(s.events)-1].Version
	}
	return snapshotVersion(s.snapshot)
}

// LatestVersion is the highest known version, uncommitted events included.
func (s *Stream) LatestVersion() Version { return s.ExpectedNextVersion() - 1 }

// CurrentState is the projection seed: identity fields overlaid with a deep
// copy of the snapshot state.
func (s *Stream) CurrentState() State {
	state := State{
		MetaAggregateID:   s.aggregateID,
		MetaAggregateType: s.aggregateType,
	}
	if s.snapshot != nil {
		for k, v := range s.snapshot.State.Clone() {
			state[k] = v
		}
	}
	return state
}
