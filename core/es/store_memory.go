package es

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// InMemoryStore is a simple, correct (optimistic) store for tests/dev.
type InMemoryStore struct {
	mu      sync.Mutex
	log     *slog.Logger
	seq     atomic.Uint64
	streams map[string][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		log:     slog.Default().With(slog.String("store", "memory")),
		streams: map[string][]Event{},
	}
}

func (s *InMemoryStore) streamKey(aggType, aggID string) string {
	return fmt.Sprintf("%s-%s", aggType, aggID)
}

// Load returns copies of the stored events; an unknown stream is empty.
func (s *InMemoryStore) Load(
	_ context.Context,
	aggType,
	aggID string,
	opts ...StoreLoadOption,
) ([]Event, error) {
	startVersion := NewStoreLoadOptions(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.streams[s.streamKey(aggType, aggID)]
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Version < startVersion {
			continue
		}
		e.Payload = e.Payload.Clone()
		e.Meta = e.Meta.Clone()
		out = append(out, e)
	}
	return out, nil
}

func (s *InMemoryStore) Append(
	_ context.Context,
	aggType string,
	aggID string,
	expectVersion Version,
	events []Event,
) (*StoreAppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sk         = s.streamKey(aggType, aggID)
		curStream  = s.streams[sk]
		curVersion Version
	)
	if len(curStream) > 0 {
		curVersion = curStream[len(curStream)-1].Version
	}
	if curVersion != expectVersion {
		return nil, fmt.Errorf(
			"%w: expected version %d, got %d (agg_type=%s agg_id=%s)",
			ErrConcurrencyConflict, expectVersion, curVersion, aggType, aggID,
		)
	}
	if err := ValidateAppend(aggType, aggID, expectVersion, events); err != nil {
		return nil, err
	}

	var lastSeq uint64
	for _, e := range events {
		e.Payload = e.Payload.Clone()
		e.Meta = e.Meta.Clone()
		curStream = append(curStream, e)
		lastSeq = s.seq.Add(1)
	}
	s.streams[sk] = curStream

	s.log.Debug(
		"append",
		slog.Uint64("last_seq", lastSeq),
		slog.Int("num_events", len(events)),
	)

	return &StoreAppendResult{LastVersion: events[len(events)-1].Version, LastSeq: lastSeq}, nil
}

var _ EventStore = (*InMemoryStore)(nil)
