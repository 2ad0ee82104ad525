package es

import (
	"context"
)

type (
	eventStoreLoadOptions struct {
		startVersion Version
	}

	storeLoadOptionsReceiver interface {
		SetStartVersion(Version)
	}

	StoreLoadOption interface {
		ApplyToStoreLoadOptions(storeLoadOptionsReceiver)
	}

	startVersionOption valueOption[Version]
)

func (e *eventStoreLoadOptions) SetStartVersion(v Version) { e.startVersion = v }

// WithStartAtVersion limits a load to events with version >= v.
func WithStartAtVersion(v Version) StoreLoadOption { return startVersionOption{v: v} }

func (o startVersionOption) ApplyToStoreLoadOptions(receiver storeLoadOptionsReceiver) {
	receiver.SetStartVersion(o.v)
}

// NewStoreLoadOptions resolves opts; store implementations outside this
// package use it to read the requested start version.
func NewStoreLoadOptions(opts ...StoreLoadOption) (startVersion Version) {
	o := &eventStoreLoadOptions{}
	for _, opt := range opts {
		opt.ApplyToStoreLoadOptions(o)
	}
	return o.startVersion
}

type (
	StoreAppendResult struct {
		LastVersion Version
		// LastSeq is the store-global position of the last appended event,
		// 0 for stores without a global order.
		LastSeq uint64
	}

	// EventStore persists committed events per aggregate stream. Append must
	// fail with ErrConcurrencyConflict when expectedVersion is not the
	// stream's latest stored version.
	EventStore interface {
		Load(ctx context.Context, aggType string, aggID string, opts ...StoreLoadOption) ([]Event, error)
		Append(ctx context.Context, aggType string, aggID string, expectedVersion Version, events []Event) (*StoreAppendResult, error)
	}
)

// ValidateAppend performs the checks every store runs before appending:
// at least one event, contiguous versions starting after expectedVersion.
func ValidateAppend(aggType, aggID string, expectedVersion Version, events []Event) error {
	if aggType == "" {
		return configErrorf("aggregate type is empty")
	}
	if aggID == "" {
		return configErrorf("aggregate id is empty")
	}
	if len(events) == 0 {
		return ErrStoreNoEvents
	}
	next := expectedVersion + 1
	for _, e := range events {
		if e.Version != next {
			return &SequencingError{Expected: next, Got: e.Version}
		}
		next++
	}
	return nil
}
