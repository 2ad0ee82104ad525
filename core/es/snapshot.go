package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codewandler/esgo/ports/kv"
)

// Snapshotter persists the latest snapshot per aggregate instance.
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
	LoadSnapshot(ctx context.Context, aggType, aggID string) (*Snapshot, error)
}

func snapshotKey(aggType, aggID string) string { return fmt.Sprintf("%s-%s", aggType, aggID) }

func (s *Snapshot) logAttrs() slog.Attr {
	return slog.Group(
		"snapshot",
		slog.String("id", s.ID),
		slog.String("agg_type", s.AggregateType),
		slog.String("agg_id", s.AggregateID),
		s.Version.SlogAttr(),
		slog.Time("created_at", s.CreatedAt),
	)
}

func (s *Snapshot) clone() *Snapshot {
	cp := *s
	cp.State = s.State.Clone()
	return &cp
}

// === In-Memory Snapshotter ===

type InMemorySnapshotter struct {
	mu        sync.Mutex
	snapshots map[string]*Snapshot
}

func NewInMemorySnapshotter() *InMemorySnapshotter {
	return &InMemorySnapshotter{snapshots: map[string]*Snapshot{}}
}

func (i *InMemorySnapshotter) SaveSnapshot(_ context.Context, snapshot *Snapshot) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.snapshots[snapshotKey(snapshot.AggregateType, snapshot.AggregateID)] = snapshot.clone()
	return nil
}

func (i *InMemorySnapshotter) LoadSnapshot(_ context.Context, aggType, aggID string) (*Snapshot, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.snapshots[snapshotKey(aggType, aggID)]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return s.clone(), nil
}

var _ Snapshotter = (*InMemorySnapshotter)(nil)

// === Key-Value Snapshotter ===

// KeyValueSnapshotter stores JSON encoded snapshots in any kv.Store.
type KeyValueSnapshotter struct {
	kv kv.Store
}

func NewKeyValueSnapshotter(store kv.Store) *KeyValueSnapshotter {
	return &KeyValueSnapshotter{kv: store}
}

func (k *KeyValueSnapshotter) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	return kv.Put(ctx, k.kv, snapshotKey(snapshot.AggregateType, snapshot.AggregateID), snapshot, kv.PutOptions{})
}

func (k *KeyValueSnapshotter) LoadSnapshot(ctx context.Context, aggType, aggID string) (*Snapshot, error) {
	s, err := kv.Get[*Snapshot](ctx, k.kv, snapshotKey(aggType, aggID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return s, nil
}

var _ Snapshotter = (*KeyValueSnapshotter)(nil)
