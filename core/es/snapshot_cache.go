package es

import (
	"context"
	"sync"
	"time"

	"github.com/codewandler/esgo/core/cache"
	"github.com/codewandler/esgo/core/sf"
)

type CachedSnapshotterOpts struct {
	Size int
	TTL  time.Duration
}

// CachedSnapshotter keeps recently used snapshots of a slower Snapshotter
// in an LRU cache. Concurrent misses for the same aggregate share one load.
// Missing snapshots are not cached.
type CachedSnapshotter struct {
	next  Snapshotter
	cache cache.Cache[*Snapshot]
	loads *sf.Group[*Snapshot]

	// mu orders cache writes of loads against saves
	mu sync.Mutex
}

func NewCachedSnapshotter(next Snapshotter, opts CachedSnapshotterOpts) *CachedSnapshotter {
	return &CachedSnapshotter{
		next:  next,
		cache: cache.NewLRU[*Snapshot](cache.LRUOpts{Size: opts.Size, TTL: opts.TTL}),
		loads: sf.New[*Snapshot](),
	}
}

func (c *CachedSnapshotter) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	key := snapshotKey(snapshot.AggregateType, snapshot.AggregateID)
	if err := c.next.SaveSnapshot(ctx, snapshot); err != nil {
		c.cache.Delete(key)
		return err
	}
	c.loads.Forget(key)
	c.mu.Lock()
	c.cache.Put(key, snapshot.clone())
	c.mu.Unlock()
	return nil
}

func (c *CachedSnapshotter) LoadSnapshot(ctx context.Context, aggType, aggID string) (*Snapshot, error) {
	key := snapshotKey(aggType, aggID)
	if s, ok := c.cache.Get(key); ok {
		return s.clone(), nil
	}

	s, err, _ := c.loads.Do(key, func() (*Snapshot, error) {
		s, err := c.next.LoadSnapshot(ctx, aggType, aggID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		// a save that finished while loading wins over the loaded copy
		if cached, ok := c.cache.Get(key); ok && cached.Version >= s.Version {
			return cached, nil
		}
		c.cache.Put(key, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return s.clone(), nil
}

var _ Snapshotter = (*CachedSnapshotter)(nil)
