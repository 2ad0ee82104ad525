// Package keylock serializes work per key while work for different keys
// runs concurrently.
//
// Typical use-case: aggregate streams and projection states, where updates
// for one id must not interleave but different ids are independent.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// Locker hands out one lock per key. Locks are created on demand and dropped
// once no caller holds or waits for them.
type Locker[K comparable] struct {
	mu   sync.Mutex
	keys map[K]*entry
}

func New[K comparable]() *Locker[K] {
	return &Locker[K]{keys: make(map[K]*entry)}
}

func (l *Locker[K]) acquire(key K) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	return e
}

func (l *Locker[K]) release(key K, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

// Do runs fn while holding the lock for key. Waiting for the lock respects
// ctx; once fn started it runs to completion.
func (l *Locker[K]) Do(ctx context.Context, key K, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := l.acquire(key)
	defer l.release(key, e)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	return fn()
}

// Len is the number of keys currently locked or waited for.
func (l *Locker[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
