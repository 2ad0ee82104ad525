package cache

import (
	"container/list"
	"sync"
	"time"
)

const defaultLRUSize = 128

type LRUOpts struct {
	Size int
	// TTL applies to entries put without WithTTL; zero keeps them.
	TTL time.Duration
}

type entry[V any] struct {
	key       string
	val       V
	expiresAt time.Time
}

// LRU is a size bounded cache evicting the least recently used entry.
// Expired entries are evicted on access.
type LRU[V any] struct {
	mu    sync.Mutex
	size  int
	ttl   time.Duration
	ll    *list.List
	items map[string]*list.Element
	now   func() time.Time
}

func NewLRU[V any](opts LRUOpts) *LRU[V] {
	if opts.Size <= 0 {
		opts.Size = defaultLRUSize
	}
	return &LRU[V]{
		size:  opts.Size,
		ttl:   opts.TTL,
		ll:    list.New(),
		items: make(map[string]*list.Element, opts.Size),
		now:   time.Now,
	}
}

func (l *LRU[V]) Get(key string) (out V, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ele, ok := l.items[key]
	if !ok {
		return out, false
	}
	e := ele.Value.(*entry[V])
	if !e.expiresAt.IsZero() && !l.now().Before(e.expiresAt) {
		l.remove(ele)
		return out, false
	}
	l.ll.MoveToFront(ele)
	return e.val, true
}

func (l *LRU[V]) Put(key string, val V, opts ...PutOption) {
	o := PutOptions{TTL: l.ttl}
	for _, opt := range opts {
		opt(&o)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var expiresAt time.Time
	if o.TTL > 0 {
		expiresAt = l.now().Add(o.TTL)
	}

	if ele, ok := l.items[key]; ok {
		e := ele.Value.(*entry[V])
		e.val = val
		e.expiresAt = expiresAt
		l.ll.MoveToFront(ele)
		return
	}

	l.items[key] = l.ll.PushFront(&entry[V]{key: key, val: val, expiresAt: expiresAt})
	if l.ll.Len() > l.size {
		l.remove(l.ll.Back())
	}
}

func (l *LRU[V]) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ele, ok := l.items[key]; ok {
		l.remove(ele)
	}
}

func (l *LRU[V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ll.Len()
}

func (l *LRU[V]) remove(ele *list.Element) {
	l.ll.Remove(ele)
	delete(l.items, ele.Value.(*entry[V]).key)
}

var _ Cache[any] = (*LRU[any])(nil)
