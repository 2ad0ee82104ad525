package sf

import "golang.org/x/sync/singleflight"

// Group deduplicates concurrent calls with the same key. Only the first
// caller runs fn; the others wait for and share its result.
type Group[T any] struct {
	group singleflight.Group
}

func New[T any]() *Group[T] {
	return &Group[T]{}
}

// Do runs fn for key unless a call for key is already in flight, in which
// case it waits for that call. shared reports whether the result was handed
// to more than one caller.
func (g *Group[T]) Do(key string, fn func() (T, error)) (v T, err error, shared bool) {
	res, err, shared := g.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return v, err, shared
	}
	return res.(T), nil, shared
}

// Forget makes the next Do for key run fn again, even if a call is in flight.
func (g *Group[T]) Forget(key string) {
	g.group.Forget(key)
}
