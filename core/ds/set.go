// Package ds provides small generic data structures.
package ds

import "fmt"

// Set is an ordered set: membership is O(1) and iteration follows
// insertion order.
type Set[T comparable] struct {
	items map[T]struct{}
	order []T
}

func NewSet[T comparable](values ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]struct{}, len(values))}
	s.Add(values...)
	return s
}

func (s *Set[T]) String() string { return fmt.Sprintf("%v", s.order) }

// Add appends values not yet present.
func (s *Set[T]) Add(values ...T) {
	for _, v := range values {
		if _, ok := s.items[v]; ok {
			continue
		}
		s.items[v] = struct{}{}
		s.order = append(s.order, v)
	}
}

func (s *Set[T]) Has(v T) bool {
	_, ok := s.items[v]
	return ok
}

func (s *Set[T]) Len() int { return len(s.order) }

// Values returns a copy of the elements in insertion order.
func (s *Set[T]) Values() []T { return append([]T(nil), s.order...) }
