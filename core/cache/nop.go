package cache

// Nop caches nothing.
type Nop[V any] struct{}

func NewNop[V any]() *Nop[V] { return &Nop[V]{} }

func (n *Nop[V]) Get(string) (out V, ok bool)   { return }
func (n *Nop[V]) Put(string, V, ...PutOption) {}
func (n *Nop[V]) Delete(string)                 {}

var _ Cache[any] = (*Nop[any])(nil)
