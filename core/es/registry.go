package es

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Registry holds the handlers of one message kind, keyed by name. Several
// versions of the same name may coexist.
type Registry[F any] struct {
	kind MessageKind

	mu       sync.RWMutex
	handlers map[string][]*Handler[F] // sorted ascending by version
}

func NewRegistry[F any](kind MessageKind) *Registry[F] {
	return &Registry[F]{kind: kind, handlers: map[string][]*Handler[F]{}}
}

func (r *Registry[F]) Kind() MessageKind { return r.kind }

// Register adds all cfgs or none of them. Invalid configs are reported together.
func (r *Registry[F]) Register(cfgs ...HandlerConfig[F]) error {
	var (
		violations []string
		built      = make([]*Handler[F], 0, len(cfgs))
	)
	for _, cfg := range cfgs {
		h := &Handler[F]{kind: r.kind, cfg: cfg}
		if v := h.ValidateConfig(); len(v) > 0 {
			for _, msg := range v {
				violations = append(violations, describe(cfg.Name, cfg.Version)+": "+msg)
			}
			continue
		}
		built = append(built, h)
	}
	if len(violations) > 0 {
		return NewValidationError("cannot register "+r.kind.Name+" handlers", violations...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := map[string]map[int]bool{}
	for _, h := range built {
		if _, dup := r.lookup(h.Name(), h.Version()); dup || seen[h.Name()][h.Version()] {
			return configErrorf("%s handler '%s' v%d is already registered", r.kind.Name, h.Name(), h.Version())
		}
		if seen[h.Name()] == nil {
			seen[h.Name()] = map[int]bool{}
		}
		seen[h.Name()][h.Version()] = true
	}

	for _, h := range built {
		list := append(r.handlers[h.Name()], h)
		slices.SortFunc(list, func(a, b *Handler[F]) int { return cmp.Compare(a.Version(), b.Version()) })
		r.handlers[h.Name()] = list
	}
	return nil
}

// Get returns the handler for name at version. A version of 0 resolves to
// the highest registered version.
func (r *Registry[F]) Get(name string, version int) (*Handler[F], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(name, version)
}

func (r *Registry[F]) lookup(name string, version int) (*Handler[F], bool) {
	list := r.handlers[name]
	if len(list) == 0 {
		return nil, false
	}
	if version <= 0 {
		return list[len(list)-1], true
	}
	for _, h := range list {
		if h.Version() == version {
			return h, true
		}
	}
	return nil, false
}

// Resolve finds the handler for msg by its declared version, or the latest.
func (r *Registry[F]) Resolve(msg Message) (*Handler[F], error) {
	h, ok := r.Get(msg.MessageName(), msg.MessageVersion())
	if !ok {
		return nil, &LookupError{Kind: r.kind.Name, Name: msg.MessageName(), Version: msg.MessageVersion()}
	}
	return h, nil
}

func (r *Registry[F]) Has(name string) bool {
	_, ok := r.Get(name, 0)
	return ok
}

// LatestVersion is the highest version registered for name.
func (r *Registry[F]) LatestVersion(name string) (int, bool) {
	h, ok := r.Get(name, 0)
	if !ok {
		return 0, false
	}
	return h.Version(), true
}

// Names returns the registered handler names in sorted order.
func (r *Registry[F]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Handlers returns all handlers sorted by name, then version.
func (r *Registry[F]) Handlers() []*Handler[F] {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handler[F], 0, len(names))
	for _, n := range names {
		out = append(out, r.handlers[n]...)
	}
	return out
}

func describe(name string, version int) string {
	if name == "" {
		name = "<unnamed>"
	}
	if version > 0 {
		return fmt.Sprintf("%s v%d", name, version)
	}
	return name
}
