package memocache

import (
	"sync"
	"sync/atomic"
)

// Shared is the central table of a cache type, guarded by exactly one mutex
// per cache type. It is safe for concurrent use; it seeds goroutine-owned
// tables (Local) and backs async population.
type Shared[K comparable, V any] struct {
	mu     sync.Mutex
	t      *Table[K, V]
	reg    *Registry
	opts   Options[K, V]
	locals atomic.Int32

	onClear func() // runs under mu after every Clear
}

// NewShared creates the central table of a cache type and registers it in reg.
func NewShared[K comparable, V any](reg *Registry, opts Options[K, V]) (*Shared[K, V], error) {
	if reg == nil {
		return nil, configErr("shared table", "registry is required")
	}
	s := &Shared[K, V]{reg: reg, opts: opts}
	s.t = newTable("shared", opts)
	if err := reg.register(s, s.t.name, s.t.kind); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Shared[K, V]) Name() string { return s.t.name }

// GetOrAdd returns the value for key, creating it under the lock on a miss,
// so concurrent callers never insert twice or run the initializer twice.
func (s *Shared[K, V]) GetOrAdd(key K) V {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.GetOrAdd(key)
}

func (s *Shared[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Get(key)
}

func (s *Shared[K, V]) Set(key K, v V) {
	s.mu.Lock()
	s.t.Set(key, v)
	s.mu.Unlock()
}

// GetFresh is Table.GetFresh under the lock; refresh runs with the lock held.
func (s *Shared[K, V]) GetFresh(key K, refresh func(key K, v *V)) V {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.GetFresh(key, refresh)
}

func (s *Shared[K, V]) Remove(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Remove(key)
}

func (s *Shared[K, V]) Clear() {
	s.mu.Lock()
	s.t.Clear()
	if s.onClear != nil {
		s.onClear()
	}
	s.mu.Unlock()
}

func (s *Shared[K, V]) Len() int { return s.t.Len() }

func (s *Shared[K, V]) Bytes() int64 { return s.t.Bytes() }

// Locked runs fn with the underlying table while holding the lock. Refs
// obtained inside fn must not escape it.
func (s *Shared[K, V]) Locked(fn func(t *Table[K, V])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.t)
}

// Local creates a goroutine-owned table for this cache type. It inherits the
// configuration (initializer, observers, sizer, logger) and none of the
// entries, and is registered so the scheduler can clear it. Create one per
// long-lived worker: registered tables are never released.
func (s *Shared[K, V]) Local() *Table[K, V] {
	opts := s.opts
	opts.Name = s.t.name + "#local"
	t := newTable("local", opts)
	// registering a Clearable cannot fail
	_ = s.reg.register(localHandle[K, V]{t}, t.name, t.kind)
	s.locals.Add(1)
	return t
}

// Locals returns the number of goroutine-owned tables created so far.
func (s *Shared[K, V]) Locals() int { return int(s.locals.Load()) }
