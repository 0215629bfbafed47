package version

import (
	"slices"
	"sync"
)

// Slice is a slice that bumps its version on every mutation, for caches
// derived from a whole collection (counts, indexes, aggregates).
// It is safe for concurrent use. The zero value is ready to use.
type Slice[T any] struct {
	mu    sync.RWMutex
	items []T
	v     Counter
}

func (s *Slice[T]) Version() uint64 { return s.v.Version() }

func (s *Slice[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// At returns the i-th element. It panics if i is out of range.
func (s *Slice[T]) At(i int) T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[i]
}

func (s *Slice[T]) Append(v ...T) {
	s.mu.Lock()
	s.items = append(s.items, v...)
	s.v.Bump()
	s.mu.Unlock()
}

// Set replaces the i-th element. It panics if i is out of range.
func (s *Slice[T]) Set(i int, v T) {
	s.mu.Lock()
	s.items[i] = v
	s.v.Bump()
	s.mu.Unlock()
}

// Delete removes the i-th element, preserving order.
func (s *Slice[T]) Delete(i int) {
	s.mu.Lock()
	s.items = slices.Delete(s.items, i, i+1)
	s.v.Bump()
	s.mu.Unlock()
}

// Snapshot returns a copy of the elements and the version they belong to.
func (s *Slice[T]) Snapshot() ([]T, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out, s.v.Version()
}
