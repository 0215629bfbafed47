package version

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/memocache"
)

type storeEntry struct {
	Version   uint64
	UpdatedAt time.Time
}

// Store keeps one version per key, for dependencies that are too fine
// grained to own a Counter each (rows, documents, map cells).
// Optional cleanup loop to prune long-inactive entries.
//
// Versions are drawn from one store-wide sequence. A key that was never
// bumped, or whose entry was pruned, reports the highest version pruned so
// far, so pruning can make a stamp dirty but never clean.
type Store[K comparable] struct {
	mu       sync.RWMutex
	versions map[K]storeEntry
	seq      uint64
	floor    uint64
	now      func() time.Time

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewStore[K comparable](cleanupInterval, retention time.Duration) *Store[K] {
	s := &Store[K]{
		versions: make(map[K]storeEntry),
		now:      time.Now,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

// Version returns the current version of k.
func (s *Store[K]) Version(k K) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.versions[k]; ok {
		return e.Version
	}
	return s.floor
}

// VersionMany acquires the read lock once and reads all requested keys.
func (s *Store[K]) VersionMany(ks []K) map[K]uint64 {
	out := make(map[K]uint64, len(ks))
	s.mu.RLock()
	for _, k := range ks {
		if e, ok := s.versions[k]; ok {
			out[k] = e.Version
		} else {
			out[k] = s.floor
		}
	}
	s.mu.RUnlock()
	return out
}

// Bump records a mutation of k and returns its new version.
func (s *Store[K]) Bump(k K) uint64 {
	now := s.now()
	s.mu.Lock()
	s.seq++
	s.versions[k] = storeEntry{Version: s.seq, UpdatedAt: now}
	v := s.seq
	s.mu.Unlock()
	return v
}

// Len returns the number of tracked keys.
func (s *Store[K]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.versions)
}

// Cleanup prunes keys not bumped within retention.
func (s *Store[K]) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.now().Add(-retention)

	s.mu.Lock()
	for k, e := range s.versions {
		if e.UpdatedAt.Before(cutoff) {
			s.floor = max(s.floor, e.Version)
			delete(s.versions, k)
		}
	}
	s.mu.Unlock()
}

// Close stops the cleanup loop, if any.
func (s *Store[K]) Close() {
	if s.stopCh != nil {
		close(s.stopCh)
		s.ticker.Stop()
		s.wg.Wait()
		s.stopCh = nil
	}
}

// Keyed exposes the version of one key of s as a memocache.Versioned.
func Keyed[K comparable](s *Store[K], k K) memocache.Versioned {
	return keyed[K]{s: s, k: k}
}

type keyed[K comparable] struct {
	s *Store[K]
	k K
}

func (v keyed[K]) Version() uint64 { return v.s.Version(v.k) }
