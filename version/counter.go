// Package version provides ready-made dependencies for memocache
// version-based staleness: every type here exposes a Version that increases
// on each mutation, which a memocache.VersionStamp compares in O(1).
package version

import (
	"sync/atomic"

	"github.com/unkn0wn-root/memocache"
)

var _ memocache.Versioned = (*Counter)(nil)

// Counter is a bare mutation counter. Owners call Bump after every change to
// the data it guards. The zero value is ready to use.
type Counter struct {
	v atomic.Uint64
}

func (c *Counter) Version() uint64 { return c.v.Load() }

// Bump records a mutation and returns the new version.
func (c *Counter) Bump() uint64 { return c.v.Add(1) }
