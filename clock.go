package memocache

import (
	"sync/atomic"
	"time"
)

// Clock supplies the tick counter that deadlines and the eviction scheduler
// are measured in. Hosts with their own simulation tick implement it directly.
type Clock interface {
	Now() int64
}

// ManualClock is a Clock advanced explicitly by its owner.
// The zero value starts at tick 0 and is ready to use.
type ManualClock struct {
	now atomic.Int64
}

func (c *ManualClock) Now() int64 { return c.now.Load() }

// Set moves the clock to tick.
func (c *ManualClock) Set(tick int64) { c.now.Store(tick) }

// Advance moves the clock forward by n ticks and returns the new tick.
func (c *ManualClock) Advance(n int64) int64 { return c.now.Add(n) }

// WallClock counts milliseconds since it was created.
type WallClock struct {
	start time.Time
}

func NewWallClock() *WallClock { return &WallClock{start: time.Now()} }

func (c *WallClock) Now() int64 { return time.Since(c.start).Milliseconds() }
