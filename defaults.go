package memocache

const (
	// DefaultThreshold is the number of requests a cold async key must see
	// before its background computation is launched.
	DefaultThreshold = 8

	// DefaultDestroyedThreshold is the destroyed-object count that wakes the
	// eviction scheduler.
	DefaultDestroyedThreshold = 100

	// DefaultWindow is the scheduler sweep window in clock ticks. With the
	// default WallClock one tick is a millisecond, so a full sweep of every
	// non-empty table takes about a minute.
	DefaultWindow int64 = 60_000
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
