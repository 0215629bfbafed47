package memocache

// Staleness is advisory: tables never evaluate it. A cached value opts in by
// implementing Dirtier (and usually Updater), most often by embedding a
// Deadline, a VersionStamp or a Combined. Values implementing neither are
// cached for the life of their table.

// Dirtier reports whether a cached value must be recomputed before use.
type Dirtier interface {
	Dirty() bool
}

// Updater restamps a value after it has been recomputed for key.
type Updater[K any] interface {
	Update(key K)
}

// Versioned is a dependency exposing a monotonically increasing mutation
// counter. See the version package for ready-made implementations.
type Versioned interface {
	Version() uint64
}

// DeadlinePolicy describes how far ahead a Deadline is pushed on Update.
//
// The jitter term spreads keys created in the same tick over
// [Interval, Interval+Jitter) so they do not all expire together.
// Jitter <= 0 disables it.
type DeadlinePolicy struct {
	Clock    Clock
	Interval int64
	Jitter   int64
}

// Next returns the deadline for a key with the given stable hash.
func (p DeadlinePolicy) Next(hash uint64) int64 {
	at := p.Clock.Now() + p.Interval
	if p.Jitter > 0 {
		at += int64(hash % uint64(p.Jitter))
	}
	return at
}

// Deadline is tick-based staleness. The zero value is dirty.
type Deadline struct {
	clock Clock
	at    int64
}

// Dirty reports now >= deadline.
func (d Deadline) Dirty() bool {
	return d.clock == nil || d.clock.Now() >= d.at
}

// Update pushes the deadline to p.Next(hash).
func (d *Deadline) Update(p DeadlinePolicy, hash uint64) {
	d.clock = p.Clock
	d.at = p.Next(hash)
}

// Set pins the deadline to an explicit tick.
func (d *Deadline) Set(clock Clock, at int64) {
	d.clock = clock
	d.at = at
}

// At returns the deadline tick.
func (d Deadline) At() int64 { return d.at }

// VersionStamp is version-based staleness: it is dirty as soon as the
// dependency's version moves past the captured one. The zero value is dirty.
type VersionStamp struct {
	src  Versioned
	seen uint64
}

func (v VersionStamp) Dirty() bool {
	return v.src == nil || v.src.Version() != v.seen
}

// Update captures the current version of src.
func (v *VersionStamp) Update(src Versioned) {
	v.src = src
	v.seen = src.Version()
}

// Seen returns the captured version.
func (v VersionStamp) Seen() uint64 { return v.seen }

// Combined is dirty when either its deadline passed or its dependency moved.
// Both parts must be updated.
type Combined struct {
	Deadline Deadline
	Version  VersionStamp
}

func (c Combined) Dirty() bool {
	return c.Deadline.Dirty() || c.Version.Dirty()
}

// Update restamps both parts.
func (c *Combined) Update(p DeadlinePolicy, hash uint64, src Versioned) {
	c.Deadline.Update(p, hash)
	c.Version.Update(src)
}
