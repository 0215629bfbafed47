package memocache

// ClearReason tells TableCleared observers who asked for the clear.
type ClearReason string

const (
	ClearScheduled ClearReason = "scheduled" // eviction scheduler step
	ClearAll       ClearReason = "all"       // Registry.ClearAll
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// Some are called with a cache type lock or the scheduler lock held.
type Hooks interface {
	// A background computation returned an error or panicked.
	ComputeFailed(table string, key any, err error)

	// The Runner refused a launch; the slot went back to empty.
	LaunchRejected(table string, key any)

	// A registered table was cleared wholesale.
	TableCleared(table string, entries int, reason ClearReason)

	// The scheduler took a new registry snapshot.
	// nonEmpty of tables tables hold entries; each step waits stepInterval ticks.
	CycleStarted(tables, nonEmpty int, stepInterval int64)

	// A registered collection panicked while being cleared.
	ClearPanicked(table string, recovered any)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ComputeFailed(string, any, error)      {}
func (NopHooks) LaunchRejected(string, any)            {}
func (NopHooks) TableCleared(string, int, ClearReason) {}
func (NopHooks) CycleStarted(int, int, int64)          {}
func (NopHooks) ClearPanicked(string, any)             {}
