package memocache

import "context"

// Options configure one cache type. Nothing is required; the zero value
// yields a table of zero-valued entries named after its key and value types.
type Options[K comparable, V any] struct {
	Name string // shown in reports and logs; "" => "K->V"

	// Init is the ValueInitializer run on a miss. nil => zero V.
	// It is resolved once at construction, never per call.
	Init func(key K) V

	OnAdded   func(key K, v V) // optional change observers
	OnRemoved func(key K, v V) // also called for every entry dropped by Clear

	// Sizer estimates the retained bytes of an entry for reports (see the
	// sizer package). nil => fixed size derived from K and V.
	Sizer func(key K, v V) int64

	Capacity int    // initial capacity hint
	Logger   Logger // if nil, NopLogger is used
}

// AsyncOptions configure an async population cache. Compute is required.
type AsyncOptions[K comparable, R any] struct {
	Name string

	// Compute produces the result for key off the hot path.
	Compute func(ctx context.Context, key K) (R, error)

	// Threshold is the number of requests a cold key must receive before
	// Compute is launched. 0 => DefaultThreshold; 1 launches on first request.
	Threshold int

	// Deadline, when its Clock is set, makes completed results (and
	// failures) expire. Without it results stay until Invalidate.
	Deadline DeadlinePolicy

	// Depends, when set, makes completed results dirty as soon as its
	// version moves.
	Depends Versioned

	// Runner starts launches. nil => one goroutine per launch.
	Runner Runner

	Logger Logger
	Hooks  Hooks // if nil, NopHooks is used
}

// SchedulerOptions configure the eviction scheduler. Registry is required.
type SchedulerOptions struct {
	Registry *Registry
	Clock    Clock // nil => NewWallClock()

	// Threshold is the destroyed-object count that starts a cycle.
	// 0 => DefaultDestroyedThreshold.
	Threshold int64

	// MinInterval is the minimum number of ticks between two steps.
	MinInterval int64

	// Window is the number of ticks one full sweep of the non-empty tables
	// is spread over. 0 => DefaultWindow.
	Window int64

	Logger Logger
	Hooks  Hooks
}
