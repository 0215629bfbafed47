// Package memocache is an in-process memoization framework for expensive,
// pure-ish computations keyed by domain entities. It never touches the
// network or disk; memory is bounded by clearing whole tables on a schedule
// instead of tracking per-entry recency.
//
// Components:
//   - Keys: IDKey1..4 (dense int32 identities from registered IndexGetters)
//     and Key1..4 (composite value keys). Both are plain comparable structs.
//   - Table[K,V]: goroutine-owned, unsynchronized table with Refs
//     (index + epoch handles) for in-place mutation.
//   - Shared[K,V]: the mutex-guarded table of a cache type. Local() hands out
//     Tables that inherit its configuration but none of its entries.
//   - Staleness: values opt in by embedding Deadline, VersionStamp or
//     Combined, and GetFresh recomputes them when Dirty.
//   - Async[K,R]: debounced, deduplicated background population. A cold key
//     must be requested Threshold times; then one computation runs and every
//     requester shares its Task.
//   - Registry: append-only list of every table, plus foreign collections
//     (sync.Map, Go maps, Clearables). Report() summarizes utilization.
//   - Scheduler: clears one non-empty table per step in round-robin order,
//     paced by NotifyDestroyed and spread over a window of clock ticks.
//
// Typical setup:
//
//	reg := memocache.NewRegistry(memocache.RegistryOptions{Logger: log})
//	prices, _ := memocache.NewShared(reg, memocache.Options[memocache.IDKey1, float64]{
//	    Name: "price",
//	    Init: func(k memocache.IDKey1) float64 { return lookupPrice(k.A) },
//	})
//	sched, _ := memocache.NewScheduler(memocache.SchedulerOptions{Registry: reg})
//
//	// per worker goroutine
//	local := prices.Local()
//	p := local.GetOrAdd(memocache.ID1(item))
//
//	// host hook
//	func onEntityDestroyed() { sched.NotifyDestroyed() }
package memocache
