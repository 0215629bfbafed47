// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/memocache"
//	"github.com/unkn0wn-root/memocache/hooks/async"
//	"github.com/unkn0wn-root/memocache/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    TableClearedEvery: 10, // sample logs: ~every 10th scheduled clear
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	reg := memocache.NewRegistry(memocache.RegistryOptions{
//	    Hooks: hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"github.com/unkn0wn-root/memocache"
	"github.com/unkn0wn-root/memocache/internal/workpool"
)

// Hooks forwards events to inner on background workers. Events that do not
// fit in the queue are dropped, so callers holding a table lock never block.
type Hooks struct {
	inner memocache.Hooks
	pool  *workpool.Pool
}

var _ memocache.Hooks = (*Hooks)(nil)

func New(inner memocache.Hooks, workers, qlen int) *Hooks {
	return &Hooks{inner: inner, pool: workpool.New(workers, qlen)}
}

// Close delivers queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() { h.pool.Close() }

func (h *Hooks) try(f func()) { _ = h.pool.TryGo(f) }

func (h *Hooks) ComputeFailed(t string, k any, err error) {
	h.try(func() { h.inner.ComputeFailed(t, k, err) })
}
func (h *Hooks) LaunchRejected(t string, k any) { h.try(func() { h.inner.LaunchRejected(t, k) }) }
func (h *Hooks) TableCleared(t string, n int, r memocache.ClearReason) {
	h.try(func() { h.inner.TableCleared(t, n, r) })
}
func (h *Hooks) CycleStarted(tables, nonEmpty int, step int64) {
	h.try(func() { h.inner.CycleStarted(tables, nonEmpty, step) })
}
func (h *Hooks) ClearPanicked(t string, rec any) { h.try(func() { h.inner.ClearPanicked(t, rec) }) }
