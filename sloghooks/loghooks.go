package sloghooks

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/memocache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ComputeFailedEvery uint64
	TableClearedEvery  uint64
	// Optional key formatter. Defaults to fmt %v.
	Redact func(any) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	computeFailedCtr atomic.Uint64
	tableClearedCtr  atomic.Uint64
}

var _ memocache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k any) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return fmt.Sprint(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ComputeFailed(table string, key any, err error) {
	if h.l == nil || !sample(h.opts.ComputeFailedEvery, &h.computeFailedCtr) {
		return
	}
	h.l.Warn("memocache.compute_failed",
		"table", table,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) LaunchRejected(table string, key any) {
	if h.l == nil {
		return
	}
	h.l.Warn("memocache.launch_rejected",
		"table", table,
		"key", h.redact(key))
}

func (h *Hooks) TableCleared(table string, entries int, reason memocache.ClearReason) {
	if h.l == nil || !sample(h.opts.TableClearedEvery, &h.tableClearedCtr) {
		return
	}
	h.l.Debug("memocache.table_cleared",
		"table", table,
		"entries", entries,
		"reason", string(reason))
}

func (h *Hooks) CycleStarted(tables, nonEmpty int, stepInterval int64) {
	if h.l == nil {
		return
	}
	h.l.Info("memocache.cycle_started",
		"tables", tables,
		"non_empty", nonEmpty,
		"step_interval", stepInterval)
}

func (h *Hooks) ClearPanicked(table string, recovered any) {
	if h.l == nil {
		return
	}
	h.l.Error("memocache.clear_panicked",
		"table", table,
		"panic", recovered)
}
