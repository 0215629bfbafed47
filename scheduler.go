package memocache

import (
	"sync"
	"sync/atomic"
)

// Scheduler bounds the memory held by every registered table by clearing
// whole tables, one per step, in round-robin order. It never scans entries,
// so no step costs more than one Clear plus skipping empty tables.
//
// Pacing: the host calls NotifyDestroyed whenever a tracked entity is
// destroyed. Once Threshold destructions have accumulated, and the step
// interval has elapsed on the Clock, one step runs. The first step of a cycle
// snapshots the registry and sets the interval to Window / (non-empty tables)
// so that one sweep completes within one Window. Reaching the end of the
// snapshot ends the cycle; the next activation takes a fresh snapshot (picking
// up tables created meanwhile) and resets the destroyed counter.
type Scheduler struct {
	reg         *Registry
	clock       Clock
	threshold   int64
	minInterval int64
	window      int64
	log         Logger
	hooks       Hooks

	destroyed atomic.Int64
	nextAt    atomic.Int64

	mu           sync.Mutex
	snapshot     []Entry
	cursor       int
	stepInterval int64

	cycles  atomic.Int64
	steps   atomic.Int64
	cleared atomic.Int64
}

// SchedulerStats is a point-in-time view of the scheduler.
type SchedulerStats struct {
	Destroyed    int64 // destroyed notifications since the cycle started
	Cycles       int64
	Steps        int64 // steps that cleared a table
	Cleared      int64 // entries dropped by scheduled clears
	Cursor       int
	Snapshot     int // tables in the current cycle
	StepInterval int64
}

func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Registry == nil {
		return nil, configErr("scheduler", "registry is required")
	}
	if opts.Threshold < 0 || opts.MinInterval < 0 || opts.Window < 0 {
		return nil, configErr("scheduler", "threshold, min interval and window must not be negative")
	}
	s := &Scheduler{
		reg:         opts.Registry,
		clock:       opts.Clock,
		threshold:   coalesce(opts.Threshold, int64(DefaultDestroyedThreshold)),
		minInterval: opts.MinInterval,
		window:      coalesce(opts.Window, DefaultWindow),
		log:         coalesce[Logger](opts.Logger, NopLogger{}).With(Fields{"component": "scheduler"}),
		hooks:       coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if s.clock == nil {
		s.clock = NewWallClock()
	}
	return s, nil
}

// NotifyDestroyed is the host hook for a permanently destroyed entity. It is
// cheap when no step is due; when one is, it runs it on the calling goroutine
// unless another goroutine is already stepping.
func (s *Scheduler) NotifyDestroyed() {
	if s.destroyed.Add(1) < s.threshold {
		return
	}
	now := s.clock.Now()
	if now < s.nextAt.Load() {
		return
	}
	if !s.mu.TryLock() {
		return
	}
	defer s.mu.Unlock()
	// re-check: a concurrent step may have reset the counter or pushed nextAt
	if s.destroyed.Load() < s.threshold || now < s.nextAt.Load() {
		return
	}
	s.step(now)
}

// Step forces one step regardless of the destroyed counter and the interval.
// It returns the table it cleared, or false if every table in the cycle was
// empty.
func (s *Scheduler) Step() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step(s.clock.Now())
}

// step clears the next non-empty table. At most one cycle restart happens per
// step, so an all-empty registry costs one snapshot.
func (s *Scheduler) step(now int64) (Entry, bool) {
	restarted := false
	if s.cursor >= len(s.snapshot) {
		s.startCycle()
		restarted = true
	}
	for {
		for s.cursor < len(s.snapshot) {
			e := s.snapshot[s.cursor]
			s.cursor++
			if e.Table.Len() == 0 {
				continue
			}
			n, ok := s.reg.clear(e, ClearScheduled)
			s.steps.Add(1)
			s.cleared.Add(int64(n))
			s.nextAt.Store(now + s.stepInterval)
			if ok {
				s.log.Debug("table evicted", Fields{"name": e.Name, "entries": n, "cursor": s.cursor})
			}
			return e, true
		}
		if restarted {
			s.nextAt.Store(now + s.minInterval)
			return Entry{}, false
		}
		s.startCycle()
		restarted = true
	}
}

func (s *Scheduler) startCycle() {
	s.snapshot = s.reg.Tables()
	s.cursor = 0
	nonEmpty := 0
	for _, e := range s.snapshot {
		if e.Table.Len() > 0 {
			nonEmpty++
		}
	}
	s.stepInterval = s.minInterval
	if nonEmpty > 0 {
		s.stepInterval = max(s.window/int64(nonEmpty), s.minInterval)
	}
	s.destroyed.Store(0)
	s.cycles.Add(1)
	s.log.Debug("eviction cycle started", Fields{
		"tables": len(s.snapshot), "non_empty": nonEmpty, "step_interval": s.stepInterval,
	})
	s.hooks.CycleStarted(len(s.snapshot), nonEmpty, s.stepInterval)
}

func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerStats{
		Destroyed:    s.destroyed.Load(),
		Cycles:       s.cycles.Load(),
		Steps:        s.steps.Load(),
		Cleared:      s.cleared.Load(),
		Cursor:       s.cursor,
		Snapshot:     len(s.snapshot),
		StepInterval: s.stepInterval,
	}
}
