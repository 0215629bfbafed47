package memocache

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/memocache/internal/workpool"
)

// SlotState is the lifecycle position of an async slot.
//
//	Empty -> Debouncing -> Running -> Completed
//
// Invalidate (or an expired result) sends any state back to Empty.
type SlotState int32

const (
	SlotEmpty SlotState = iota
	SlotDebouncing
	SlotRunning
	SlotCompleted
)

func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "empty"
	case SlotDebouncing:
		return "debouncing"
	case SlotRunning:
		return "running"
	case SlotCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Runner starts background work. Go returns false when it refused f.
type Runner interface {
	Go(f func()) bool
}

type goRunner struct{}

func (goRunner) Go(f func()) bool {
	go f()
	return true
}

// PoolRunner is a Runner backed by a fixed number of workers and a bounded
// queue. Launches beyond the queue are refused, not blocked.
type PoolRunner struct {
	p *workpool.Pool
}

func NewPoolRunner(workers, queue int) *PoolRunner {
	return &PoolRunner{p: workpool.New(workers, queue)}
}

func (r *PoolRunner) Go(f func()) bool { return r.p.TryGo(f) }

// Close drains queued launches and stops the workers.
func (r *PoolRunner) Close() { r.p.Close() }

// outcome is the immutable result snapshot of one computation.
type outcome[R any] struct {
	val         R
	err         error
	deadline    Deadline
	version     VersionStamp
	hasDeadline bool
	hasVersion  bool
	invalidated bool // Invalidate ran while computing
}

func (o *outcome[R]) dirty() bool {
	return o.invalidated || (o.hasDeadline && o.deadline.Dirty()) || (o.hasVersion && o.version.Dirty())
}

// flight is one running computation of a key. It outlives the slots that
// launched it: a slot that is reset or evicted and requested again attaches
// to the flight still running instead of starting another.
type flight[R any] struct {
	task        *Task[R]
	waiters     []waiter[R]
	invalidated bool
}

type waiter[R any] struct {
	s   *Slot[R]
	gen uint64
}

// Task is the handle of one background computation, shared by every
// requester of the key while it runs.
type Task[R any] struct {
	done chan struct{}
	out  *outcome[R]
}

func newTask[R any]() *Task[R] { return &Task[R]{done: make(chan struct{})} }

func (t *Task[R]) finish(o *outcome[R]) {
	t.out = o
	close(t.done)
}

// Done is closed once the computation finished.
func (t *Task[R]) Done() <-chan struct{} { return t.done }

// Completed reports whether the computation finished.
func (t *Task[R]) Completed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Value returns the result without blocking. Before completion, or after a
// failed computation, it returns an error matching ErrResultUnset.
func (t *Task[R]) Value() (R, error) {
	if !t.Completed() {
		var zero R
		return zero, fmt.Errorf("%w: still running", ErrResultUnset)
	}
	return t.out.val, t.out.err
}

// MustValue is Value for callers that cannot proceed without a result: an
// unset result panics.
func (t *Task[R]) MustValue() R {
	v, err := t.Value()
	if err != nil {
		panic(err)
	}
	return v
}

// Wait blocks until the computation finished or ctx is done. Cancelling ctx
// does not cancel the computation.
func (t *Task[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-t.done:
		return t.out.val, t.out.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Slot is the per-key async population state. Reading a completed result is
// lock-free; every other transition happens under the owning Async's lock.
// Callers may keep a *Slot inside their own cached values and drive it with
// Async.TryRefresh to keep the hot path off the lock.
type Slot[R any] struct {
	state   atomic.Int32
	counter atomic.Int32
	task    atomic.Pointer[Task[R]]
	out     atomic.Pointer[outcome[R]]
	gen     uint64     // guarded by the Async lock
	flight  *flight[R] // guarded by the Async lock; set while Running
}

func (s *Slot[R]) State() SlotState { return SlotState(s.state.Load()) }

// Result returns the last successful result, which may be stale. It is the
// fallback for requests told "not ready".
func (s *Slot[R]) Result() (R, bool) {
	if o := s.out.Load(); o != nil && o.err == nil {
		return o.val, true
	}
	var zero R
	return zero, false
}

// Err returns the error of the last completed computation, if it failed.
func (s *Slot[R]) Err() error {
	if o := s.out.Load(); o != nil {
		return o.err
	}
	return nil
}

// fresh returns the outcome when the slot is completed and not dirty.
func (s *Slot[R]) fresh() (*outcome[R], bool) {
	if SlotState(s.state.Load()) != SlotCompleted {
		return nil, false
	}
	o := s.out.Load()
	if o == nil || o.dirty() {
		return o, false
	}
	return o, true
}

// Async debounces and deduplicates expensive computations. A cold key must
// be requested Threshold times before its computation is launched; from then
// on every requester shares one Task, and the completed result is served
// lock-free until it goes dirty or is invalidated.
//
// Slots live in a registered shared table, so the eviction scheduler drops
// them wholesale like any other cache. Lookups of existing slots go through a
// lock-free index; the lock is taken only to create a slot or change its
// state. A computation running while its slot is invalidated or evicted runs
// to completion and stays the only one for its key: new requests attach to
// it. Its result is published, and is dirty if Invalidate ran meanwhile.
type Async[K comparable, R any] struct {
	name      string
	slots     *Shared[K, *Slot[R]]
	index     sync.Map         // K -> *Slot[R]; cleared with slots
	inflight  map[K]*flight[R] // guarded by slots.mu
	compute   func(context.Context, K) (R, error)
	threshold int32
	deadline  DeadlinePolicy
	depends   Versioned
	runner    Runner
	log       Logger
	hooks     Hooks

	launches atomic.Int64
}

func NewAsync[K comparable, R any](reg *Registry, opts AsyncOptions[K, R]) (*Async[K, R], error) {
	if reg == nil {
		return nil, configErr("async", "registry is required")
	}
	if opts.Compute == nil {
		return nil, configErr("async", "compute function is required")
	}
	if opts.Threshold < 0 {
		return nil, configErr("async", "threshold must not be negative")
	}
	if opts.Deadline.Clock == nil && (opts.Deadline.Interval != 0 || opts.Deadline.Jitter != 0) {
		return nil, configErr("async", "deadline interval set without a clock")
	}
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("%v->async %v", reflect.TypeFor[K](), reflect.TypeFor[R]())
	}
	log := coalesce[Logger](opts.Logger, NopLogger{})
	slots, err := NewShared(reg, Options[K, *Slot[R]]{
		Name:   name,
		Init:   func(K) *Slot[R] { return &Slot[R]{} },
		Logger: log,
	})
	if err != nil {
		return nil, err
	}
	a := &Async[K, R]{
		name:      name,
		slots:     slots,
		inflight:  make(map[K]*flight[R]),
		compute:   opts.Compute,
		threshold: int32(coalesce(opts.Threshold, DefaultThreshold)),
		deadline:  opts.Deadline,
		depends:   opts.Depends,
		runner:    coalesce[Runner](opts.Runner, goRunner{}),
		log:       log.With(Fields{"table": name}),
		hooks:     coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	slots.onClear = func() { a.index.Clear() }
	return a, nil
}

func (a *Async[K, R]) Name() string { return a.name }

// Len returns the number of slots.
func (a *Async[K, R]) Len() int { return a.slots.Len() }

// Launches returns how many computations were started.
func (a *Async[K, R]) Launches() int64 { return a.launches.Load() }

// Slot returns the slot of key, creating an empty one if needed. Existing
// slots are found without locking.
func (a *Async[K, R]) Slot(key K) *Slot[R] {
	if s, ok := a.index.Load(key); ok {
		return s.(*Slot[R])
	}
	a.slots.mu.Lock()
	defer a.slots.mu.Unlock()
	s := a.slots.t.GetOrAdd(key)
	a.index.Store(key, s)
	return s
}

// RequestAsync counts one request for key. It returns the Task computing (or
// having computed) the result, or false while the key is still debouncing.
// The computation does not inherit ctx's cancellation, only its values.
func (a *Async[K, R]) RequestAsync(ctx context.Context, key K) (*Task[R], bool) {
	return a.request(ctx, a.Slot(key), key)
}

// TryGet returns the completed, fresh result for key. Otherwise it counts a
// request (possibly launching the computation) and reports false; the caller
// falls back to a synchronous path or to the slot's stale Result.
func (a *Async[K, R]) TryGet(ctx context.Context, key K) (R, bool) {
	s := a.Slot(key)
	if o, ok := s.fresh(); ok && o.err == nil {
		return o.val, true
	}
	a.request(ctx, s, key)
	if o, ok := s.fresh(); ok && o.err == nil {
		return o.val, true
	}
	var zero R
	return zero, false
}

// TryRefresh drives a caller-held slot for key and reports whether it now
// holds a fresh, successful result. It takes no lock when it does.
func (a *Async[K, R]) TryRefresh(s *Slot[R], key K) bool {
	if o, ok := s.fresh(); ok {
		return o.err == nil
	}
	a.request(context.Background(), s, key)
	o, ok := s.fresh()
	return ok && o.err == nil
}

// Invalidate sends the slot of key back to Empty. A running computation is
// not cancelled; its result will be published dirty.
func (a *Async[K, R]) Invalidate(key K) {
	a.slots.mu.Lock()
	defer a.slots.mu.Unlock()
	if f := a.inflight[key]; f != nil {
		f.invalidated = true
	}
	if s, ok := a.slots.t.Get(key); ok {
		a.resetLocked(s)
	}
}

// InvalidateSlot is Invalidate for a caller-held slot.
func (a *Async[K, R]) InvalidateSlot(s *Slot[R]) {
	a.slots.mu.Lock()
	a.resetLocked(s)
	a.slots.mu.Unlock()
}

// resetLocked keeps the last outcome as a stale fallback.
func (a *Async[K, R]) resetLocked(s *Slot[R]) {
	if s.flight != nil {
		s.flight.invalidated = true
		s.flight = nil
	}
	s.gen++
	s.counter.Store(0)
	s.task.Store(nil)
	s.state.Store(int32(SlotEmpty))
}

func (a *Async[K, R]) request(ctx context.Context, s *Slot[R], key K) (*Task[R], bool) {
	for {
		switch SlotState(s.state.Load()) {
		case SlotCompleted:
			o, ok := s.fresh()
			if ok {
				if t := s.task.Load(); t != nil {
					return t, true
				}
				continue
			}
			a.slots.mu.Lock()
			if SlotState(s.state.Load()) == SlotCompleted && s.out.Load() == o {
				a.resetLocked(s)
			}
			a.slots.mu.Unlock()

		case SlotRunning:
			if t := s.task.Load(); t != nil {
				return t, true
			}

		case SlotDebouncing:
			if s.counter.Add(-1) > 0 {
				return nil, false
			}
			a.slots.mu.Lock()
			if SlotState(s.state.Load()) == SlotDebouncing {
				t, ok := a.launchLocked(ctx, s, key)
				a.slots.mu.Unlock()
				return t, ok
			}
			a.slots.mu.Unlock()

		case SlotEmpty:
			a.slots.mu.Lock()
			if SlotState(s.state.Load()) == SlotEmpty {
				if a.threshold <= 1 {
					t, ok := a.launchLocked(ctx, s, key)
					a.slots.mu.Unlock()
					return t, ok
				}
				// this request is the first of threshold
				s.counter.Store(a.threshold - 1)
				s.state.Store(int32(SlotDebouncing))
				a.slots.mu.Unlock()
				return nil, false
			}
			a.slots.mu.Unlock()
		}
	}
}

// launchLocked starts the computation of key, or attaches s to the one
// already running.
func (a *Async[K, R]) launchLocked(ctx context.Context, s *Slot[R], key K) (*Task[R], bool) {
	if f := a.inflight[key]; f != nil {
		a.attachLocked(f, s)
		return f.task, true
	}

	// capture the dependency before computing: a mutation during the
	// computation must leave the result dirty
	var stamp outcome[R]
	if a.depends != nil {
		stamp.version.Update(a.depends)
		stamp.hasVersion = true
	}

	f := &flight[R]{task: newTask[R]()}
	a.inflight[key] = f
	a.attachLocked(f, s)
	bg := context.WithoutCancel(ctx)
	if !a.runner.Go(func() { a.run(bg, key, f, stamp) }) {
		delete(a.inflight, key)
		s.flight = nil
		f.task.finish(&outcome[R]{err: &ComputeError{Table: a.name, Key: key, Err: ErrRejected}})
		a.resetLocked(s)
		a.log.Warn("background launch rejected", Fields{"key": key})
		a.hooks.LaunchRejected(a.name, key)
		return nil, false
	}
	a.launches.Add(1)
	return f.task, true
}

func (a *Async[K, R]) attachLocked(f *flight[R], s *Slot[R]) {
	f.waiters = append(f.waiters, waiter[R]{s: s, gen: s.gen})
	s.flight = f
	s.task.Store(f.task)
	s.state.Store(int32(SlotRunning))
}

func (a *Async[K, R]) run(ctx context.Context, key K, f *flight[R], o outcome[R]) {
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				o.err = fmt.Errorf("panic: %v", rec)
			}
		}()
		o.val, o.err = a.compute(ctx, key)
	}()
	if o.err != nil {
		var zero R
		o.val = zero
		o.err = &ComputeError{Table: a.name, Key: key, Err: o.err}
		a.log.Error("background computation failed", Fields{"key": key, "err": o.err})
		a.hooks.ComputeFailed(a.name, key, o.err)
	}
	if a.deadline.Clock != nil {
		o.deadline.Update(a.deadline, HashOf(key))
		o.hasDeadline = true
	}

	a.slots.mu.Lock()
	defer a.slots.mu.Unlock()
	if a.inflight[key] == f {
		delete(a.inflight, key)
	}
	o.invalidated = f.invalidated
	out := &o
	f.task.finish(out)
	for _, w := range f.waiters {
		// slots reset since they attached have moved on
		if w.s.flight == f && w.s.gen == w.gen {
			w.s.flight = nil
			w.s.out.Store(out)
			w.s.state.Store(int32(SlotCompleted))
		}
	}
}
