package memocache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestAsync[K comparable, R any](t *testing.T, opts AsyncOptions[K, R]) *Async[K, R] {
	t.Helper()
	a, err := NewAsync(NewRegistry(RegistryOptions{}), opts)
	if err != nil {
		t.Fatalf("NewAsync: %v", err)
	}
	return a
}

func waitTask[R any](t *testing.T, task *Task[R]) (R, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := task.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("task did not complete")
	}
	return v, err
}

// waitState polls until the slot reaches want; publication to the slot
// happens just after the task completes.
func waitState[R any](t *testing.T, s *Slot[R], want SlotState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("slot state=%v want %v", s.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

// ==============================
// Debounce
// ==============================

// TestDebounceLaunchesOnNthRequest: with threshold 8, requests 1-7 are told
// "not ready" and nothing runs; the 8th launches exactly one computation.
func TestDebounceLaunchesOnNthRequest(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	a := newTestAsync(t, AsyncOptions[string, int]{
		Threshold: 8,
		Compute: func(_ context.Context, k string) (int, error) {
			calls.Add(1)
			return len(k), nil
		},
	})

	for i := 1; i < 8; i++ {
		if task, ok := a.RequestAsync(ctx, "route"); ok || task != nil {
			t.Fatalf("request %d launched", i)
		}
	}
	if calls.Load() != 0 || a.Launches() != 0 {
		t.Fatalf("computation ran before threshold")
	}
	if st := a.Slot("route").State(); st != SlotDebouncing {
		t.Fatalf("state=%v want debouncing", st)
	}

	task, ok := a.RequestAsync(ctx, "route")
	if !ok {
		t.Fatalf("8th request did not launch")
	}
	v, err := waitTask(t, task)
	if err != nil || v != 5 {
		t.Fatalf("result=%d err=%v", v, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d want 1", calls.Load())
	}

	waitState(t, a.Slot("route"), SlotCompleted)
	got, ok := a.TryGet(ctx, "route")
	if !ok || got != 5 {
		t.Fatalf("TryGet=%d,%v", got, ok)
	}
	if calls.Load() != 1 {
		t.Fatalf("completed result recomputed")
	}
}

func TestThresholdOneLaunchesImmediately(t *testing.T) {
	a := newTestAsync(t, AsyncOptions[int, int]{
		Threshold: 1,
		Compute:   func(_ context.Context, k int) (int, error) { return k * 2, nil },
	})
	task, ok := a.RequestAsync(context.Background(), 21)
	if !ok {
		t.Fatalf("threshold 1 did not launch on first request")
	}
	if v, _ := waitTask(t, task); v != 42 {
		t.Fatalf("v=%d", v)
	}
}

// ==============================
// Deduplication
// ==============================

// TestConcurrentRequestsShareOneComputation: many goroutines pushing one key
// past the threshold observe a single computation and the same result.
func TestConcurrentRequestsShareOneComputation(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	a := newTestAsync(t, AsyncOptions[int, int]{
		Threshold: 4,
		Compute: func(_ context.Context, k int) (int, error) {
			calls.Add(1)
			<-release
			return k + 1, nil
		},
	})

	const workers = 32
	tasks := make(chan *Task[int], workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if task, ok := a.RequestAsync(context.Background(), 9); ok {
					tasks <- task
					return
				}
			}
		}()
	}
	wg.Wait()
	close(release)
	close(tasks)

	var first *Task[int]
	for task := range tasks {
		if first == nil {
			first = task
		}
		if task != first {
			t.Fatalf("requesters got different tasks")
		}
		if v, err := waitTask(t, task); err != nil || v != 10 {
			t.Fatalf("v=%d err=%v", v, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d want 1", calls.Load())
	}
}

// ==============================
// Failure / staleness
// ==============================

func TestFailureIsStoredUntilInvalidated(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	var hooks recordingHooks
	a := newTestAsync(t, AsyncOptions[string, int]{
		Name:      "route",
		Threshold: 1,
		Hooks:     &hooks,
		Compute: func(context.Context, string) (int, error) {
			calls.Add(1)
			return 0, boom
		},
	})
	ctx := context.Background()
	task, _ := a.RequestAsync(ctx, "k")
	_, err := waitTask(t, task)
	if !errors.Is(err, boom) || !errors.Is(err, ErrResultUnset) {
		t.Fatalf("err=%v want boom and ErrResultUnset", err)
	}
	var ce *ComputeError
	if !errors.As(err, &ce) || ce.Table != "route" || ce.Key != "k" {
		t.Fatalf("err=%#v", err)
	}
	if _, err := task.Value(); !errors.Is(err, boom) {
		t.Fatalf("Value err=%v", err)
	}

	s := a.Slot("k")
	waitState(t, s, SlotCompleted)
	if _, ok := a.TryGet(ctx, "k"); ok {
		t.Fatalf("failed result served")
	}
	if again, _ := a.RequestAsync(ctx, "k"); again != task {
		t.Fatalf("failure retried without expiry")
	}
	if calls.Load() != 1 || hooks.failed.Load() != 1 {
		t.Fatalf("calls=%d failed hooks=%d", calls.Load(), hooks.failed.Load())
	}

	a.Invalidate("k")
	if s.State() != SlotEmpty {
		t.Fatalf("state=%v after Invalidate", s.State())
	}
	next, _ := a.RequestAsync(ctx, "k")
	waitTask(t, next)
	if calls.Load() != 2 {
		t.Fatalf("calls=%d want 2 after Invalidate", calls.Load())
	}
}

func TestPanicBecomesComputeError(t *testing.T) {
	a := newTestAsync(t, AsyncOptions[int, int]{
		Threshold: 1,
		Compute:   func(context.Context, int) (int, error) { panic("bad input") },
	})
	task, _ := a.RequestAsync(context.Background(), 1)
	if _, err := waitTask(t, task); !errors.Is(err, ErrResultUnset) {
		t.Fatalf("err=%v", err)
	}
}

func TestDeadlineExpiryRestartsDebounce(t *testing.T) {
	clk := &ManualClock{}
	var calls atomic.Int32
	a := newTestAsync(t, AsyncOptions[int, int]{
		Threshold: 2,
		Deadline:  DeadlinePolicy{Clock: clk, Interval: 10},
		Compute: func(context.Context, int) (int, error) {
			return int(calls.Add(1)), nil
		},
	})
	ctx := context.Background()
	s := a.Slot(1)

	a.RequestAsync(ctx, 1)
	task, _ := a.RequestAsync(ctx, 1)
	waitTask(t, task)
	waitState(t, s, SlotCompleted)

	clk.Advance(9)
	if !a.TryRefresh(s, 1) {
		t.Fatalf("fresh result rejected")
	}
	clk.Advance(1)
	if a.TryRefresh(s, 1) {
		t.Fatalf("expired result served")
	}
	if s.State() != SlotDebouncing {
		t.Fatalf("state=%v want debouncing after expiry", s.State())
	}
	if v, ok := s.Result(); !ok || v != 1 {
		t.Fatalf("stale fallback=%d,%v", v, ok)
	}
	a.TryRefresh(s, 1)
	waitState(t, s, SlotCompleted)
	if v, _ := s.Result(); v != 2 {
		t.Fatalf("result=%d want 2", v)
	}
}

func TestDependencyMutationDuringComputeLeavesResultDirty(t *testing.T) {
	dep := &counter{}
	started, release := make(chan struct{}), make(chan struct{})
	a := newTestAsync(t, AsyncOptions[int, int]{
		Threshold: 1,
		Depends:   dep,
		Compute: func(context.Context, int) (int, error) {
			close(started)
			<-release
			return 1, nil
		},
	})
	task, _ := a.RequestAsync(context.Background(), 1)
	<-started
	dep.Bump()
	close(release)
	waitTask(t, task)
	s := a.Slot(1)
	waitState(t, s, SlotCompleted)
	if _, ok := s.fresh(); ok {
		t.Fatalf("result computed against an older version is clean")
	}
}

// TestInvalidateWhileRunningDiscardsResult: the running computation is let
// finish; its outcome reaches the waiters but not the slot.
func TestInvalidateWhileRunningDiscardsResult(t *testing.T) {
	release := make(chan struct{})
	a := newTestAsync(t, AsyncOptions[int, int]{
		Threshold: 1,
		Compute: func(context.Context, int) (int, error) {
			<-release
			return 7, nil
		},
	})
	task, _ := a.RequestAsync(context.Background(), 1)
	a.Invalidate(1)
	close(release)
	if v, _ := waitTask(t, task); v != 7 {
		t.Fatalf("waiter got %d", v)
	}
	s := a.Slot(1)
	time.Sleep(10 * time.Millisecond)
	if s.State() != SlotEmpty {
		t.Fatalf("state=%v; stale generation published", s.State())
	}
}

// TestResetAndEvictionAttachToRunningComputation: while a computation runs,
// its slot is evicted and then invalidated, and the key is requested again
// after each. Every request joins the running Task. Its result is published
// dirty, so the next request computes again.
func TestResetAndEvictionAttachToRunningComputation(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	var calls, running, maxRunning atomic.Int32
	reg := NewRegistry(RegistryOptions{})
	a, err := NewAsync(reg, AsyncOptions[int, int]{
		Threshold: 1,
		Compute: func(context.Context, int) (int, error) {
			calls.Add(1)
			n := running.Add(1)
			defer running.Add(-1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			<-release
			return 7, nil
		},
	})
	if err != nil {
		t.Fatalf("NewAsync: %v", err)
	}

	first, ok := a.RequestAsync(ctx, 1)
	if !ok {
		t.Fatalf("first request did not launch")
	}
	reg.ClearAll()
	if a.Len() != 0 {
		t.Fatalf("slot survived eviction")
	}
	if task, _ := a.RequestAsync(ctx, 1); task != first {
		t.Fatalf("request after eviction started a second computation")
	}
	a.Invalidate(1)
	if task, _ := a.RequestAsync(ctx, 1); task != first {
		t.Fatalf("request after invalidation started a second computation")
	}
	if n := a.Launches(); n != 1 {
		t.Fatalf("launches=%d want 1", n)
	}

	close(release)
	if v, _ := waitTask(t, first); v != 7 {
		t.Fatalf("waiter got %d", v)
	}
	s := a.Slot(1)
	waitState(t, s, SlotCompleted)
	if _, ok := s.fresh(); ok {
		t.Fatalf("result computed across an invalidation reported fresh")
	}
	if v, ok := s.Result(); !ok || v != 7 {
		t.Fatalf("Result=%d,%v want stale 7", v, ok)
	}

	next, ok := a.RequestAsync(ctx, 1)
	if !ok || next == first {
		t.Fatalf("dirty result not recomputed")
	}
	waitTask(t, next)
	if calls.Load() != 2 || maxRunning.Load() != 1 {
		t.Fatalf("calls=%d maxRunning=%d", calls.Load(), maxRunning.Load())
	}
}

// TestCompletedReadsDoNotLock: a completed key is served while another
// goroutine holds the lock of the slot table.
func TestCompletedReadsDoNotLock(t *testing.T) {
	ctx := context.Background()
	a := newTestAsync(t, AsyncOptions[int, int]{
		Threshold: 1,
		Compute:   func(_ context.Context, k int) (int, error) { return k * 3, nil },
	})
	task, _ := a.RequestAsync(ctx, 4)
	waitTask(t, task)
	waitState(t, a.Slot(4), SlotCompleted)

	locked, hold := make(chan struct{}), make(chan struct{})
	go a.slots.Locked(func(*Table[int, *Slot[int]]) {
		close(locked)
		<-hold
	})
	<-locked
	defer close(hold)

	done := make(chan int, 1)
	go func() {
		v, ok := a.TryGet(ctx, 4)
		if !ok {
			v = -1
		}
		if got, _ := a.RequestAsync(ctx, 4); got != task {
			v = -2
		}
		done <- v
	}()
	select {
	case v := <-done:
		if v != 12 {
			t.Fatalf("TryGet=%d want 12", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("read of a completed key waited for the lock")
	}
}

// ==============================
// Runner
// ==============================

type refusingRunner struct{}

func (refusingRunner) Go(func()) bool { return false }

func TestRejectedLaunchReturnsToEmpty(t *testing.T) {
	var hooks recordingHooks
	a := newTestAsync(t, AsyncOptions[int, int]{
		Threshold: 1,
		Runner:    refusingRunner{},
		Hooks:     &hooks,
		Compute:   func(context.Context, int) (int, error) { return 1, nil },
	})
	if task, ok := a.RequestAsync(context.Background(), 1); ok || task != nil {
		t.Fatalf("rejected launch reported as started")
	}
	if st := a.Slot(1).State(); st != SlotEmpty {
		t.Fatalf("state=%v want empty", st)
	}
	if hooks.rejected.Load() != 1 {
		t.Fatalf("LaunchRejected not called")
	}
}

func TestPoolRunnerRunsLaunches(t *testing.T) {
	r := NewPoolRunner(2, 8)
	defer r.Close()
	a := newTestAsync(t, AsyncOptions[int, int]{
		Threshold: 1,
		Runner:    r,
		Compute:   func(_ context.Context, k int) (int, error) { return -k, nil },
	})
	for k := range 4 {
		task, ok := a.RequestAsync(context.Background(), k)
		if !ok {
			t.Fatalf("launch %d refused", k)
		}
		if v, _ := waitTask(t, task); v != -k {
			t.Fatalf("v=%d want %d", v, -k)
		}
	}
}

func TestTaskValueBeforeCompletion(t *testing.T) {
	task := newTask[int]()
	if _, err := task.Value(); !errors.Is(err, ErrResultUnset) {
		t.Fatalf("err=%v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("MustValue did not panic")
		}
	}()
	task.MustValue()
}

func TestNewAsyncValidates(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	var cfg *ConfigError
	if _, err := NewAsync(reg, AsyncOptions[int, int]{}); !errors.As(err, &cfg) {
		t.Fatalf("missing compute: err=%v", err)
	}
	compute := func(context.Context, int) (int, error) { return 0, nil }
	if _, err := NewAsync(reg, AsyncOptions[int, int]{Compute: compute, Threshold: -1}); !errors.As(err, &cfg) {
		t.Fatalf("negative threshold: err=%v", err)
	}
	if _, err := NewAsync(nil, AsyncOptions[int, int]{Compute: compute}); !errors.As(err, &cfg) {
		t.Fatalf("nil registry: err=%v", err)
	}
}

// Async slots are a registered table: a scheduled clear drops them.
func TestAsyncSlotsAreEvictable(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	a, _ := NewAsync(reg, AsyncOptions[int, int]{
		Compute: func(context.Context, int) (int, error) { return 0, nil },
	})
	a.RequestAsync(context.Background(), 1)
	a.RequestAsync(context.Background(), 2)
	if a.Len() != 2 {
		t.Fatalf("Len=%d", a.Len())
	}
	reg.ClearAll()
	if a.Len() != 0 {
		t.Fatalf("slots survived ClearAll")
	}
}
