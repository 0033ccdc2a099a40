package watch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ankittk/taskwatch/internal/capture"
	"github.com/ankittk/taskwatch/internal/store"
)

type fakeTicker struct {
	ch chan time.Time

	mu      sync.Mutex
	resets  []time.Duration
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Reset(d time.Duration) {
	f.mu.Lock()
	f.resets = append(f.resets, d)
	f.mu.Unlock()
}

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

// fire delivers one tick; the unbuffered send returns once the loop has received it.
func (f *fakeTicker) fire(t *testing.T) {
	t.Helper()
	select {
	case f.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not receive tick")
	}
}

// fakeCycler returns tasksPerCycle tasks per call. When gate is non-nil each cycle
// blocks until a value is received from it.
type fakeCycler struct {
	calls         atomic.Int64
	tasksPerCycle int
	gate          chan struct{}
	errs          chan error
}

func (f *fakeCycler) RunCycle(ctx context.Context) (capture.Result, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.errs != nil {
		select {
		case err := <-f.errs:
			if err != nil {
				return capture.Result{}, err
			}
		default:
		}
	}
	return capture.Result{Tasks: make([]store.Task, f.tasksPerCycle)}, nil
}

type harness struct {
	s      *Scheduler
	ticker *fakeTicker
	cycles chan error
	secs   atomic.Int64
}

func newHarness(t *testing.T, c Cycler) *harness {
	t.Helper()
	h := &harness{ticker: &fakeTicker{ch: make(chan time.Time)}, cycles: make(chan error, 32)}
	h.secs.Store(30)
	h.s = &Scheduler{
		Cycler:    c,
		Interval:  func() time.Duration { return time.Duration(h.secs.Load()) * time.Second },
		NewTicker: func(time.Duration) Ticker { return h.ticker },
	}
	h.s.OnCycle(func(_ context.Context, _ capture.Result, err error) { h.cycles <- err })
	t.Cleanup(func() { _ = h.s.Shutdown(context.Background()) })
	return h
}

func (h *harness) waitCycle(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.cycles:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not finish")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStartRunsImmediatelyThenOnEveryTick(t *testing.T) {
	c := &fakeCycler{tasksPerCycle: 2}
	h := newHarness(t, c)
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.waitCycle(t)
	for i := 0; i < 3; i++ {
		h.ticker.fire(t)
		h.waitCycle(t)
	}
	st := h.s.Status()
	if st.CapturesSinceStart != 4 || c.calls.Load() != 4 {
		t.Fatalf("captures: status=%d calls=%d, want 4", st.CapturesSinceStart, c.calls.Load())
	}
	if st.TasksDetectedSinceStart != 8 {
		t.Fatalf("tasks detected: %d", st.TasksDetectedSinceStart)
	}
	if !st.IsWatching || st.IsCapturing || st.LastCaptureAt == nil || st.IntervalSecs != 30 {
		t.Fatalf("status: %+v", st)
	}
}

func TestStartTwiceFails(t *testing.T) {
	h := newHarness(t, &fakeCycler{})
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.waitCycle(t)
	if err := h.s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start: %v", err)
	}
}

func TestTickSkippedWhileCycleInFlight(t *testing.T) {
	c := &fakeCycler{gate: make(chan struct{})}
	h := newHarness(t, c)
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	// The immediate cycle is blocked; the second send only completes after the first
	// tick has been handled.
	h.ticker.fire(t)
	h.ticker.fire(t)
	if _, err := h.s.CaptureNow(context.Background()); !errors.Is(err, ErrCycleAlreadyInFlight) {
		t.Fatalf("CaptureNow while in flight: %v", err)
	}
	waitFor(t, func() bool { return c.calls.Load() == 1 })
	if !h.s.Status().IsCapturing {
		t.Fatal("status should report a capture in flight")
	}
	c.gate <- struct{}{}
	h.waitCycle(t)
	if n := c.calls.Load(); n != 1 {
		t.Fatalf("calls: got %d, want 1", n)
	}
	if st := h.s.Status(); st.CapturesSinceStart != 1 {
		t.Fatalf("captures: %d", st.CapturesSinceStart)
	}
}

func TestStopResetsCountersAndDisarms(t *testing.T) {
	c := &fakeCycler{tasksPerCycle: 1}
	h := newHarness(t, c)
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.waitCycle(t)
	if err := h.s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st := h.s.Status()
	if st.IsWatching || st.CapturesSinceStart != 0 || st.TasksDetectedSinceStart != 0 {
		t.Fatalf("status after stop: %+v", st)
	}
	h.ticker.mu.Lock()
	stopped := h.ticker.stopped
	h.ticker.mu.Unlock()
	if !stopped {
		t.Fatal("ticker not stopped")
	}
	select {
	case h.ticker.ch <- time.Now():
		t.Fatal("loop still receiving ticks after Stop")
	case <-time.After(50 * time.Millisecond):
	}
	if err := h.s.Stop(); err != nil {
		t.Fatalf("Stop on idle scheduler: %v", err)
	}
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	h.waitCycle(t)
	if st := h.s.Status(); st.CapturesSinceStart != 1 {
		t.Fatalf("captures after restart: %d", st.CapturesSinceStart)
	}
}

func TestCycleFinishingAfterStopIsNotCounted(t *testing.T) {
	c := &fakeCycler{tasksPerCycle: 3, gate: make(chan struct{})}
	h := newHarness(t, c)
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.s.Stop(); err != nil {
		t.Fatal(err)
	}
	c.gate <- struct{}{}
	if err := h.waitCycle(t); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	st := h.s.Status()
	if st.CapturesSinceStart != 0 || st.TasksDetectedSinceStart != 0 || st.IsCapturing {
		t.Fatalf("stale cycle leaked into status: %+v", st)
	}
}

func TestFailuresAreRecordedAndLoopContinues(t *testing.T) {
	c := &fakeCycler{tasksPerCycle: 1, errs: make(chan error, 1)}
	h := newHarness(t, c)
	c.errs <- &capture.AnalysisError{Err: errors.New("provider unreachable")}
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.waitCycle(t); err == nil {
		t.Fatal("first cycle should fail")
	}
	st := h.s.Status()
	if st.LastError == "" || st.CapturesSinceStart != 1 || st.TasksDetectedSinceStart != 0 {
		t.Fatalf("after failure: %+v", st)
	}
	h.ticker.fire(t)
	if err := h.waitCycle(t); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	st = h.s.Status()
	if st.LastError != "" || st.CapturesSinceStart != 2 || st.TasksDetectedSinceStart != 1 {
		t.Fatalf("after recovery: %+v", st)
	}
}

func TestIntervalChangeResetsTicker(t *testing.T) {
	h := newHarness(t, &fakeCycler{})
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.waitCycle(t)
	h.secs.Store(60)
	h.ticker.fire(t)
	h.waitCycle(t)
	h.ticker.fire(t) // handled only after the previous tick's interval check
	h.waitCycle(t)
	h.ticker.mu.Lock()
	resets := append([]time.Duration{}, h.ticker.resets...)
	h.ticker.mu.Unlock()
	if len(resets) != 1 || resets[0] != 60*time.Second {
		t.Fatalf("resets: %v", resets)
	}
	if st := h.s.Status(); st.IntervalSecs != 60 {
		t.Fatalf("interval secs: %d", st.IntervalSecs)
	}
}

func TestCaptureNowWhileIdle(t *testing.T) {
	c := &fakeCycler{tasksPerCycle: 2}
	h := newHarness(t, c)
	res, err := h.s.CaptureNow(context.Background())
	if err != nil {
		t.Fatalf("CaptureNow: %v", err)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("tasks: %d", len(res.Tasks))
	}
	h.waitCycle(t)
	st := h.s.Status()
	if st.IsWatching || st.CapturesSinceStart != 1 {
		t.Fatalf("status: %+v", st)
	}
}

func TestStatusHooksSeeTransitions(t *testing.T) {
	h := newHarness(t, &fakeCycler{})
	var mu sync.Mutex
	var seen []Status
	h.s.OnStatus(func(_ context.Context, st Status) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.waitCycle(t)
	_ = h.s.Stop()
	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 4 {
		t.Fatalf("status events: %d", len(seen))
	}
	if !seen[0].IsWatching || seen[len(seen)-1].IsWatching {
		t.Fatalf("first/last: %+v / %+v", seen[0], seen[len(seen)-1])
	}
}

func TestTickDuringStopIsNotCounted(t *testing.T) {
	for i := 0; i < 50; i++ {
		c := &fakeCycler{tasksPerCycle: 1}
		tk := &fakeTicker{ch: make(chan time.Time, 1)}
		s := &Scheduler{Cycler: c, NewTicker: func(time.Duration) Ticker { return tk }}
		if err := s.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		tk.ch <- time.Now()
		if err := s.Stop(); err != nil {
			t.Fatal(err)
		}
		if err := s.Shutdown(context.Background()); err != nil {
			t.Fatal(err)
		}
		st := s.Status()
		if st.IsWatching || st.CapturesSinceStart != 0 || st.TasksDetectedSinceStart != 0 {
			t.Fatalf("iteration %d: status after stop: %+v", i, st)
		}
	}
}

func TestRestartWhileOldCycleInFlightStillCapturesImmediately(t *testing.T) {
	c := &fakeCycler{tasksPerCycle: 2, gate: make(chan struct{})}
	h := newHarness(t, c)
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return c.calls.Load() == 1 })
	if err := h.s.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	c.gate <- struct{}{}
	h.waitCycle(t)
	// The old cycle hands the pending immediate capture to the new run.
	c.gate <- struct{}{}
	h.waitCycle(t)
	if n := c.calls.Load(); n != 2 {
		t.Fatalf("calls: got %d, want 2", n)
	}
	st := h.s.Status()
	if !st.IsWatching || st.CapturesSinceStart != 1 || st.TasksDetectedSinceStart != 2 {
		t.Fatalf("status after restart: %+v", st)
	}
}

func TestConcurrentCaptureNowRunsOneCycle(t *testing.T) {
	c := &fakeCycler{tasksPerCycle: 2, gate: make(chan struct{})}
	h := newHarness(t, c)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := h.s.CaptureNow(context.Background())
			errs <- err
		}()
	}
	// The winner is parked in the cycler, so the first result is the loser's.
	select {
	case err := <-errs:
		if !errors.Is(err, ErrCycleAlreadyInFlight) {
			t.Fatalf("second CaptureNow: got %v, want ErrCycleAlreadyInFlight", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second CaptureNow did not return")
	}
	c.gate <- struct{}{}
	if err := <-errs; err != nil {
		t.Fatalf("first CaptureNow: %v", err)
	}
	if n := c.calls.Load(); n != 1 {
		t.Fatalf("calls: got %d, want 1", n)
	}
	st := h.s.Status()
	if st.CapturesSinceStart != 1 || st.TasksDetectedSinceStart != 2 {
		t.Fatalf("status: %+v", st)
	}
}
