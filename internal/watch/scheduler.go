// Package watch drives capture cycles on a repeating timer. At most one cycle runs at a
// time; ticks that arrive while a cycle is in flight are dropped, not queued.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ankittk/taskwatch/internal/capture"
	taskotel "github.com/ankittk/taskwatch/internal/otel"
)

var (
	// ErrAlreadyRunning is returned by Start when the timer is already armed.
	ErrAlreadyRunning = errors.New("watch already running")
	// ErrCycleAlreadyInFlight is returned by CaptureNow while another cycle runs.
	ErrCycleAlreadyInFlight = errors.New("capture cycle already in flight")
)

// Cycler runs one capture cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (capture.Result, error)
}

// Ticker is the subset of *time.Ticker the loop needs.
type Ticker interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time   { return r.t.C }
func (r realTicker) Reset(d time.Duration) { r.t.Reset(d) }
func (r realTicker) Stop()                 { r.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// Status is a consistent snapshot of the scheduler.
type Status struct {
	IsWatching              bool
	IsCapturing             bool
	LastCaptureAt           *time.Time
	CapturesSinceStart      int64
	TasksDetectedSinceStart int64
	LastError               string
	IntervalSecs            int
}

// Scheduler owns the timer loop. Interval is read at start and after every tick, so a
// changed interval takes effect from the next period.
type Scheduler struct {
	Cycler    Cycler
	Interval  func() time.Duration
	Now       func() time.Time
	NewTicker func(time.Duration) Ticker

	inFlight atomic.Bool
	cycles   sync.WaitGroup

	mu      sync.Mutex
	running bool
	epoch   uint64
	loopCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	st      Status

	// startPending is set until the run's immediate cycle begins. A cycle left over
	// from a stopped run re-triggers it when it finishes.
	startPending bool

	hmu         sync.RWMutex
	statusHooks []func(context.Context, Status)
	cycleHooks  []func(context.Context, capture.Result, error)
}

// OnStatus registers fn to receive every status change.
func (s *Scheduler) OnStatus(fn func(context.Context, Status)) {
	s.hmu.Lock()
	s.statusHooks = append(s.statusHooks, fn)
	s.hmu.Unlock()
}

// OnCycle registers fn to run after every finished cycle, including cycles that
// finish after Stop.
func (s *Scheduler) OnCycle(fn func(context.Context, capture.Result, error)) {
	s.hmu.Lock()
	s.cycleHooks = append(s.cycleHooks, fn)
	s.hmu.Unlock()
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Scheduler) interval() time.Duration {
	if s.Interval != nil {
		if d := s.Interval(); d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

func (s *Scheduler) newTicker(d time.Duration) Ticker {
	if s.NewTicker != nil {
		return s.NewTicker(d)
	}
	return NewTicker(d)
}

// Start arms the timer and triggers one cycle immediately. The loop is detached from
// ctx cancellation; only Stop ends it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	d := s.interval()
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.running = true
	s.loopCtx = loopCtx
	s.cancel = cancel
	s.done = make(chan struct{})
	s.st.IsWatching = true
	s.startPending = true
	epoch := s.epoch
	t := s.newTicker(d)
	go s.loop(loopCtx, t, d, epoch, s.done)
	st := s.snapshotLocked()
	s.mu.Unlock()

	slog.Info("watch started", "interval", d)
	s.publishStatus(ctx, st)
	s.trigger(loopCtx, epoch)
	return nil
}

// Stop disarms the timer and waits for the loop to exit, so no tick fires after it
// returns. Counters reset to zero. An in-flight cycle completes but is not counted.
// Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.done
	s.epoch++
	s.startPending = false
	s.st.IsWatching = false
	s.st.CapturesSinceStart = 0
	s.st.TasksDetectedSinceStart = 0
	s.st.LastError = ""
	st := s.snapshotLocked()
	s.mu.Unlock()

	<-done
	slog.Info("watch stopped")
	s.publishStatus(context.Background(), st)
	return nil
}

// Shutdown stops the timer and waits for in-flight cycles until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	_ = s.Stop()
	finished := make(chan struct{})
	go func() {
		s.cycles.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CaptureNow runs one cycle synchronously whether or not the timer is armed.
func (s *Scheduler) CaptureNow(ctx context.Context) (capture.Result, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return capture.Result{}, ErrCycleAlreadyInFlight
	}
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	s.cycles.Add(1)
	defer s.cycles.Done()
	return s.run(ctx, epoch)
}

// Status returns a snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() Status {
	st := s.st
	if st.LastCaptureAt != nil {
		t := *st.LastCaptureAt
		st.LastCaptureAt = &t
	}
	st.IntervalSecs = int(s.interval() / time.Second)
	return st
}

// loop serves one run. epoch is fixed for the run's lifetime, so a tick received
// while Stop is in progress is never counted into a later run.
func (s *Scheduler) loop(ctx context.Context, t Ticker, d time.Duration, epoch uint64, done chan struct{}) {
	defer close(done)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if ctx.Err() != nil {
				return
			}
			s.trigger(ctx, epoch)
			if next := s.interval(); next != d {
				slog.Info("watch interval changed", "from", d, "to", next)
				t.Reset(next)
				d = next
			}
		}
	}
}

// trigger starts a cycle in its own goroutine unless one is already running.
func (s *Scheduler) trigger(ctx context.Context, epoch uint64) {
	if !s.inFlight.CompareAndSwap(false, true) {
		taskotel.RecordSkippedTick(ctx)
		slog.Debug("watch tick skipped, cycle in flight")
		return
	}
	s.cycles.Add(1)
	// Detached so Stop never aborts capture or analysis I/O.
	cctx := context.WithoutCancel(ctx)
	go func() {
		defer s.cycles.Done()
		_, _ = s.run(cctx, epoch)
	}()
}

// run executes one cycle. The caller holds the in-flight flag; run releases it.
func (s *Scheduler) run(ctx context.Context, epoch uint64) (capture.Result, error) {
	s.mu.Lock()
	if epoch == s.epoch {
		s.startPending = false
	}
	s.st.IsCapturing = true
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publishStatus(ctx, st)

	start := time.Now()
	res, err := s.Cycler.RunCycle(ctx)
	taskotel.RecordCycle(ctx, classify(err), time.Since(start))
	if err != nil {
		slog.Warn("capture cycle failed", "err", err)
	} else {
		slog.Info("capture cycle complete", "tasks", len(res.Tasks), "duration", time.Since(start))
	}

	s.mu.Lock()
	s.st.IsCapturing = false
	if epoch == s.epoch {
		now := s.now()
		s.st.LastCaptureAt = &now
		s.st.CapturesSinceStart++
		if err != nil {
			s.st.LastError = err.Error()
		} else {
			s.st.LastError = ""
			s.st.TasksDetectedSinceStart += int64(len(res.Tasks))
		}
	}
	// A run started while this stale cycle held the flag still owes its immediate
	// capture. The flag is released under mu so Start either sees it free or this
	// cycle sees startPending.
	rerun := epoch != s.epoch && s.running && s.startPending
	var nextCtx context.Context
	var nextEpoch uint64
	if rerun {
		s.startPending = false
		nextCtx, nextEpoch = s.loopCtx, s.epoch
	}
	st = s.snapshotLocked()
	s.inFlight.Store(false)
	s.mu.Unlock()

	s.publishStatus(ctx, st)
	s.hmu.RLock()
	hooks := append([]func(context.Context, capture.Result, error){}, s.cycleHooks...)
	s.hmu.RUnlock()
	for _, h := range hooks {
		h(ctx, res, err)
	}
	if rerun {
		s.trigger(nextCtx, nextEpoch)
	}
	return res, err
}

func (s *Scheduler) publishStatus(ctx context.Context, st Status) {
	s.hmu.RLock()
	hooks := append([]func(context.Context, Status){}, s.statusHooks...)
	s.hmu.RUnlock()
	for _, h := range hooks {
		h(ctx, st)
	}
}

func classify(err error) string {
	var ce *capture.CaptureError
	var ae *capture.AnalysisError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, capture.ErrPermissionDenied):
		return "permission_denied"
	case errors.As(err, &ce):
		return "capture_error"
	case errors.As(err, &ae):
		return "analysis_error"
	default:
		return "error"
	}
}
