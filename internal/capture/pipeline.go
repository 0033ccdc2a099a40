package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ankittk/taskwatch/internal/config"
	taskotel "github.com/ankittk/taskwatch/internal/otel"
	"github.com/ankittk/taskwatch/internal/store"
	"github.com/google/uuid"
)

// Merger commits detected tasks. It must be all-or-nothing.
type Merger interface {
	Merge(ctx context.Context, c Context, detected []DetectedTask) ([]store.Task, error)
}

// Pruner deletes capture contexts older than a cutoff.
type Pruner interface {
	PruneCaptures(ctx context.Context, before time.Time) (int64, error)
}

// Result is the outcome of one successful cycle.
type Result struct {
	Context Context
	Tasks   []store.Task
}

// Pipeline runs capture -> analyze -> merge. Settings are read once per cycle, so
// configuration changes apply from the next cycle on.
type Pipeline struct {
	Capturer  Capturer
	Analyzers func(config.Settings) (Analyzer, error)
	Merger    Merger
	Settings  func() config.Settings
	Pruner    Pruner // optional
	Now       func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// RunCycle performs one cycle. A failure before the merge leaves no state behind.
func (p *Pipeline) RunCycle(ctx context.Context) (Result, error) {
	s := p.Settings()
	if !p.Capturer.CheckPermission(ctx) {
		return Result{}, ErrPermissionDenied
	}

	c, err := p.capture(ctx, s.CaptureTimeout())
	if err != nil {
		return Result{}, err
	}

	detected, err := p.analyze(ctx, s, c)
	if err != nil {
		return Result{Context: c}, err
	}

	tasks, err := p.Merger.Merge(ctx, c, detected)
	if err != nil {
		return Result{Context: c}, err
	}
	taskotel.RecordTasksDetected(ctx, len(tasks))
	p.prune(ctx, s)
	return Result{Context: c, Tasks: tasks}, nil
}

func (p *Pipeline) capture(ctx context.Context, timeout time.Duration) (Context, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	c, err := p.Capturer.CaptureOnce(cctx)
	taskotel.RecordStage(ctx, "capture", time.Since(start), err)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return Context{}, err
		}
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		return Context{}, &CaptureError{Err: err}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CapturedAt.IsZero() {
		c.CapturedAt = p.now()
	}
	return c, nil
}

func (p *Pipeline) analyze(ctx context.Context, s config.Settings, c Context) ([]DetectedTask, error) {
	analyzer, err := p.Analyzers(s)
	if err != nil {
		return nil, &AnalysisError{Err: err}
	}
	actx, cancel := context.WithTimeout(ctx, s.AnalysisTimeout())
	defer cancel()
	start := time.Now()
	detected, err := analyzer.Analyze(actx, c)
	taskotel.RecordStage(ctx, "analysis", time.Since(start), err)
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", s.AnalysisTimeout(), err)
		}
		return nil, &AnalysisError{Err: fmt.Errorf("%s: %w", analyzer.Name(), err)}
	}
	return detected, nil
}

func (p *Pipeline) prune(ctx context.Context, s config.Settings) {
	if p.Pruner == nil || s.ContextRetention() <= 0 {
		return
	}
	n, err := p.Pruner.PruneCaptures(ctx, p.now().Add(-s.ContextRetention()))
	if err != nil {
		slog.Warn("prune capture contexts failed", "err", err)
		return
	}
	if n > 0 {
		slog.Debug("pruned capture contexts", "count", n)
	}
}
