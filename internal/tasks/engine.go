package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ankittk/taskwatch/internal/cache"
	"github.com/ankittk/taskwatch/internal/capture"
	taskotel "github.com/ankittk/taskwatch/internal/otel"
	"github.com/ankittk/taskwatch/internal/store"
	"github.com/ankittk/taskwatch/pkg/models"
	"github.com/google/uuid"
)

// Change kinds delivered to hooks.
const (
	ChangeCreated = "created"
	ChangeMerged  = "merged"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// Change describes one committed mutation. Tasks carry effective values at commit time;
// for ChangeDeleted only IDs are meaningful.
type Change struct {
	Kind  string
	Tasks []store.Task
}

const (
	activeCacheKey = "tasks:active"
	activeCacheTTL = 15 * time.Second
	maxContextLen  = 4000
	maxSnoozeHours = 24 * 365
)

var activeCandidates = []string{models.StatusPending, models.StatusInProgress, models.StatusSnoozed}

// NewTask is a manually created task.
type NewTask struct {
	Title        string
	Description  string
	Context      string
	Priority     float64
	SourceWindow *string
}

// Engine owns every task mutation. Commands are serialized so read-modify-write of a
// task never interleaves; reads go straight to the store and recompute decay.
// Cache is optional. DecayRate returns priority units per active hour.
type Engine struct {
	Store     store.Store
	Cache     cache.Cache
	DecayRate func() float64
	Now       func() time.Time
	NewID     func() string

	mu    sync.Mutex
	hmu   sync.RWMutex
	hooks []func(context.Context, Change)

	// cmu orders cache fills against invalidations; gen counts invalidations.
	cmu sync.Mutex
	gen uint64
}

// OnChange registers fn to run after each committed mutation.
func (e *Engine) OnChange(fn func(context.Context, Change)) {
	e.hmu.Lock()
	e.hooks = append(e.hooks, fn)
	e.hmu.Unlock()
}

func (e *Engine) emit(ctx context.Context, c Change) {
	e.hmu.RLock()
	hooks := append([]func(context.Context, Change){}, e.hooks...)
	e.hmu.RUnlock()
	for _, h := range hooks {
		h(ctx, c)
	}
}

// now is truncated to the store's timestamp precision so returned values match what
// a later read yields.
func (e *Engine) now() time.Time {
	t := time.Now()
	if e.Now != nil {
		t = e.Now()
	}
	return t.UTC().Truncate(time.Millisecond)
}

func (e *Engine) rate() float64 {
	if e.DecayRate != nil {
		return e.DecayRate()
	}
	return 0
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// InvalidateActive drops the cached active-view rows.
func (e *Engine) InvalidateActive(ctx context.Context) {
	if e.Cache == nil {
		return
	}
	e.cmu.Lock()
	defer e.cmu.Unlock()
	e.gen++
	if err := e.Cache.Delete(ctx, activeCacheKey); err != nil {
		slog.Warn("active view cache invalidate failed", "err", err)
	}
}

func (e *Engine) newTask(now time.Time, title, description, ctxText string, priority float64, window *string) store.Task {
	p := Clamp01(priority)
	return store.Task{
		ID:              e.newID(),
		Title:           strings.TrimSpace(title),
		Description:     description,
		Context:         ctxText,
		InitialPriority: p,
		CurrentPriority: p,
		Status:          models.StatusPending,
		SourceWindow:    window,
		CreatedAt:       now,
		UpdatedAt:       now,
		DecayAnchor:     now,
	}
}

// Create adds one pending task.
func (e *Engine) Create(ctx context.Context, in NewTask) (_ store.Task, err error) {
	defer func() { taskotel.RecordTaskCommand(ctx, "create", err) }()
	if strings.TrimSpace(in.Title) == "" {
		return store.Task{}, fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	e.mu.Lock()
	t := e.newTask(e.now(), in.Title, in.Description, in.Context, in.Priority, in.SourceWindow)
	err = e.Store.InsertTasks(ctx, []store.Task{t})
	if err == nil {
		e.InvalidateActive(ctx)
	}
	e.mu.Unlock()
	if err != nil {
		return store.Task{}, err
	}
	e.emit(ctx, Change{Kind: ChangeCreated, Tasks: []store.Task{t}})
	return t, nil
}

// Merge stores the capture context and one pending task per detected candidate in a
// single transaction. No deduplication is performed. On error nothing is stored.
func (e *Engine) Merge(ctx context.Context, c capture.Context, detected []capture.DetectedTask) ([]store.Task, error) {
	for _, d := range detected {
		if strings.TrimSpace(d.Title) == "" {
			return nil, fmt.Errorf("%w: detected task without title", ErrInvalidInput)
		}
	}
	e.mu.Lock()
	now := e.now()
	ctxText := truncateRunes(c.FormatForLLM(), maxContextLen)
	var window *string
	if c.WindowTitle != "" {
		w := c.WindowTitle
		window = &w
	}
	created := make([]store.Task, 0, len(detected))
	for _, d := range detected {
		created = append(created, e.newTask(now, d.Title, d.Description, ctxText, d.Priority, window))
	}
	if c.ID == "" {
		c.ID = e.newID()
	}
	if c.CapturedAt.IsZero() {
		c.CapturedAt = now
	}
	err := e.Store.SaveCapture(ctx, store.CaptureContext{
		ID: c.ID, Text: c.Text, WindowTitle: c.WindowTitle, AppName: c.AppName,
		Width: c.Width, Height: c.Height, CapturedAt: c.CapturedAt,
	}, created)
	if err == nil && len(created) > 0 {
		e.InvalidateActive(ctx)
	}
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("merge detected tasks: %w", err)
	}
	if len(created) > 0 {
		e.emit(ctx, Change{Kind: ChangeMerged, Tasks: created})
	}
	return created, nil
}

// Get returns the task as a reader sees it now.
func (e *Engine) Get(ctx context.Context, id string) (store.Task, error) {
	t, err := e.Store.GetTask(ctx, id)
	if err != nil {
		return store.Task{}, err
	}
	if t == nil {
		return store.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return effective(*t, e.rate(), e.now()), nil
}

// mutate loads id, applies an expired snooze, checks from -> target, runs apply and
// persists. A rejected transition writes nothing.
func (e *Engine) mutate(ctx context.Context, id, target string, apply func(t *store.Task, now time.Time)) (_ store.Task, err error) {
	defer func() { taskotel.RecordTaskCommand(ctx, target, err) }()
	e.mu.Lock()
	now := e.now()
	cur, err := e.Store.GetTask(ctx, id)
	if err != nil {
		e.mu.Unlock()
		return store.Task{}, err
	}
	if cur == nil {
		e.mu.Unlock()
		return store.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	t := *cur
	materialize(&t, now)
	if !CanTransition(t.Status, target) {
		e.mu.Unlock()
		return effective(*cur, e.rate(), now), invalidTransition(t.Status, target)
	}
	apply(&t, now)
	t.Status = target
	t.UpdatedAt = now
	t.CurrentPriority = Priority(t, e.rate(), now)
	if err := e.Store.UpdateTask(ctx, t); err != nil {
		e.mu.Unlock()
		return store.Task{}, err
	}
	e.InvalidateActive(ctx)
	e.mu.Unlock()

	out := effective(t, e.rate(), now)
	e.emit(ctx, Change{Kind: ChangeUpdated, Tasks: []store.Task{out}})
	return out, nil
}

// Start moves a pending task to in_progress.
func (e *Engine) Start(ctx context.Context, id string) (store.Task, error) {
	return e.mutate(ctx, id, models.StatusInProgress, func(*store.Task, time.Time) {})
}

// Snooze hides an open task for hours; its priority is frozen until it wakes.
func (e *Engine) Snooze(ctx context.Context, id string, hours float64) (store.Task, error) {
	if hours <= 0 {
		return store.Task{}, fmt.Errorf("%w: snooze hours must be positive", ErrInvalidInput)
	}
	if hours > maxSnoozeHours {
		return store.Task{}, fmt.Errorf("%w: snooze hours must be at most %d", ErrInvalidInput, maxSnoozeHours)
	}
	d := time.Duration(hours * float64(time.Hour))
	return e.mutate(ctx, id, models.StatusSnoozed, func(t *store.Task, now time.Time) {
		freeze(t, now)
		until := now.Add(d)
		t.SnoozedUntil = &until
	})
}

// Complete closes an open task.
func (e *Engine) Complete(ctx context.Context, id string) (store.Task, error) {
	return e.mutate(ctx, id, models.StatusCompleted, freeze)
}

// Dismiss closes an open task as not needed.
func (e *Engine) Dismiss(ctx context.Context, id string) (store.Task, error) {
	return e.mutate(ctx, id, models.StatusDismissed, freeze)
}

// SetStatus dispatches to the command for status. Snoozing needs a duration and
// goes through Snooze.
func (e *Engine) SetStatus(ctx context.Context, id, status string) (store.Task, error) {
	switch status {
	case models.StatusInProgress:
		return e.Start(ctx, id)
	case models.StatusCompleted:
		return e.Complete(ctx, id)
	case models.StatusDismissed:
		return e.Dismiss(ctx, id)
	case models.StatusSnoozed:
		return store.Task{}, fmt.Errorf("%w: use snooze with a duration", ErrInvalidInput)
	case models.StatusPending:
		cur, err := e.Get(ctx, id)
		if err != nil {
			return store.Task{}, err
		}
		return cur, invalidTransition(cur.Status, status)
	}
	return store.Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
}

// Delete removes a task in any status.
func (e *Engine) Delete(ctx context.Context, id string) (err error) {
	defer func() { taskotel.RecordTaskCommand(ctx, "delete", err) }()
	e.mu.Lock()
	ok, err := e.Store.DeleteTask(ctx, id)
	if err == nil && ok {
		e.InvalidateActive(ctx)
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.emit(ctx, Change{Kind: ChangeDeleted, Tasks: []store.Task{{ID: id}}})
	return nil
}

func (e *Engine) activeRows(ctx context.Context) ([]store.Task, error) {
	if e.Cache != nil {
		if b, ok, err := e.Cache.Get(ctx, activeCacheKey); err == nil && ok {
			var rows []store.Task
			if err := json.Unmarshal(b, &rows); err == nil {
				return rows, nil
			}
		} else if err != nil {
			slog.Warn("active view cache read failed", "err", err)
		}
	}
	e.cmu.Lock()
	gen := e.gen
	e.cmu.Unlock()
	rows, err := e.Store.ListTasks(ctx, store.TaskFilter{Statuses: activeCandidates, ByPriority: true})
	if err != nil {
		return nil, err
	}
	if e.Cache != nil {
		e.fillActive(ctx, gen, rows)
	}
	return rows, nil
}

// fillActive caches rows read at generation gen. Rows read before a commit that has
// since invalidated the view are not cached.
func (e *Engine) fillActive(ctx context.Context, gen uint64, rows []store.Task) {
	b, err := json.Marshal(rows)
	if err != nil {
		return
	}
	e.cmu.Lock()
	defer e.cmu.Unlock()
	if gen != e.gen {
		return
	}
	if err := e.Cache.Set(ctx, activeCacheKey, b, activeCacheTTL); err != nil {
		slog.Warn("active view cache write failed", "err", err)
	}
}

// ListActive returns pending, in_progress and woken snoozed tasks ordered by current
// priority descending; ties go to the older task.
func (e *Engine) ListActive(ctx context.Context) ([]store.Task, error) {
	rows, err := e.activeRows(ctx)
	if err != nil {
		return nil, err
	}
	now, rate := e.now(), e.rate()
	out := make([]store.Task, 0, len(rows))
	for _, r := range rows {
		v := effective(r, rate, now)
		if v.Status == models.StatusSnoozed {
			continue
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CurrentPriority != out[j].CurrentPriority {
			return out[i].CurrentPriority > out[j].CurrentPriority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListAll returns every task in insertion order. A non-empty status filters on the
// effective status.
func (e *Engine) ListAll(ctx context.Context, status string, limit int) ([]store.Task, error) {
	if status != "" && !models.ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	var f store.TaskFilter
	switch status {
	case models.StatusPending:
		// Expired snoozes read as pending.
		f.Statuses = []string{models.StatusPending, models.StatusSnoozed}
	case models.StatusSnoozed:
		f.Statuses = []string{status}
	case "":
		f.Limit = limit
	default:
		// Stored and effective status agree, so the store can apply the limit.
		f.Statuses = []string{status}
		f.Limit = limit
	}
	rows, err := e.Store.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	now, rate := e.now(), e.rate()
	out := make([]store.Task, 0, len(rows))
	for _, r := range rows {
		v := effective(r, rate, now)
		if status != "" && v.Status != status {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CountByStatus returns effective task counts per status.
func (e *Engine) CountByStatus(ctx context.Context) (map[string]int64, error) {
	counts, err := e.Store.CountTasksByStatus(ctx)
	if err != nil {
		return nil, err
	}
	if counts[models.StatusSnoozed] == 0 {
		return counts, nil
	}
	snoozed, err := e.Store.ListTasks(ctx, store.TaskFilter{Statuses: []string{models.StatusSnoozed}})
	if err != nil {
		return nil, err
	}
	now := e.now()
	for _, t := range snoozed {
		if EffectiveStatus(t, now) == models.StatusPending {
			counts[models.StatusSnoozed]--
			counts[models.StatusPending]++
		}
	}
	return counts, nil
}
