// Package notify tells the user about newly detected tasks. Delivery is best effort:
// failures are logged and never reach the capture cycle.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	taskotel "github.com/ankittk/taskwatch/internal/otel"
	"github.com/ankittk/taskwatch/internal/store"
)

// Permission is a sink's delivery permission.
type Permission int

const (
	Undetermined Permission = iota
	Granted
	Denied
)

func (p Permission) String() string {
	switch p {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "undetermined"
	}
}

// Message is one consolidated notification.
type Message struct {
	Title string
	Body  string
	Tasks []store.Task
}

// NewMessage summarizes created tasks. A single task is named by its title.
func NewMessage(created []store.Task) Message {
	if len(created) == 1 {
		return Message{Title: "New Task Detected", Body: created[0].Title, Tasks: created}
	}
	return Message{
		Title: "Tasks Detected",
		Body:  fmt.Sprintf("%d new tasks detected from screen capture", len(created)),
		Tasks: created,
	}
}

// Sink delivers messages to one destination.
type Sink interface {
	Name() string
	Permission(ctx context.Context) Permission
	// RequestPermission asks for permission and reports whether it was granted.
	RequestPermission(ctx context.Context) (bool, error)
	Send(ctx context.Context, m Message) error
}

// Dispatcher fans one message per batch out to every permitted sink. Enabled is read
// on every call, so toggling notifications applies to the next batch.
type Dispatcher struct {
	Enabled func() bool
	Sinks   []Sink
	// Timeout bounds each sink's delivery; zero means 10s.
	Timeout time.Duration

	mu        sync.Mutex
	requested map[string]bool
	pending   sync.WaitGroup
}

// Go runs Dispatch on its own goroutine, detached from ctx cancellation, so slow sinks
// never hold up the caller.
func (d *Dispatcher) Go(ctx context.Context, created []store.Task) {
	if len(created) == 0 {
		return
	}
	dctx := context.WithoutCancel(ctx)
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		d.Dispatch(dctx, created)
	}()
}

// Wait blocks until every dispatch started by Go has returned.
func (d *Dispatcher) Wait() { d.pending.Wait() }

// Dispatch notifies about created tasks. It is a no-op when disabled or empty.
func (d *Dispatcher) Dispatch(ctx context.Context, created []store.Task) {
	if len(created) == 0 || d.Enabled == nil || !d.Enabled() {
		return
	}
	m := NewMessage(created)
	for _, s := range d.Sinks {
		if !d.permitted(ctx, s) {
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, d.timeout())
		err := s.Send(sctx, m)
		cancel()
		taskotel.RecordNotification(ctx, s.Name(), err)
		if err != nil {
			slog.Warn("notification failed", "sink", s.Name(), "err", err)
		}
	}
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return 10 * time.Second
}

// permitted requests permission at most once per sink for the life of the dispatcher.
func (d *Dispatcher) permitted(ctx context.Context, s Sink) bool {
	switch s.Permission(ctx) {
	case Granted:
		return true
	case Denied:
		return false
	}
	d.mu.Lock()
	if d.requested == nil {
		d.requested = map[string]bool{}
	}
	already := d.requested[s.Name()]
	d.requested[s.Name()] = true
	d.mu.Unlock()
	if already {
		return false
	}
	ok, err := s.RequestPermission(ctx)
	if err != nil {
		slog.Warn("notification permission request failed", "sink", s.Name(), "err", err)
		return false
	}
	return ok
}

// Permissions reports every sink's current permission by name.
func (d *Dispatcher) Permissions(ctx context.Context) map[string]string {
	out := make(map[string]string, len(d.Sinks))
	for _, s := range d.Sinks {
		out[s.Name()] = s.Permission(ctx).String()
	}
	return out
}

// Close waits for pending dispatches and releases sinks that hold connections.
func (d *Dispatcher) Close() error {
	d.Wait()
	for _, s := range d.Sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
