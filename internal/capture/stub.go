package capture

import (
	"context"
	"sync"
)

// DefaultStubText is what a StubCapturer with no configured context reports.
const DefaultStubText = "TODO: review the taskwatch settings\n- [ ] connect a reasoning provider"

// StubCapturer returns a fixed context without touching the screen.
type StubCapturer struct {
	Context Context

	mu     sync.Mutex
	denied bool
}

// SetDenied toggles the simulated permission state.
func (s *StubCapturer) SetDenied(denied bool) {
	s.mu.Lock()
	s.denied = denied
	s.mu.Unlock()
}

func (s *StubCapturer) CheckPermission(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.denied
}

func (s *StubCapturer) RequestPermission(context.Context) error {
	s.SetDenied(false)
	return nil
}

func (s *StubCapturer) CaptureOnce(ctx context.Context) (Context, error) {
	if err := ctx.Err(); err != nil {
		return Context{}, err
	}
	if !s.CheckPermission(ctx) {
		return Context{}, ErrPermissionDenied
	}
	c := s.Context
	if c.Text == "" {
		c.Text = DefaultStubText
		c.AppName = "taskwatch"
		c.WindowTitle = "stub capture"
	}
	return c, nil
}
