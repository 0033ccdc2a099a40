// Package capture runs one observe-analyze-merge cycle and defines the contracts of the
// capture and reasoning collaborators it drives.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrPermissionDenied means the user has not allowed screen capture. It is user-actionable,
// not transient.
var ErrPermissionDenied = errors.New("screen capture permission denied")

// CaptureError wraps a failed or timed-out capture call.
type CaptureError struct{ Err error }

func (e *CaptureError) Error() string { return "capture failed: " + e.Err.Error() }
func (e *CaptureError) Unwrap() error { return e.Err }

// AnalysisError wraps a failed, timed-out or unparseable reasoning call.
type AnalysisError struct{ Err error }

func (e *AnalysisError) Error() string { return "analysis failed: " + e.Err.Error() }
func (e *AnalysisError) Unwrap() error { return e.Err }

// Context is one observed screen state.
type Context struct {
	ID          string
	Text        string
	WindowTitle string
	AppName     string
	Width       int
	Height      int
	CapturedAt  time.Time
}

// FormatForLLM renders the context as the prompt body sent to the reasoning provider.
func (c Context) FormatForLLM() string {
	var parts []string
	if c.AppName != "" {
		parts = append(parts, "Active Application: "+c.AppName)
	}
	if c.WindowTitle != "" {
		parts = append(parts, "Window Title: "+c.WindowTitle)
	}
	if strings.TrimSpace(c.Text) != "" {
		parts = append(parts, "Screen Content:\n"+c.Text)
	}
	return strings.Join(parts, "\n\n")
}

// DetectedTask is a candidate task returned by the reasoning provider.
type DetectedTask struct {
	Title       string
	Description string
	Priority    float64
}

func (d DetectedTask) String() string {
	return fmt.Sprintf("%q (%.2f)", d.Title, d.Priority)
}

// Capturer produces screen contexts.
type Capturer interface {
	CheckPermission(ctx context.Context) bool
	RequestPermission(ctx context.Context) error
	CaptureOnce(ctx context.Context) (Context, error)
}

// Analyzer turns a screen context into candidate tasks.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, c Context) ([]DetectedTask, error)
	HealthCheck(ctx context.Context) error
}
