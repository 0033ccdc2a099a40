// Package store defines the persistence interface and shared models for tasks and capture contexts.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// Task is a persisted work item. CurrentPriority is a snapshot taken at the last
// mutation; readers derive the live value from InitialPriority and the decay
// bookkeeping (ActiveSeconds, DecayAnchor).
type Task struct {
	ID              string
	Title           string
	Description     string
	Context         string
	InitialPriority float64
	CurrentPriority float64
	Status          string
	SourceWindow    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SnoozedUntil    *time.Time
	// ActiveSeconds is active (non-snoozed) time accumulated before DecayAnchor.
	ActiveSeconds float64
	// DecayAnchor is where the current active segment started.
	DecayAnchor time.Time
}

// CaptureContext is one observed screen state.
type CaptureContext struct {
	ID          string
	Text        string
	WindowTitle string
	AppName     string
	Width       int
	Height      int
	CapturedAt  time.Time
}

// TaskFilter narrows ListTasks. Zero value lists everything in insertion order.
type TaskFilter struct {
	Statuses   []string
	ByPriority bool // order by current_priority desc, created_at asc
	Limit      int
}
