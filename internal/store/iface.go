package store

import (
	"context"
	"time"
)

// Store is the persistence interface for tasks and capture contexts.
// Implementations: the SQLite store in this package and *postgres.Store (PostgreSQL).
type Store interface {
	// Tasks
	InsertTasks(ctx context.Context, tasks []Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	UpdateTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, id string) (bool, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]Task, error)
	CountTasksByStatus(ctx context.Context) (map[string]int64, error)

	// Capture contexts. SaveCapture stores the context and its tasks in one transaction.
	SaveCapture(ctx context.Context, c CaptureContext, tasks []Task) error
	ListCaptures(ctx context.Context, limit int) ([]CaptureContext, error)
	PruneCaptures(ctx context.Context, before time.Time) (int64, error)

	// Lifecycle
	Close() error
}
