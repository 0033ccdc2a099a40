// Package tasks implements the task lifecycle: the status machine, pull-based priority
// decay, the active and full views, and merging detected tasks from capture cycles.
package tasks

import (
	"errors"
	"fmt"

	"github.com/ankittk/taskwatch/pkg/models"
)

var (
	// ErrNotFound is returned for commands on a task id that does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a command is not allowed from the task's
	// effective status. The task is left untouched.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidInput covers malformed command arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// transitions lists the commanded moves. snoozed -> pending is not here: it happens
// automatically when snoozed_until passes.
var transitions = map[string]map[string]bool{
	models.StatusPending: {
		models.StatusInProgress: true,
		models.StatusSnoozed:    true,
		models.StatusCompleted:  true,
		models.StatusDismissed:  true,
	},
	models.StatusInProgress: {
		models.StatusSnoozed:   true,
		models.StatusCompleted: true,
		models.StatusDismissed: true,
	},
}

// CanTransition reports whether a command may move a task from one effective status to another.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// IsTerminal reports whether no further commands (other than delete) apply.
func IsTerminal(status string) bool {
	return status == models.StatusCompleted || status == models.StatusDismissed
}

func invalidTransition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
