package httpapi

import (
	"net/http"
	"strconv"

	"github.com/ankittk/taskwatch/internal/store"
	"github.com/ankittk/taskwatch/internal/tasks"
	"github.com/ankittk/taskwatch/pkg/models"
)

func (a *App) registerTaskRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/tasks", a.handleTasks)
	mux.HandleFunc("/tasks/", a.handleTask)
}

// handleTasks serves GET (list all, optional ?status= and ?limit=) and POST (create).
func (a *App) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := models.DefaultTaskListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		list, err := a.Engine.ListAll(r.Context(), r.URL.Query().Get("status"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, toAPITasks(list))
	case http.MethodPost:
		var body models.NewTask
		if !decodeJSON(w, r, &body) {
			return
		}
		t, err := a.Engine.Create(r.Context(), tasks.NewTask{
			Title:        body.Title,
			Description:  body.Description,
			Context:      body.Context,
			Priority:     body.Priority,
			SourceWindow: body.SourceWindow,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, toAPITask(t))
	default:
		methodNotAllowed(w)
	}
}

// handleTask serves /tasks/active, /tasks/{id} and /tasks/{id}/{command}.
func (a *App) handleTask(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/tasks/")
	if len(parts) == 0 || len(parts) > 2 {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	if len(parts) == 1 && parts[0] == "active" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		list, err := a.Engine.ListActive(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, toAPITasks(list))
		return
	}

	id := parts[0]
	if len(parts) == 2 {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		a.handleTaskCommand(w, r, id, parts[1])
		return
	}

	switch r.Method {
	case http.MethodGet:
		t, err := a.Engine.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, toAPITask(t))
	case http.MethodPatch:
		var body struct {
			Status      string  `json:"status"`
			SnoozeHours float64 `json:"snooze_hours,omitempty"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if body.Status == "" {
			writeJSONError(w, http.StatusBadRequest, "status required")
			return
		}
		var t store.Task
		var err error
		if body.Status == models.StatusSnoozed {
			t, err = a.Engine.Snooze(r.Context(), id, body.SnoozeHours)
		} else {
			t, err = a.Engine.SetStatus(r.Context(), id, body.Status)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, toAPITask(t))
	case http.MethodDelete:
		if err := a.Engine.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	default:
		methodNotAllowed(w)
	}
}

func (a *App) handleTaskCommand(w http.ResponseWriter, r *http.Request, id, command string) {
	ctx := r.Context()
	var (
		t   store.Task
		err error
	)
	switch command {
	case "start":
		t, err = a.Engine.Start(ctx, id)
	case "complete":
		t, err = a.Engine.Complete(ctx, id)
	case "dismiss":
		t, err = a.Engine.Dismiss(ctx, id)
	case "snooze":
		var body struct {
			Hours float64 `json:"hours"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		t, err = a.Engine.Snooze(ctx, id, body.Hours)
	default:
		writeJSONError(w, http.StatusNotFound, "unknown command "+command)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, toAPITask(t))
}
