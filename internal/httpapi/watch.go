package httpapi

import (
	"net/http"
	"strconv"

	"github.com/ankittk/taskwatch/pkg/models"
)

func (a *App) registerWatchRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeJSON(w, toAPIStatus(a.Scheduler.Status()))
	})
	mux.HandleFunc("/watch/", a.handleWatchCommand)
	mux.HandleFunc("/captures", a.handleCaptures)
}

func (a *App) handleWatchCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	switch r.URL.Path {
	case "/watch/start":
		if err := a.Scheduler.Start(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, toAPIStatus(a.Scheduler.Status()))
	case "/watch/stop":
		if err := a.Scheduler.Stop(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, toAPIStatus(a.Scheduler.Status()))
	case "/watch/capture":
		res, err := a.Scheduler.CaptureNow(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, models.CaptureResult{Capture: captureToAPI(res.Context), Tasks: toAPITasks(res.Tasks)})
	default:
		writeJSONError(w, http.StatusNotFound, "not found")
	}
}

func (a *App) handleCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := models.DefaultCaptureListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	list, err := a.Store.ListCaptures(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]models.CaptureContext, 0, len(list))
	for _, c := range list {
		out = append(out, storedCaptureToAPI(c))
	}
	writeJSON(w, out)
}
