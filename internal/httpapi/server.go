package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ankittk/taskwatch/internal/cache"
	"github.com/ankittk/taskwatch/internal/capture"
	"github.com/ankittk/taskwatch/internal/config"
	"github.com/ankittk/taskwatch/internal/credentials"
	"github.com/ankittk/taskwatch/internal/notify"
	"github.com/ankittk/taskwatch/internal/reasoning"
	"github.com/ankittk/taskwatch/internal/store"
	"github.com/ankittk/taskwatch/internal/store/postgres"
	"github.com/ankittk/taskwatch/internal/tasks"
	"github.com/ankittk/taskwatch/internal/watch"
	"github.com/ankittk/taskwatch/pkg/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// limitBody wraps r.Body with http.MaxBytesReader so handlers cannot read more than maxBytes.
func limitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

// bodyLimitMiddleware limits request body size for POST, PUT, PATCH.
func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			limitBody(w, r, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware sets CORS headers for dev mode (a dashboard served from another origin).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServerOptions configures the HTTP server and the components behind it.
type ServerOptions struct {
	Home           string
	Addr           string
	Dev            bool
	APIKey         string       // if set, require X-API-Key header or query api_key
	DBDriver       string       // "sqlite" (default) or "postgres"
	DBURL          string       // for postgres: connection string (or set DATABASE_URL env)
	DBPath         string       // for sqlite: database file; default home/protected/db.sqlite
	RedisURL       string       // if set, the active-task view is cached in Redis instead of memory
	MetricsHandler http.Handler // if set, used for /metrics (e.g. OTel Prometheus handler)
	UseOtelHTTP    bool         // if true, wrap handler with otelhttp for request metrics

	// Overrides, mainly for tests. Nil means build from settings.
	Capturer    capture.Capturer
	Analyzers   func(config.Settings) (capture.Analyzer, error)
	Credentials credentials.Store
	Sinks       []notify.Sink
	Now         func() time.Time
}

// App holds the HTTP server and every long-lived component it serves.
type App struct {
	Server      *http.Server
	Hub         *SSEHub
	Store       store.Store
	Cache       cache.Cache
	Settings    *config.Source
	Credentials credentials.Store
	Engine      *tasks.Engine
	Capturer    capture.Capturer
	Pipeline    *capture.Pipeline
	Scheduler   *watch.Scheduler
	Notifier    *notify.Dispatcher
	Home        string
}

// NewApp loads settings, opens storage and wires the engine, pipeline, scheduler and
// notifier to the HTTP routes and SSE hub.
func NewApp(opts ServerOptions) (*App, error) {
	src, err := config.LoadSource(opts.Home)
	if err != nil {
		return nil, err
	}

	var st store.Store
	if opts.DBDriver == "postgres" {
		st, err = postgres.Open(opts.DBURL)
	} else {
		st, err = store.OpenWithOptions(store.OpenOptions{Home: opts.Home, Path: opts.DBPath})
	}
	if err != nil {
		return nil, err
	}

	var c cache.Cache = cache.NewMemory()
	if opts.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := cache.OpenRedis(ctx, opts.RedisURL, "taskwatch:")
		cancel()
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		c = rc
	}

	creds := opts.Credentials
	if creds == nil {
		creds = credentials.NewFileStore(config.ProtectedDir(opts.Home))
	}
	analyzers := opts.Analyzers
	if analyzers == nil {
		analyzers = func(s config.Settings) (capture.Analyzer, error) {
			return reasoning.New(s.LLM, creds)
		}
	}
	capturer := opts.Capturer
	if capturer == nil {
		capturer = settingsCapturer{src: src}
	}

	engine := &tasks.Engine{
		Store:     st,
		Cache:     c,
		DecayRate: func() float64 { return src.Snapshot().PriorityDecayRate },
		Now:       opts.Now,
	}
	pipeline := &capture.Pipeline{
		Capturer:  capturer,
		Analyzers: analyzers,
		Merger:    engine,
		Settings:  src.Snapshot,
		Pruner:    st,
		Now:       opts.Now,
	}
	sched := &watch.Scheduler{
		Cycler:   pipeline,
		Interval: func() time.Duration { return src.Snapshot().CaptureInterval() },
		Now:      opts.Now,
	}
	sinks := opts.Sinks
	if sinks == nil {
		sinks = defaultSinks(src)
	}
	notifier := &notify.Dispatcher{
		Enabled: func() bool { return src.Snapshot().NotificationsEnabled },
		Sinks:   sinks,
	}

	app := &App{
		Hub:         NewSSEHub(),
		Store:       st,
		Cache:       c,
		Settings:    src,
		Credentials: creds,
		Engine:      engine,
		Capturer:    capturer,
		Pipeline:    pipeline,
		Scheduler:   sched,
		Notifier:    notifier,
		Home:        opts.Home,
	}
	app.wireHooks()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})
	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	} else {
		mux.HandleFunc("/metrics", app.handlePlainMetrics)
	}
	mux.HandleFunc("/stream", app.Hub.Handler())
	app.registerTaskRoutes(mux)
	app.registerWatchRoutes(mux)
	app.registerSettingsRoutes(mux)

	var handler http.Handler = mux
	handler = bodyLimitMiddleware(models.DefaultMaxRequestBodyBytes, handler)
	if opts.Dev {
		handler = corsMiddleware(handler)
	}
	if opts.APIKey != "" {
		handler = apiKeyMiddleware(opts.APIKey, handler)
	}
	handler = requestLogMiddleware(handler)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "taskwatch")
	}
	app.Server = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Capture-now runs a full cycle inside the request.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return app, nil
}

func newCapturer(c config.CaptureConfig) capture.Capturer {
	if c.Mode == "stub" {
		return &capture.StubCapturer{}
	}
	return capture.CommandCapturer{Command: c.Command, Args: c.Args}
}

// settingsCapturer resolves the configured capturer on every call, so capture
// settings apply from the next cycle.
type settingsCapturer struct{ src *config.Source }

func (c settingsCapturer) current() capture.Capturer { return newCapturer(c.src.Snapshot().Capture) }

func (c settingsCapturer) CheckPermission(ctx context.Context) bool {
	return c.current().CheckPermission(ctx)
}

func (c settingsCapturer) RequestPermission(ctx context.Context) error {
	return c.current().RequestPermission(ctx)
}

func (c settingsCapturer) CaptureOnce(ctx context.Context) (capture.Context, error) {
	return c.current().CaptureOnce(ctx)
}

func defaultSinks(src *config.Source) []notify.Sink {
	return []notify.Sink{
		&notify.Desktop{Enabled: func() bool { return src.Snapshot().Notify.Desktop }},
		notify.Slack{WebhookURL: func() string { return src.Snapshot().Notify.SlackWebhookURL }},
		&notify.AMQP{
			URL:      func() string { return src.Snapshot().Notify.AMQPURL },
			Exchange: func() string { return src.Snapshot().Notify.AMQPExchange },
		},
	}
}

// wireHooks connects component events: merged tasks go to the notifier, and every
// change is published on the SSE hub.
func (a *App) wireHooks() {
	a.Engine.OnChange(func(ctx context.Context, c tasks.Change) {
		ev := map[string]any{"type": "task_update", "kind": c.Kind}
		if c.Kind == tasks.ChangeDeleted {
			ids := make([]string, 0, len(c.Tasks))
			for _, t := range c.Tasks {
				ids = append(ids, t.ID)
			}
			ev["ids"] = ids
		} else {
			ev["tasks"] = toAPITasks(c.Tasks)
		}
		a.Hub.PublishJSON(ev)
		if c.Kind == tasks.ChangeMerged {
			a.Notifier.Go(ctx, c.Tasks)
		}
	})
	a.Scheduler.OnStatus(func(_ context.Context, st watch.Status) {
		a.Hub.PublishJSON(map[string]any{"type": "watch_status", "status": toAPIStatus(st)})
	})
	a.Scheduler.OnCycle(func(ctx context.Context, _ capture.Result, err error) {
		if err != nil {
			return
		}
		a.Engine.InvalidateActive(ctx)
		a.Hub.PublishJSON(map[string]any{"type": "tasks_invalidated"})
	})
	a.Settings.OnChange(func(s config.Settings) {
		a.Hub.PublishJSON(map[string]any{"type": "settings_update", "settings": toAPISettings(s)})
	})
}

// Close stops the scheduler, waits for an in-flight cycle and releases storage.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := a.Notifier.Close(); err != nil {
		errs = append(errs, fmt.Errorf("notifier: %w", err))
	}
	if err := a.Cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	return errors.Join(errs...)
}

// handlePlainMetrics is the fallback /metrics when no OTel handler is configured.
func (a *App) handlePlainMetrics(w http.ResponseWriter, r *http.Request) {
	counts, err := a.Engine.CountByStatus(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "# TYPE taskwatch_tasks gauge\n")
	for _, s := range []string{models.StatusPending, models.StatusInProgress, models.StatusSnoozed, models.StatusCompleted, models.StatusDismissed} {
		_, _ = fmt.Fprintf(w, "taskwatch_tasks{status=%q} %d\n", s, counts[s])
	}
	st := a.Scheduler.Status()
	_, _ = fmt.Fprintf(w, "# TYPE taskwatch_captures_since_start gauge\ntaskwatch_captures_since_start %d\n", st.CapturesSinceStart)
}

// responseRecorder captures status code for logging and forwards Flusher if supported.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func apiKeyMiddleware(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key != apiKey {
			writeJSONError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		slog.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends a JSON body {"error": "message"} with the given status code.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var ce *capture.CaptureError
	var ae *capture.AnalysisError
	switch {
	case errors.Is(err, tasks.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tasks.ErrInvalidTransition),
		errors.Is(err, watch.ErrAlreadyRunning),
		errors.Is(err, watch.ErrCycleAlreadyInFlight):
		return http.StatusConflict
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.As(err, &ce), errors.As(err, &ae):
		return http.StatusBadGateway
	case errors.Is(err, tasks.ErrInvalidInput),
		errors.Is(err, config.ErrOutOfRange),
		errors.Is(err, config.ErrInvalidSettings):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// pathParts splits the path after prefix into non-empty segments.
func pathParts(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}
