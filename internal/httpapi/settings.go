package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ankittk/taskwatch/internal/config"
	"github.com/ankittk/taskwatch/internal/credentials"
	"github.com/ankittk/taskwatch/internal/reasoning"
	"github.com/ankittk/taskwatch/pkg/models"
)

const healthCheckTimeout = 10 * time.Second

func (a *App) registerSettingsRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/settings", a.handleSettings)
	mux.HandleFunc("/settings/interval", a.handleInterval)
	mux.HandleFunc("/settings/notifications", a.handleNotifications)
	mux.HandleFunc("/provider", a.handleProvider)
	mux.HandleFunc("/provider/health", a.handleProviderHealth)
	mux.HandleFunc("/permissions/capture", a.handleCapturePermission)
	mux.HandleFunc("/permissions/capture/request", a.handleCapturePermissionRequest)
	mux.HandleFunc("/permissions/notifications", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeJSON(w, a.Notifier.Permissions(r.Context()))
	})
	mux.HandleFunc("/credentials/", a.handleCredentials)
}

func (a *App) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, toAPISettings(a.Settings.Snapshot()))
	case http.MethodPut:
		var body models.Settings
		if !decodeJSON(w, r, &body) {
			return
		}
		s, err := a.Settings.Save(fromAPISettings(body))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, toAPISettings(s))
	default:
		methodNotAllowed(w)
	}
}

func (a *App) handleInterval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var body struct {
		Secs int `json:"secs"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	s, err := a.Settings.UpdateCaptureInterval(body.Secs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, toAPISettings(s))
}

func (a *App) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	s, err := a.Settings.ToggleNotifications(body.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, toAPISettings(s))
}

func (a *App) handleProvider(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, toAPIProvider(a.Settings.ProviderConfig()))
	case http.MethodPut:
		var body models.ProviderConfig
		if !decodeJSON(w, r, &body) {
			return
		}
		s, err := a.Settings.SetProviderConfig(fromAPIProvider(body))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, toAPIProvider(s.LLM))
	default:
		methodNotAllowed(w)
	}
}

// handleProviderHealth builds the configured analyzer and probes it. An analyzer that
// cannot be built (disabled, missing key) is reported unhealthy, not as an error.
func (a *App) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s := a.Settings.Snapshot()
	h := models.ProviderHealth{
		Provider:  s.LLM.Provider,
		HasAPIKey: a.Credentials.Has(s.LLM.Provider),
		CLITools:  reasoning.DetectCLITools(),
	}
	analyzer, err := a.Pipeline.Analyzers(s)
	if err == nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err = analyzer.HealthCheck(ctx)
		cancel()
	}
	if err != nil {
		h.Error = err.Error()
	} else {
		h.Healthy = true
	}
	writeJSON(w, h)
}

func (a *App) handleCapturePermission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, models.PermissionStatus{Granted: a.Capturer.CheckPermission(r.Context())})
}

func (a *App) handleCapturePermissionRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := a.Capturer.RequestPermission(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, models.PermissionStatus{Granted: a.Capturer.CheckPermission(r.Context())})
}

// handleCredentials serves /credentials/{provider}. Keys are write-only over the API.
func (a *App) handleCredentials(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/credentials/")
	if len(parts) != 1 {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	provider := parts[0]
	if !config.ValidProvider(provider) {
		writeJSONError(w, http.StatusBadRequest, "unknown provider "+provider)
		return
	}
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var body struct {
			APIKey string `json:"api_key"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if strings.TrimSpace(body.APIKey) == "" {
			writeJSONError(w, http.StatusBadRequest, "api_key required")
			return
		}
		if err := a.Credentials.Set(provider, body.APIKey); err != nil {
			writeError(w, err)
			return
		}
	case http.MethodDelete:
		if err := a.Credentials.Delete(provider); err != nil {
			writeError(w, err)
			return
		}
	default:
		methodNotAllowed(w)
		return
	}
	writeJSON(w, models.CredentialStatus{
		Provider:    provider,
		HasAPIKey:   a.Credentials.Has(provider),
		RequiresKey: credentials.RequiresKey(provider),
	})
}
