// Package client provides a Go SDK for the taskwatch HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ankittk/taskwatch/pkg/models"
)

// Client calls the taskwatch HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:3548"
	APIKey     string       // optional; set for X-API-Key / api_key
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// APIError is a non-2xx response.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("api %s %s: status %d", e.Method, e.Path, e.Status)
}

// New returns a client for the given base URL (e.g. "http://localhost:3548").
// APIKey is optional; when set, requests use X-API-Key header and optionally api_key query.
func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	u := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Message: errBody.Error}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health returns the /health response (ok: true).
func (c *Client) Health(ctx context.Context) (ok bool, err error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out.OK, err
}

// ListTasks returns every task in insertion order, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status string, limit int) ([]models.Task, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []models.Task
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// ActiveTasks returns open tasks ordered by current priority.
func (c *Client) ActiveTasks(ctx context.Context) ([]models.Task, error) {
	var out []models.Task
	err := c.doJSON(ctx, http.MethodGet, "/tasks/active", nil, &out)
	return out, err
}

// CreateTask creates a pending task.
func (c *Client) CreateTask(ctx context.Context, in models.NewTask) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodPost, "/tasks", in, &out)
	return &out, err
}

// GetTask returns one task.
func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &out)
	return &out, err
}

// TaskCommand runs start, complete or dismiss on a task.
func (c *Client) TaskCommand(ctx context.Context, id, command string) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/"+command, nil, &out)
	return &out, err
}

// SnoozeTask hides a task for hours.
func (c *Client) SnoozeTask(ctx context.Context, id string, hours float64) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/snooze", map[string]float64{"hours": hours}, &out)
	return &out, err
}

// SetTaskStatus moves a task to status.
func (c *Client) SetTaskStatus(ctx context.Context, id, status string) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), map[string]string{"status": status}, &out)
	return &out, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// WatchStatus returns the scheduler state.
func (c *Client) WatchStatus(ctx context.Context) (*models.WatchStatus, error) {
	var out models.WatchStatus
	err := c.doJSON(ctx, http.MethodGet, "/watch", nil, &out)
	return &out, err
}

// StartWatching arms the capture timer.
func (c *Client) StartWatching(ctx context.Context) (*models.WatchStatus, error) {
	var out models.WatchStatus
	err := c.doJSON(ctx, http.MethodPost, "/watch/start", nil, &out)
	return &out, err
}

// StopWatching disarms the capture timer.
func (c *Client) StopWatching(ctx context.Context) (*models.WatchStatus, error) {
	var out models.WatchStatus
	err := c.doJSON(ctx, http.MethodPost, "/watch/stop", nil, &out)
	return &out, err
}

// CaptureNow runs one capture cycle and returns what it produced.
func (c *Client) CaptureNow(ctx context.Context) (*models.CaptureResult, error) {
	var out models.CaptureResult
	err := c.doJSON(ctx, http.MethodPost, "/watch/capture", nil, &out)
	return &out, err
}

// ListCaptures returns recent capture contexts, newest first.
func (c *Client) ListCaptures(ctx context.Context, limit int) ([]models.CaptureContext, error) {
	path := "/captures"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []models.CaptureContext
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Settings returns the current settings.
func (c *Client) Settings(ctx context.Context) (*models.Settings, error) {
	var out models.Settings
	err := c.doJSON(ctx, http.MethodGet, "/settings", nil, &out)
	return &out, err
}

// SaveSettings replaces all settings.
func (c *Client) SaveSettings(ctx context.Context, s models.Settings) (*models.Settings, error) {
	var out models.Settings
	err := c.doJSON(ctx, http.MethodPut, "/settings", s, &out)
	return &out, err
}

// UpdateCaptureInterval sets the capture period in seconds.
func (c *Client) UpdateCaptureInterval(ctx context.Context, secs int) (*models.Settings, error) {
	var out models.Settings
	err := c.doJSON(ctx, http.MethodPut, "/settings/interval", map[string]int{"secs": secs}, &out)
	return &out, err
}

// ToggleNotifications enables or disables notifications.
func (c *Client) ToggleNotifications(ctx context.Context, enabled bool) (*models.Settings, error) {
	var out models.Settings
	err := c.doJSON(ctx, http.MethodPut, "/settings/notifications", map[string]bool{"enabled": enabled}, &out)
	return &out, err
}

// ProviderConfig returns the reasoning provider configuration.
func (c *Client) ProviderConfig(ctx context.Context) (*models.ProviderConfig, error) {
	var out models.ProviderConfig
	err := c.doJSON(ctx, http.MethodGet, "/provider", nil, &out)
	return &out, err
}

// SetProviderConfig replaces the reasoning provider configuration.
func (c *Client) SetProviderConfig(ctx context.Context, p models.ProviderConfig) (*models.ProviderConfig, error) {
	var out models.ProviderConfig
	err := c.doJSON(ctx, http.MethodPut, "/provider", p, &out)
	return &out, err
}

// ProviderHealth probes the configured reasoning provider.
func (c *Client) ProviderHealth(ctx context.Context) (*models.ProviderHealth, error) {
	var out models.ProviderHealth
	err := c.doJSON(ctx, http.MethodGet, "/provider/health", nil, &out)
	return &out, err
}

// CapturePermission reports whether capture is permitted.
func (c *Client) CapturePermission(ctx context.Context) (bool, error) {
	var out models.PermissionStatus
	err := c.doJSON(ctx, http.MethodGet, "/permissions/capture", nil, &out)
	return out.Granted, err
}

// RequestCapturePermission asks for capture permission.
func (c *Client) RequestCapturePermission(ctx context.Context) (bool, error) {
	var out models.PermissionStatus
	err := c.doJSON(ctx, http.MethodPost, "/permissions/capture/request", nil, &out)
	return out.Granted, err
}

// Credential reports whether a key is stored for provider.
func (c *Client) Credential(ctx context.Context, provider string) (*models.CredentialStatus, error) {
	var out models.CredentialStatus
	err := c.doJSON(ctx, http.MethodGet, "/credentials/"+url.PathEscape(provider), nil, &out)
	return &out, err
}

// SetCredential stores an API key for provider.
func (c *Client) SetCredential(ctx context.Context, provider, key string) (*models.CredentialStatus, error) {
	var out models.CredentialStatus
	err := c.doJSON(ctx, http.MethodPut, "/credentials/"+url.PathEscape(provider), map[string]string{"api_key": strings.TrimSpace(key)}, &out)
	return &out, err
}

// DeleteCredential removes the stored key for provider.
func (c *Client) DeleteCredential(ctx context.Context, provider string) (*models.CredentialStatus, error) {
	var out models.CredentialStatus
	err := c.doJSON(ctx, http.MethodDelete, "/credentials/"+url.PathEscape(provider), nil, &out)
	return &out, err
}
