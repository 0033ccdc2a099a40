// Package models provides shared types for the taskwatch HTTP API and external tools.
// These types mirror the API JSON and are stable for use by pkg/client and other consumers.
package models

import "time"

// Task is a detected or manually created work item. CurrentPriority and Status are
// the effective values at the time the response was produced.
type Task struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Context         string     `json:"context,omitempty"`
	InitialPriority float64    `json:"initial_priority"`
	CurrentPriority float64    `json:"current_priority"`
	PriorityBand    string     `json:"priority_band"`
	Status          string     `json:"status"`
	SourceWindow    *string    `json:"source_window,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	SnoozedUntil    *time.Time `json:"snoozed_until,omitempty"`
}

// NewTask is the POST /tasks request body.
type NewTask struct {
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Context      string  `json:"context,omitempty"`
	Priority     float64 `json:"priority"`
	SourceWindow *string `json:"source_window,omitempty"`
}

// CaptureContext is one observed screen state that produced tasks.
type CaptureContext struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	WindowTitle string    `json:"window_title,omitempty"`
	AppName     string    `json:"app_name,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// WatchStatus is the observable state of the watch scheduler.
type WatchStatus struct {
	IsWatching              bool       `json:"is_watching"`
	IsCapturing             bool       `json:"is_capturing"`
	LastCaptureAt           *time.Time `json:"last_capture_at,omitempty"`
	CapturesSinceStart      int64      `json:"captures_since_start"`
	TasksDetectedSinceStart int64      `json:"tasks_detected_since_start"`
	LastError               string     `json:"last_error,omitempty"`
	IntervalSecs            int        `json:"interval_secs"`
}

// CaptureResult is the POST /watch/capture response.
type CaptureResult struct {
	Capture CaptureContext `json:"capture"`
	Tasks   []Task         `json:"tasks"`
}

// ProviderConfig selects and configures the reasoning provider.
type ProviderConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// ProviderHealth is the GET /provider/health response.
type ProviderHealth struct {
	Provider  string   `json:"provider"`
	Healthy   bool     `json:"healthy"`
	Error     string   `json:"error,omitempty"`
	HasAPIKey bool     `json:"has_api_key"`
	CLITools  []string `json:"cli_tools,omitempty"`
}

// CaptureSettings configures the capture collaborator.
type CaptureSettings struct {
	Mode        string   `json:"mode"`
	Command     string   `json:"command,omitempty"`
	Args        []string `json:"args,omitempty"`
	TimeoutSecs int      `json:"timeout_secs"`
}

// NotifySettings configures notification sinks.
type NotifySettings struct {
	Desktop         bool   `json:"desktop"`
	SlackWebhookURL string `json:"slack_webhook_url,omitempty"`
	AMQPURL         string `json:"amqp_url,omitempty"`
	AMQPExchange    string `json:"amqp_exchange,omitempty"`
}

// Settings is the GET/PUT /settings body.
type Settings struct {
	CaptureIntervalSecs   int             `json:"capture_interval_secs"`
	PriorityDecayRate     float64         `json:"priority_decay_rate"`
	NotificationsEnabled  bool            `json:"notifications_enabled"`
	LLM                   ProviderConfig  `json:"llm"`
	Capture               CaptureSettings `json:"capture"`
	AnalysisTimeoutSecs   int             `json:"analysis_timeout_secs"`
	ContextRetentionHours int             `json:"context_retention_hours"`
	Notify                NotifySettings  `json:"notify"`
}

// CredentialStatus is the GET /credentials/{provider} response.
type CredentialStatus struct {
	Provider    string `json:"provider"`
	HasAPIKey   bool   `json:"has_api_key"`
	RequiresKey bool   `json:"requires_key"`
}

// PermissionStatus reports whether the capture collaborator is permitted.
type PermissionStatus struct {
	Granted bool `json:"granted"`
}
