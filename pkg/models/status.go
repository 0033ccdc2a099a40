package models

// Task statuses used throughout the codebase.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusSnoozed    = "snoozed"
	StatusCompleted  = "completed"
	StatusDismissed  = "dismissed"
)

// Priority bands used for display.
const (
	BandLow    = "low"
	BandMedium = "medium"
	BandHigh   = "high"
)

// Reasoning provider types.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderClaudeCLI = "claude_cli"
	ProviderCustom    = "custom"
	ProviderStub      = "stub"
)

// Default limits.
const (
	DefaultMaxRequestBodyBytes = 1 << 20 // 1 MiB
	DefaultTaskListLimit       = 1000
	DefaultCaptureListLimit    = 50
	DefaultSSEChannelBuffer    = 256
)

// ValidStatus reports whether s is one of the task statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSnoozed, StatusCompleted, StatusDismissed:
		return true
	}
	return false
}
