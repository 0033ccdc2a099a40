package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Capture interval bounds in seconds.
const (
	MinCaptureIntervalSecs     = 10
	MaxCaptureIntervalSecs     = 300
	DefaultCaptureIntervalSecs = 30
)

var (
	// ErrOutOfRange is returned for settings values outside their allowed bounds.
	ErrOutOfRange = errors.New("value out of range")
	// ErrInvalidSettings is returned for settings that name unknown modes or providers.
	ErrInvalidSettings = errors.New("invalid settings")
)

// LLMConfig selects the reasoning provider.
type LLMConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
	Model    string `yaml:"model,omitempty" mapstructure:"model"`
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
}

// CaptureConfig selects the capture collaborator.
type CaptureConfig struct {
	Mode        string   `yaml:"mode" mapstructure:"mode"` // "command" or "stub"
	Command     string   `yaml:"command,omitempty" mapstructure:"command"`
	Args        []string `yaml:"args,omitempty" mapstructure:"args"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NotifyConfig configures notification sinks.
type NotifyConfig struct {
	Desktop         bool   `yaml:"desktop" mapstructure:"desktop"`
	SlackWebhookURL string `yaml:"slack_webhook_url,omitempty" mapstructure:"slack_webhook_url"`
	AMQPURL         string `yaml:"amqp_url,omitempty" mapstructure:"amqp_url"`
	AMQPExchange    string `yaml:"amqp_exchange,omitempty" mapstructure:"amqp_exchange"`
}

// Settings is one immutable snapshot of user configuration.
type Settings struct {
	CaptureIntervalSecs int `yaml:"capture_interval_secs" mapstructure:"capture_interval_secs"`
	// PriorityDecayRate is priority units lost per hour of active (non-snoozed) time.
	PriorityDecayRate     float64       `yaml:"priority_decay_rate" mapstructure:"priority_decay_rate"`
	NotificationsEnabled  bool          `yaml:"notifications_enabled" mapstructure:"notifications_enabled"`
	LLM                   LLMConfig     `yaml:"llm" mapstructure:"llm"`
	Capture               CaptureConfig `yaml:"capture" mapstructure:"capture"`
	AnalysisTimeoutSecs   int           `yaml:"analysis_timeout_secs" mapstructure:"analysis_timeout_secs"`
	ContextRetentionHours int           `yaml:"context_retention_hours" mapstructure:"context_retention_hours"`
	Notify                NotifyConfig  `yaml:"notify" mapstructure:"notify"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		CaptureIntervalSecs: DefaultCaptureIntervalSecs,
		PriorityDecayRate:   0.05,
		LLM:                 LLMConfig{Provider: "claude_cli", Enabled: true},
		Capture: CaptureConfig{
			Mode:        "command",
			Command:     "taskwatch-capture",
			TimeoutSecs: 20,
		},
		AnalysisTimeoutSecs:   60,
		ContextRetentionHours: 24,
		Notify:                NotifyConfig{Desktop: true, AMQPExchange: "taskwatch.events"},
	}
}

// CaptureInterval is the tick period.
func (s Settings) CaptureInterval() time.Duration {
	return time.Duration(s.CaptureIntervalSecs) * time.Second
}

// CaptureTimeout bounds one capture call.
func (s Settings) CaptureTimeout() time.Duration {
	return time.Duration(s.Capture.TimeoutSecs) * time.Second
}

// AnalysisTimeout bounds one reasoning call.
func (s Settings) AnalysisTimeout() time.Duration {
	return time.Duration(s.AnalysisTimeoutSecs) * time.Second
}

// ContextRetention is how long capture contexts are kept; zero keeps them forever.
func (s Settings) ContextRetention() time.Duration {
	return time.Duration(s.ContextRetentionHours) * time.Hour
}

func (s Settings) clone() Settings {
	out := s
	out.Capture.Args = append([]string(nil), s.Capture.Args...)
	return out
}

var validProviders = map[string]bool{
	"anthropic": true, "openai": true, "ollama": true, "claude_cli": true, "custom": true, "stub": true,
}

// ValidProvider reports whether p names a supported reasoning provider.
func ValidProvider(p string) bool { return validProviders[p] }

// Validate checks every bounded field.
func (s Settings) Validate() error {
	if s.CaptureIntervalSecs < MinCaptureIntervalSecs || s.CaptureIntervalSecs > MaxCaptureIntervalSecs {
		return fmt.Errorf("capture_interval_secs %d not in [%d, %d]: %w",
			s.CaptureIntervalSecs, MinCaptureIntervalSecs, MaxCaptureIntervalSecs, ErrOutOfRange)
	}
	if s.PriorityDecayRate < 0 {
		return fmt.Errorf("priority_decay_rate must be >= 0: %w", ErrOutOfRange)
	}
	if !ValidProvider(s.LLM.Provider) {
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalidSettings, s.LLM.Provider)
	}
	switch s.Capture.Mode {
	case "command":
		if strings.TrimSpace(s.Capture.Command) == "" {
			return fmt.Errorf("%w: capture.command required in command mode", ErrInvalidSettings)
		}
	case "stub":
	default:
		return fmt.Errorf("%w: unknown capture mode %q", ErrInvalidSettings, s.Capture.Mode)
	}
	if s.Capture.TimeoutSecs <= 0 || s.AnalysisTimeoutSecs <= 0 {
		return fmt.Errorf("timeouts must be positive: %w", ErrOutOfRange)
	}
	if s.ContextRetentionHours < 0 {
		return fmt.Errorf("context_retention_hours must be >= 0: %w", ErrOutOfRange)
	}
	return nil
}

// normalize clamps values read from disk into range so a hand-edited file never
// prevents startup.
func (s *Settings) normalize() {
	d := DefaultSettings()
	if s.CaptureIntervalSecs < MinCaptureIntervalSecs {
		s.CaptureIntervalSecs = MinCaptureIntervalSecs
	}
	if s.CaptureIntervalSecs > MaxCaptureIntervalSecs {
		s.CaptureIntervalSecs = MaxCaptureIntervalSecs
	}
	if s.PriorityDecayRate < 0 {
		s.PriorityDecayRate = 0
	}
	if !ValidProvider(s.LLM.Provider) {
		s.LLM.Provider = d.LLM.Provider
	}
	if s.Capture.Mode != "command" && s.Capture.Mode != "stub" {
		s.Capture.Mode = d.Capture.Mode
	}
	if s.Capture.Mode == "command" && strings.TrimSpace(s.Capture.Command) == "" {
		s.Capture.Command = d.Capture.Command
	}
	if s.Capture.TimeoutSecs <= 0 {
		s.Capture.TimeoutSecs = d.Capture.TimeoutSecs
	}
	if s.AnalysisTimeoutSecs <= 0 {
		s.AnalysisTimeoutSecs = d.AnalysisTimeoutSecs
	}
	if s.ContextRetentionHours < 0 {
		s.ContextRetentionHours = 0
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("capture_interval_secs", d.CaptureIntervalSecs)
	v.SetDefault("priority_decay_rate", d.PriorityDecayRate)
	v.SetDefault("notifications_enabled", d.NotificationsEnabled)
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.endpoint", d.LLM.Endpoint)
	v.SetDefault("llm.enabled", d.LLM.Enabled)
	v.SetDefault("capture.mode", d.Capture.Mode)
	v.SetDefault("capture.command", d.Capture.Command)
	v.SetDefault("capture.args", []string{})
	v.SetDefault("capture.timeout_secs", d.Capture.TimeoutSecs)
	v.SetDefault("analysis_timeout_secs", d.AnalysisTimeoutSecs)
	v.SetDefault("context_retention_hours", d.ContextRetentionHours)
	v.SetDefault("notify.desktop", d.Notify.Desktop)
	v.SetDefault("notify.slack_webhook_url", d.Notify.SlackWebhookURL)
	v.SetDefault("notify.amqp_url", d.Notify.AMQPURL)
	v.SetDefault("notify.amqp_exchange", d.Notify.AMQPExchange)
}

// ReadSettings reads path (if it exists) layered over defaults and TASKWATCH_* env
// overrides, e.g. TASKWATCH_CAPTURE_INTERVAL_SECS or TASKWATCH_LLM_PROVIDER.
func ReadSettings(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Settings{}, err
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	s.normalize()
	return s, nil
}

// WriteSettings writes s to path as YAML via an atomic rename.
func WriteSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*.yaml")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Source owns the current settings snapshot and its persistence. Every mutation goes
// through Update: the prior snapshot is kept, the change applied and validated, then
// written; if the write fails the prior snapshot is restored.
type Source struct {
	path  string
	write func(path string, s Settings) error

	mu    sync.RWMutex
	cur   Settings
	hooks []func(Settings)
}

// LoadSource reads settings from home and returns a Source bound to that file.
func LoadSource(home string) (*Source, error) {
	path := SettingsPath(home)
	s, err := ReadSettings(path)
	if err != nil {
		return nil, err
	}
	return NewSource(path, s), nil
}

// NewSource returns a Source holding s that persists to path.
func NewSource(path string, s Settings) *Source {
	return &Source{path: path, write: WriteSettings, cur: s.clone()}
}

// Path is the settings file location.
func (s *Source) Path() string { return s.path }

// Snapshot returns a copy of the current settings.
func (s *Source) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.clone()
}

// OnChange registers fn to be called with the new snapshot after each successful update.
func (s *Source) OnChange(fn func(Settings)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Update applies fn to a copy of the current settings and persists the result.
// On validation or persistence failure the current snapshot is unchanged.
func (s *Source) Update(fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	prior := s.cur.clone()
	next := prior.clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return prior, err
	}
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return prior, err
	}
	s.cur = next
	if err := s.write(s.path, next); err != nil {
		s.cur = prior
		s.mu.Unlock()
		return prior, fmt.Errorf("persist settings: %w", err)
	}
	hooks := append([]func(Settings){}, s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(next.clone())
	}
	return next.clone(), nil
}

// Save replaces all settings.
func (s *Source) Save(next Settings) (Settings, error) {
	return s.Update(func(cur *Settings) error {
		*cur = next.clone()
		return nil
	})
}

// UpdateCaptureInterval sets the tick period; it takes effect on the next tick.
func (s *Source) UpdateCaptureInterval(secs int) (Settings, error) {
	return s.Update(func(cur *Settings) error {
		cur.CaptureIntervalSecs = secs
		return nil
	})
}

// ToggleNotifications enables or disables notifications.
func (s *Source) ToggleNotifications(enabled bool) (Settings, error) {
	return s.Update(func(cur *Settings) error {
		cur.NotificationsEnabled = enabled
		return nil
	})
}

// ProviderConfig returns the current reasoning provider configuration.
func (s *Source) ProviderConfig() LLMConfig {
	return s.Snapshot().LLM
}

// SetProviderConfig replaces the reasoning provider configuration.
func (s *Source) SetProviderConfig(c LLMConfig) (Settings, error) {
	return s.Update(func(cur *Settings) error {
		cur.LLM = c
		return nil
	})
}
