package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReadSettings_defaultsWhenMissing(t *testing.T) {
	t.Parallel()
	s, err := ReadSettings(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatalf("ReadSettings: %v", err)
	}
	d := DefaultSettings()
	if s.CaptureIntervalSecs != d.CaptureIntervalSecs || s.PriorityDecayRate != d.PriorityDecayRate {
		t.Fatalf("defaults: got %+v", s)
	}
	if s.NotificationsEnabled {
		t.Fatal("notifications should default to disabled")
	}
	if s.LLM.Provider != "claude_cli" {
		t.Fatalf("default provider: got %q", s.LLM.Provider)
	}
}

func TestReadSettings_fileAndClamp(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	body := "capture_interval_secs: 5\npriority_decay_rate: 0.6\nllm:\n  provider: ollama\n  model: llama3\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := ReadSettings(path)
	if err != nil {
		t.Fatalf("ReadSettings: %v", err)
	}
	if s.CaptureIntervalSecs != MinCaptureIntervalSecs {
		t.Fatalf("interval should clamp to %d, got %d", MinCaptureIntervalSecs, s.CaptureIntervalSecs)
	}
	if s.PriorityDecayRate != 0.6 || s.LLM.Provider != "ollama" || s.LLM.Model != "llama3" {
		t.Fatalf("file values not applied: %+v", s)
	}
	if s.Capture.TimeoutSecs != DefaultSettings().Capture.TimeoutSecs {
		t.Fatalf("unset keys should keep defaults: %+v", s.Capture)
	}
}

func TestReadSettings_envOverride(t *testing.T) {
	t.Setenv("TASKWATCH_CAPTURE_INTERVAL_SECS", "120")
	s, err := ReadSettings(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatalf("ReadSettings: %v", err)
	}
	if s.CaptureIntervalSecs != 120 {
		t.Fatalf("env override: got %d", s.CaptureIntervalSecs)
	}
}

func TestSource_updatePersists(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	src, err := LoadSource(home)
	if err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	var seen []int
	src.OnChange(func(s Settings) { seen = append(seen, s.CaptureIntervalSecs) })

	if _, err := src.UpdateCaptureInterval(60); err != nil {
		t.Fatalf("UpdateCaptureInterval: %v", err)
	}
	if _, err := src.ToggleNotifications(true); err != nil {
		t.Fatalf("ToggleNotifications: %v", err)
	}
	if len(seen) != 2 || seen[0] != 60 {
		t.Fatalf("hooks: %v", seen)
	}

	reloaded, err := LoadSource(home)
	if err != nil {
		t.Fatalf("LoadSource again: %v", err)
	}
	got := reloaded.Snapshot()
	if got.CaptureIntervalSecs != 60 || !got.NotificationsEnabled {
		t.Fatalf("not persisted: %+v", got)
	}
}

func TestSource_rejectsOutOfRange(t *testing.T) {
	t.Parallel()
	src := NewSource(filepath.Join(t.TempDir(), "settings.yaml"), DefaultSettings())
	for _, secs := range []int{9, 301, 0} {
		if _, err := src.UpdateCaptureInterval(secs); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("interval %d: want ErrOutOfRange, got %v", secs, err)
		}
	}
	if got := src.Snapshot().CaptureIntervalSecs; got != DefaultCaptureIntervalSecs {
		t.Fatalf("rejected update changed snapshot: %d", got)
	}
	for _, secs := range []int{MinCaptureIntervalSecs, MaxCaptureIntervalSecs} {
		if _, err := src.UpdateCaptureInterval(secs); err != nil {
			t.Fatalf("interval %d: %v", secs, err)
		}
	}
}

func TestSource_rollbackOnPersistFailure(t *testing.T) {
	t.Parallel()
	// A regular file where the settings directory should be makes every write fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	src := NewSource(filepath.Join(blocker, "settings.yaml"), DefaultSettings())
	called := false
	src.OnChange(func(Settings) { called = true })

	if _, err := src.ToggleNotifications(true); err == nil {
		t.Fatal("expected persist error")
	}
	if src.Snapshot().NotificationsEnabled {
		t.Fatal("failed update was not rolled back")
	}
	if _, err := src.SetProviderConfig(LLMConfig{Provider: "openai", Enabled: true}); err == nil {
		t.Fatal("expected persist error")
	}
	if src.ProviderConfig().Provider != "claude_cli" {
		t.Fatal("provider change was not rolled back")
	}
	if called {
		t.Fatal("change hook fired for failed update")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	d := DefaultSettings()
	d.Capture.Args = []string{"--a"}
	src := NewSource(filepath.Join(t.TempDir(), "settings.yaml"), d)
	snap := src.Snapshot()
	snap.Capture.Args[0] = "--mutated"
	if src.Snapshot().Capture.Args[0] != "--a" {
		t.Fatal("snapshot shares memory with source")
	}
}
