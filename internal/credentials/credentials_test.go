package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_setGetDelete(t *testing.T) {
	t.Parallel()
	s := NewFileStore(t.TempDir())
	s.env = func(string) string { return "" }

	if s.Has("anthropic") {
		t.Fatal("empty store should not have a key")
	}
	if _, err := s.Get("anthropic"); !errors.Is(err, ErrNoKey) {
		t.Fatalf("Get: want ErrNoKey, got %v", err)
	}
	if err := s.Set("anthropic", "  sk-test  "); err != nil {
		t.Fatalf("Set: %v", err)
	}
	k, err := s.Get("anthropic")
	if err != nil || k != "sk-test" {
		t.Fatalf("Get: %q %v", k, err)
	}
	if !s.Has("anthropic") || s.Has("openai") {
		t.Fatal("Has mismatch")
	}

	info, err := os.Stat(filepath.Join(filepath.Dir(s.path), "credentials.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("credentials file mode: %v", info.Mode().Perm())
	}

	if err := s.Delete("anthropic"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Has("anthropic") {
		t.Fatal("key survived Delete")
	}
	if err := s.Delete("anthropic"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestFileStore_envFallback(t *testing.T) {
	t.Parallel()
	s := NewFileStore(t.TempDir())
	s.env = func(name string) string {
		if name == "OPENAI_API_KEY" {
			return "sk-env"
		}
		return ""
	}
	k, err := s.Get("openai")
	if err != nil || k != "sk-env" {
		t.Fatalf("Get with env: %q %v", k, err)
	}
	if err := s.Set("openai", "sk-file"); err != nil {
		t.Fatal(err)
	}
	if k, _ := s.Get("openai"); k != "sk-file" {
		t.Fatalf("stored key should win over env, got %q", k)
	}
}

func TestFileStore_setValidation(t *testing.T) {
	t.Parallel()
	s := NewFileStore(t.TempDir())
	if err := s.Set("", "k"); err == nil {
		t.Fatal("expected error for empty provider")
	}
	if err := s.Set("anthropic", " "); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestRequiresKey(t *testing.T) {
	t.Parallel()
	for p, want := range map[string]bool{"anthropic": true, "openai": true, "ollama": false, "claude_cli": false} {
		if got := RequiresKey(p); got != want {
			t.Fatalf("RequiresKey(%q) = %v", p, got)
		}
	}
}
