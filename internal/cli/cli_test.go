package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/ankittk/taskwatch/internal/capture"
	"github.com/ankittk/taskwatch/internal/config"
	"github.com/ankittk/taskwatch/internal/credentials"
	"github.com/ankittk/taskwatch/internal/httpapi"
	"github.com/ankittk/taskwatch/internal/notify"
	"github.com/ankittk/taskwatch/internal/reasoning"
	"github.com/fatih/color"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestNewRootCmd_hasSubcommands(t *testing.T) {
	root := NewRootCmd("test")
	if root == nil {
		t.Fatal("NewRootCmd returned nil")
	}
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "stop", "status", "doctor", "task", "watch", "settings", "key", "apikey", "daemon"} {
		if !names[want] {
			t.Errorf("expected subcommand %q", want)
		}
	}
}

func TestNewRootCmd_versionFlag(t *testing.T) {
	root := NewRootCmd("1.2.3")
	if root.Version != "1.2.3" {
		t.Errorf("Version: got %q", root.Version)
	}
}

func TestNewRootCmd_hasHomeAndServerFlags(t *testing.T) {
	root := NewRootCmd("")
	for _, name := range []string{"home", "server"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("expected --%s persistent flag", name)
		}
	}
}

func TestApikeyGenerate(t *testing.T) {
	root := NewRootCmd("")
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"--home", t.TempDir(), "apikey", "generate"})
	if err := root.Execute(); err != nil {
		t.Fatalf("apikey generate: %v", err)
	}
	out := buf.String()
	hexKey := regexp.MustCompile(`(?m)^  ([a-f0-9]{64})$`)
	if !hexKey.MatchString(out) {
		t.Errorf("output should contain a 64-char hex key on its own line; got:\n%s", out)
	}
	if !strings.Contains(out, "TASKWATCH_API_KEY") {
		t.Errorf("output should mention TASKWATCH_API_KEY")
	}
	if !strings.Contains(out, "X-API-Key") {
		t.Errorf("output should mention X-API-Key")
	}
}

func TestApikeyGenerate_envFile(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".env")
	root := NewRootCmd("")
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--home", t.TempDir(), "apikey", "generate", "--env", env})
	if err := root.Execute(); err != nil {
		t.Fatalf("apikey generate: %v", err)
	}
	b, err := os.ReadFile(env)
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^TASKWATCH_API_KEY=[a-f0-9]{64}\n$`).Match(b) {
		t.Fatalf("env file: got %q", b)
	}
}

func TestStatus_notRunning(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "taskwatch not running") {
		t.Fatalf("status output: %q", out)
	}
}

func TestTaskList_noDaemon(t *testing.T) {
	t.Setenv("TASKWATCH_URL", "")
	if _, err := runCLI(t, t.TempDir(), "", "task", "list"); err == nil {
		t.Fatal("task list without daemon: expected error")
	}
}

func runCLI(t *testing.T, home, server string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetIn(strings.NewReader(""))
	full := []string{"--home", home}
	if server != "" {
		full = append(full, "--server", server)
	}
	root.SetArgs(append(full, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

type cliHarness struct {
	app  *httpapi.App
	home string
	url  string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	home := t.TempDir()
	app, err := httpapi.NewApp(httpapi.ServerOptions{
		Home:      home,
		Addr:      "127.0.0.1:0",
		Capturer:  &capture.StubCapturer{},
		Analyzers: func(config.Settings) (capture.Analyzer, error) { return reasoning.Stub{}, nil },
		Sinks:     []notify.Sink{},
	})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ts := httptest.NewServer(app.Server.Handler)
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Close(ctx)
	})
	return &cliHarness{app: app, home: home, url: ts.URL}
}

func (h *cliHarness) run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, h.home, h.url, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func TestTaskCommands_againstServer(t *testing.T) {
	h := newCLIHarness(t)

	out := h.run(t, "task", "add", "Write quarterly report", "--priority", "0.9")
	if !strings.Contains(out, "Created task") || !strings.Contains(out, "0.90") {
		t.Fatalf("task add output: %q", out)
	}

	out = h.run(t, "task", "list")
	if !strings.Contains(out, "Write quarterly report") || !strings.Contains(out, "pending") {
		t.Fatalf("task list output: %q", out)
	}

	active, err := h.app.Engine.ListActive(context.Background())
	if err != nil || len(active) != 1 {
		t.Fatalf("ListActive: %v %v", active, err)
	}
	id := active[0].ID

	out = h.run(t, "task", "start", id)
	if !strings.Contains(out, "in_progress") {
		t.Fatalf("task start output: %q", out)
	}
	out = h.run(t, "task", "complete", id)
	if !strings.Contains(out, "completed") {
		t.Fatalf("task complete output: %q", out)
	}

	if _, err := runCLI(t, h.home, h.url, "task", "dismiss", id); err == nil {
		t.Fatal("dismiss after complete: expected error")
	}

	out = h.run(t, "task", "list")
	if !strings.Contains(out, "No tasks") {
		t.Fatalf("task list after complete: %q", out)
	}
	out = h.run(t, "task", "list", "--all")
	if !strings.Contains(out, "Write quarterly report") {
		t.Fatalf("task list --all: %q", out)
	}

	h.run(t, "task", "delete", id)
	if _, err := runCLI(t, h.home, h.url, "task", "show", id); err == nil {
		t.Fatal("show deleted task: expected error")
	}
}

func TestTaskSnooze_againstServer(t *testing.T) {
	h := newCLIHarness(t)
	h.run(t, "task", "add", "Reply to Sam")
	active, _ := h.app.Engine.ListActive(context.Background())
	if len(active) != 1 {
		t.Fatalf("active: %v", active)
	}
	out := h.run(t, "task", "snooze", active[0].ID, "--hours", "2")
	if !strings.Contains(out, "Snoozed task") {
		t.Fatalf("snooze output: %q", out)
	}
	if out := h.run(t, "task", "list"); !strings.Contains(out, "No tasks") {
		t.Fatalf("snoozed task still listed: %q", out)
	}
}

func TestWatchCapture_againstServer(t *testing.T) {
	h := newCLIHarness(t)
	out := h.run(t, "watch", "capture")
	for _, want := range []string{"review the taskwatch settings", "connect a reasoning provider"} {
		if !strings.Contains(out, want) {
			t.Errorf("capture output missing %q:\n%s", want, out)
		}
	}

	out = h.run(t, "watch", "status")
	if !strings.Contains(out, "Watching:   off") {
		t.Fatalf("watch status: %q", out)
	}
}

func TestSettingsCommands_againstServer(t *testing.T) {
	h := newCLIHarness(t)

	out := h.run(t, "settings", "interval", "60")
	if !strings.Contains(out, "60s") {
		t.Fatalf("interval output: %q", out)
	}
	if got := h.app.Settings.Snapshot().CaptureIntervalSecs; got != 60 {
		t.Fatalf("interval not applied: %d", got)
	}
	if _, err := runCLI(t, h.home, h.url, "settings", "interval", "5"); err == nil {
		t.Fatal("interval 5: expected error")
	}

	out = h.run(t, "settings", "notifications", "off")
	if !strings.Contains(out, "Notifications off") {
		t.Fatalf("notifications output: %q", out)
	}
	if _, err := runCLI(t, h.home, h.url, "settings", "notifications", "maybe"); err == nil {
		t.Fatal("notifications maybe: expected error")
	}

	out = h.run(t, "settings", "provider", "--provider", "stub", "--model", "m1")
	if !strings.Contains(out, "Provider: stub") || !strings.Contains(out, "Model:    m1") {
		t.Fatalf("provider output: %q", out)
	}

	out = h.run(t, "settings", "show")
	if !strings.Contains(out, "Capture interval:  60s") {
		t.Fatalf("settings show: %q", out)
	}
}

func TestKeyCommands_againstServer(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	h := newCLIHarness(t)
	h.run(t, "key", "set", "openai", "--value", "sk-test")
	out := h.run(t, "key", "has", "openai")
	if !strings.Contains(out, "openai: on") {
		t.Fatalf("key has: %q", out)
	}
	h.run(t, "key", "delete", "openai")
	out = h.run(t, "key", "has", "openai")
	if !strings.Contains(out, "openai: off") {
		t.Fatalf("key has after delete: %q", out)
	}
	if _, err := runCLI(t, h.home, h.url, "key", "set", "openai"); err == nil {
		t.Fatal("key set with empty stdin: expected error")
	}
}

type mapCreds map[string]string

func (m mapCreds) Set(p, k string) error { m[p] = k; return nil }
func (m mapCreds) Delete(p string) error { delete(m, p); return nil }
func (m mapCreds) Has(p string) bool     { return m[p] != "" }
func (m mapCreds) Get(p string) (string, error) {
	if k := m[p]; k != "" {
		return k, nil
	}
	return "", credentials.ErrNoKey
}

func TestCheckSettings(t *testing.T) {
	missing := func(string) (string, error) { return "", errors.New("not found") }
	found := func(name string) (string, error) { return "/usr/bin/" + name, nil }

	s := config.DefaultSettings()
	s.LLM.Provider = "openai"
	problems, _ := checkSettings(s, mapCreds{}, missing)
	if len(problems) != 2 {
		t.Fatalf("problems: got %v, want capture command and api key", problems)
	}

	problems, _ = checkSettings(s, mapCreds{"openai": "sk"}, found)
	if len(problems) != 0 {
		t.Fatalf("problems: got %v, want none", problems)
	}

	s.LLM.Enabled = false
	s.Capture.Mode = "stub"
	problems, warnings := checkSettings(s, mapCreds{}, missing)
	if len(problems) != 0 || len(warnings) == 0 {
		t.Fatalf("disabled detection: problems %v warnings %v", problems, warnings)
	}
}
