package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// Desktop posts OS notifications through notify-send, or osascript on macOS.
type Desktop struct {
	// Enabled is read on every call; nil means enabled.
	Enabled func() bool
	// Command overrides the notifier binary. It is invoked as Command title body.
	Command string

	mu    sync.Mutex
	state Permission
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) enabled() bool { return d.Enabled == nil || d.Enabled() }

func (d *Desktop) notifier() string {
	if d.Command != "" {
		return d.Command
	}
	if runtime.GOOS == "darwin" {
		return "osascript"
	}
	return "notify-send"
}

func (d *Desktop) Permission(ctx context.Context) Permission {
	if !d.enabled() {
		return Denied
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// RequestPermission grants delivery when the notifier binary is available.
func (d *Desktop) RequestPermission(ctx context.Context) (bool, error) {
	_, err := exec.LookPath(d.notifier())
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.state = Denied
		return false, nil
	}
	d.state = Granted
	return true, nil
}

func (d *Desktop) Send(ctx context.Context, m Message) error {
	var cmd *exec.Cmd
	if d.Command == "" && runtime.GOOS == "darwin" {
		script := fmt.Sprintf("display notification %q with title %q", m.Body, m.Title)
		cmd = exec.CommandContext(ctx, "osascript", "-e", script)
	} else {
		cmd = exec.CommandContext(ctx, d.notifier(), m.Title, m.Body)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", d.notifier(), err, strings.TrimSpace(string(out)))
	}
	return nil
}
