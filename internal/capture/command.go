package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// permissionDeniedExit is the exit status a capture command uses to report missing
// screen-recording permission.
const permissionDeniedExit = 77

// CommandCapturer runs an external capture helper. The helper prints either a JSON
// object {"text", "window_title", "app_name", "width", "height"} or plain OCR text.
type CommandCapturer struct {
	Command string
	Args    []string
}

func (c CommandCapturer) CheckPermission(context.Context) bool {
	if c.Command == "" {
		return false
	}
	_, err := exec.LookPath(c.Command)
	return err == nil
}

// RequestPermission opens the system privacy pane where supported.
func (c CommandCapturer) RequestPermission(ctx context.Context) error {
	if runtime.GOOS == "darwin" {
		return exec.CommandContext(ctx, "open", "x-apple.systempreferences:com.apple.preference.security?Privacy_ScreenCapture").Run()
	}
	if _, err := exec.LookPath(c.Command); err != nil {
		return fmt.Errorf("capture helper %q is not installed", c.Command)
	}
	return nil
}

func (c CommandCapturer) CaptureOnce(ctx context.Context) (Context, error) {
	if c.Command == "" {
		return Context{}, errors.New("capture command is required")
	}
	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == permissionDeniedExit {
			return Context{}, ErrPermissionDenied
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Context{}, fmt.Errorf("%w: %s", err, msg)
		}
		return Context{}, err
	}
	return parseCaptureOutput(stdout.Bytes()), nil
}

func parseCaptureOutput(b []byte) Context {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var out struct {
			Text        string `json:"text"`
			WindowTitle string `json:"window_title"`
			AppName     string `json:"app_name"`
			Width       int    `json:"width"`
			Height      int    `json:"height"`
		}
		if err := json.Unmarshal(trimmed, &out); err == nil {
			return Context{Text: out.Text, WindowTitle: out.WindowTitle, AppName: out.AppName, Width: out.Width, Height: out.Height}
		}
	}
	return Context{Text: string(trimmed)}
}
