package reasoning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ankittk/taskwatch/internal/capture"
)

// CLI runs a local assistant CLI in print mode (`<command> -p <prompt>`) and parses
// its stdout. No API key is needed; the CLI handles its own auth.
type CLI struct {
	Command string
	Args    []string // placed before "-p <prompt>"
}

// NewClaudeCLI returns a CLI analyzer for the claude binary.
func NewClaudeCLI() CLI { return CLI{Command: "claude"} }

func (c CLI) Name() string { return "cli:" + filepath.Base(c.Command) }

// augmentedPath adds the usual user binary locations, which daemons started outside a
// login shell often miss.
func augmentedPath() string {
	parts := []string{os.Getenv("PATH")}
	if home, err := os.UserHomeDir(); err == nil {
		parts = append(parts,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".npm-global", "bin"),
			filepath.Join(home, ".claude", "local"),
		)
	}
	parts = append(parts, "/usr/local/bin", "/opt/homebrew/bin")
	return strings.Join(parts, string(os.PathListSeparator))
}

func (c CLI) lookPath() (string, error) {
	if strings.ContainsRune(c.Command, os.PathSeparator) {
		return c.Command, nil
	}
	for _, dir := range filepath.SplitList(augmentedPath()) {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, c.Command)
		if info, err := os.Stat(p); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s not found on PATH", c.Command)
}

func (c CLI) Analyze(ctx context.Context, cc capture.Context) ([]capture.DetectedTask, error) {
	if c.Command == "" {
		return nil, errors.New("cli command is required")
	}
	bin, err := c.lookPath()
	if err != nil {
		return nil, err
	}
	args := append(append([]string{}, c.Args...), "-p", BuildPrompt(cc))
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "PATH="+augmentedPath())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %s", c.Command, err, strings.TrimSpace(stderr.String()))
	}
	return ParseTasks(stdout.String())
}

func (c CLI) HealthCheck(context.Context) error {
	_, err := c.lookPath()
	return err
}

// DetectCLITools lists the known assistant CLIs found on the augmented PATH.
func DetectCLITools() []string {
	var out []string
	for _, name := range []string{"claude"} {
		if _, err := (CLI{Command: name}).lookPath(); err == nil {
			out = append(out, name)
		}
	}
	return out
}
