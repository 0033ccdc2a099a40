package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRun_help(t *testing.T) {
	ctx := context.Background()
	code := Run(ctx, []string{"--help"})
	if code != 0 {
		t.Errorf("Run --help: got exit code %d", code)
	}
}

func TestRun_version(t *testing.T) {
	ctx := context.Background()
	code := Run(ctx, []string{"--version"})
	if code != 0 {
		t.Errorf("Run --version: got exit code %d", code)
	}
}

func TestRun_unknownFlag(t *testing.T) {
	ctx := context.Background()
	code := Run(ctx, []string{"--unknown-flag"})
	if code != 1 {
		t.Errorf("Run --unknown-flag: got exit code %d, want 1", code)
	}
}

func TestRun_statusWithoutDaemon(t *testing.T) {
	code := Run(context.Background(), []string{"--home", t.TempDir(), "status"})
	if code != 0 {
		t.Errorf("Run status: got exit code %d", code)
	}
}

func TestNewLogger_level(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn")
	log.Info("hidden")
	log.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("logger output: %q", out)
	}
}
