package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

type homeKey struct{}

// WithHome stores the taskwatch home path in the context.
func WithHome(ctx context.Context, home string) context.Context {
	return context.WithValue(ctx, homeKey{}, home)
}

// HomeFrom returns the taskwatch home path from the context, if set.
func HomeFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(homeKey{})
	s, ok := v.(string)
	return s, ok
}

// MustHomeFrom returns the home path from the context, or panics if not set.
func MustHomeFrom(ctx context.Context) string {
	if h, ok := HomeFrom(ctx); ok && h != "" {
		return h
	}
	panic("taskwatch home missing from context")
}

// ResolveHome returns the taskwatch home directory (override, TASKWATCH_HOME, or default ~/.taskwatch).
func ResolveHome(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}
	if env := os.Getenv("TASKWATCH_HOME"); env != "" {
		return filepath.Clean(env), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine user home directory")
	}
	return filepath.Join(home, ".taskwatch"), nil
}

// ProtectedDir is where the daemon keeps state that must not be shared: the database,
// credentials, pid/lock files and logs.
func ProtectedDir(home string) string {
	return filepath.Join(home, "protected")
}

// SettingsPath is the user-editable settings file under home.
func SettingsPath(home string) string {
	return filepath.Join(home, "settings.yaml")
}
