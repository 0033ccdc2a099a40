// Package daemon runs the taskwatch HTTP server as a singleton process and controls it
// from the CLI through pid and addr files under the protected directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ankittk/taskwatch/internal/config"
	"github.com/ankittk/taskwatch/internal/httpapi"
	"github.com/ankittk/taskwatch/internal/otel"
	"github.com/ankittk/taskwatch/internal/store"
)

var errNotRunning = errors.New("taskwatch is not running")

// StartForeground serves the API until ctx is cancelled or the server fails.
func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.Home == "" {
		return errors.New("home is required")
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.RedisURL == "" {
		opts.RedisURL = os.Getenv("TASKWATCH_REDIS_URL")
	}

	if err := os.MkdirAll(config.ProtectedDir(opts.Home), 0o755); err != nil {
		return err
	}

	lock, err := acquireLock(lockPath(opts.Home))
	if err != nil {
		return err
	}
	defer lock.release()

	startPprof(opts.PprofAddr)

	// SQLite only; Postgres migrates on connect.
	if opts.DBDriver != "postgres" {
		if err := store.EnsureSchema(store.OpenOptions{Home: opts.Home, Path: opts.DBPath}); err != nil {
			return err
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(pidPath(opts.Home), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	addr := fmt.Sprintf("127.0.0.1:%d", opts.Port)
	_ = os.WriteFile(addrPath(opts.Home), []byte(addr+"\n"), 0o644)
	defer func() {
		_ = os.Remove(pidPath(opts.Home))
		_ = os.Remove(addrPath(opts.Home))
	}()

	if err := checkPortAvailable(addr); err != nil {
		return err
	}

	srvOpts := httpapi.ServerOptions{
		Home:     opts.Home,
		Addr:     addr,
		Dev:      opts.Dev,
		APIKey:   os.Getenv("TASKWATCH_API_KEY"),
		DBDriver: opts.DBDriver,
		DBURL:    opts.DBURL,
		DBPath:   opts.DBPath,
		RedisURL: opts.RedisURL,
	}
	if opts.EnableOtel {
		metricsHandler, err := otel.InitMeterProvider(ctx, "taskwatch")
		if err != nil {
			slog.Warn("otel init failed, using plain metrics", "err", err)
		} else {
			srvOpts.MetricsHandler = metricsHandler
			srvOpts.UseOtelHTTP = true
		}
	}
	app, err := httpapi.NewApp(srvOpts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			slog.Warn("close app", "err", err)
		}
	}()
	if opts.EnableOtel {
		err := otel.InitMetricsWithTaskCount(ctx, func(ctx context.Context) map[string]int64 {
			counts, err := app.Engine.CountByStatus(ctx)
			if err != nil {
				slog.Debug("count tasks for metrics", "err", err)
			}
			return counts
		})
		if err != nil {
			slog.Warn("otel task gauge", "err", err)
		}
	}

	slog.Info("daemon starting", "addr", addr, "home", opts.Home)
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Server.ListenAndServe()
	}()
	if opts.AutoWatch {
		if err := app.Scheduler.Start(ctx); err != nil {
			slog.Warn("auto watch", "err", err)
		}
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// StartBackground re-executes the current binary as "taskwatch daemon" detached from the
// terminal and returns its pid.
func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}

	if err := os.MkdirAll(config.ProtectedDir(opts.Home), 0o755); err != nil {
		return 0, err
	}

	if st, _ := Status(ctx, opts.Home); st.Running {
		return 0, fmt.Errorf("taskwatch already running (pid %d)", st.PID)
	}

	stderr, err := os.OpenFile(LogPath(opts.Home), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Kept open for child lifetime; closing here may break writes on some platforms.

	cmd := exec.Command(exe, daemonArgs(opts)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	setDaemonSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.Home); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cmd.Process.Pid, nil
}

func daemonArgs(opts StartOptions) []string {
	args := []string{
		"daemon",
		"--home", opts.Home,
		"--port", strconv.Itoa(opts.Port),
	}
	if opts.Dev {
		args = append(args, "--dev")
	}
	if opts.PprofAddr != "" {
		args = append(args, "--pprof", opts.PprofAddr)
	}
	if opts.DBDriver != "" {
		args = append(args, "--db-driver", opts.DBDriver)
	}
	if opts.DBURL != "" {
		args = append(args, "--db-url", opts.DBURL)
	}
	if opts.DBPath != "" {
		args = append(args, "--db-path", opts.DBPath)
	}
	if opts.RedisURL != "" {
		args = append(args, "--redis-url", opts.RedisURL)
	}
	if opts.EnableOtel {
		args = append(args, "--otel")
	}
	if opts.AutoWatch {
		args = append(args, "--watch")
	}
	return args
}

// Stop signals a running daemon and waits up to 15s for it to exit before killing it.
// It reports whether a daemon was running.
func Stop(ctx context.Context, home string) (bool, error) {
	st, err := Status(ctx, home)
	if err != nil {
		return false, err
	}
	if !st.Running {
		return false, nil
	}

	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return false, errNotRunning
	}
	if err := signalTerm(proc); err != nil {
		return false, err
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if st2, _ := Status(ctx, home); !st2.Running {
			return true, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = proc.Kill()
	return true, nil
}

// Status reads the pid file and checks whether that process is alive. A stale pid file
// is removed.
func Status(ctx context.Context, home string) (StatusInfo, error) {
	pb, err := os.ReadFile(pidPath(home))
	if err != nil {
		return StatusInfo{Running: false}, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pb)))
	if err != nil || pid <= 0 {
		return StatusInfo{Running: false}, nil
	}

	if !processExists(pid) {
		_ = os.Remove(pidPath(home))
		return StatusInfo{Running: false}, nil
	}

	addr := ""
	if ab, err := os.ReadFile(addrPath(home)); err == nil {
		addr = strings.TrimSpace(string(ab))
	}
	if addr == "" {
		addr = "unknown"
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr}, nil
}

// BaseURL returns the http URL of a running daemon, or an error when none is running.
func BaseURL(ctx context.Context, home string) (string, error) {
	st, err := Status(ctx, home)
	if err != nil {
		return "", err
	}
	if !st.Running || st.Addr == "unknown" {
		return "", errNotRunning
	}
	return "http://" + st.Addr, nil
}

func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s is already in use", addr)
	}
	_ = ln.Close()
	return nil
}
