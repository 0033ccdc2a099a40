package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/ankittk/taskwatch/internal/config"
)

func TestStartForeground_emptyHome(t *testing.T) {
	ctx := context.Background()
	err := StartForeground(ctx, StartOptions{Home: ""})
	if err == nil {
		t.Fatal("StartForeground empty home: expected error")
	}
}

func TestStatus_noPidFile(t *testing.T) {
	st, err := Status(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Running {
		t.Fatalf("expected not running, got %+v", st)
	}
	if _, err := BaseURL(context.Background(), t.TempDir()); !errors.Is(err, errNotRunning) {
		t.Fatalf("BaseURL: got %v, want errNotRunning", err)
	}
}

func TestStatus_livePid(t *testing.T) {
	home := t.TempDir()
	if err := os.MkdirAll(config.ProtectedDir(home), 0o755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(pidPath(home), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
	_ = os.WriteFile(addrPath(home), []byte("127.0.0.1:4000\n"), 0o644)

	st, err := Status(context.Background(), home)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Running || st.PID != os.Getpid() || st.Addr != "127.0.0.1:4000" {
		t.Fatalf("Status: got %+v", st)
	}
	u, err := BaseURL(context.Background(), home)
	if err != nil || u != "http://127.0.0.1:4000" {
		t.Fatalf("BaseURL: got %q, %v", u, err)
	}
}

func TestStatus_garbagePid(t *testing.T) {
	home := t.TempDir()
	_ = os.MkdirAll(config.ProtectedDir(home), 0o755)
	_ = os.WriteFile(pidPath(home), []byte("not-a-pid"), 0o644)
	st, _ := Status(context.Background(), home)
	if st.Running {
		t.Fatalf("expected not running, got %+v", st)
	}
}

func TestAcquireLock_secondFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protected", "daemon.lock")
	l, err := acquireLock(path)
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	defer l.release()
	if _, err := acquireLock(path); err == nil {
		t.Fatal("second acquireLock: expected error")
	}
}

func TestDaemonArgs(t *testing.T) {
	args := daemonArgs(StartOptions{
		Home:       "/tmp/h",
		Port:       4000,
		DBDriver:   "postgres",
		DBURL:      "postgres://x",
		DBPath:     "/tmp/tw.db",
		EnableOtel: true,
		AutoWatch:  true,
	})
	want := []string{
		"daemon", "--home", "/tmp/h", "--port", "4000",
		"--db-driver", "postgres", "--db-url", "postgres://x",
		"--db-path", "/tmp/tw.db", "--otel", "--watch",
	}
	if !slices.Equal(args, want) {
		t.Fatalf("daemonArgs:\n got %v\nwant %v", args, want)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestStartForeground_servesUntilCancelled(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- StartForeground(ctx, StartOptions{Home: home, Port: port}) }()

	var base string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if u, err := BaseURL(context.Background(), home); err == nil {
			if resp, err := http.Get(u + "/health"); err == nil {
				_ = resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					base = u
					break
				}
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	if base == "" {
		cancel()
		t.Fatal("daemon did not become healthy")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("StartForeground: got %v, want context.Canceled", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("StartForeground did not return after cancel")
	}
	if _, err := os.Stat(pidPath(home)); !os.IsNotExist(err) {
		t.Fatalf("pid file not removed: %v", err)
	}
}
