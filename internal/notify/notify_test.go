package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ankittk/taskwatch/internal/store"
)

type fakeSink struct {
	name     string
	perm     Permission
	grant    bool
	sendErr  error
	mu       sync.Mutex
	requests int
	sent     []Message
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Permission(context.Context) Permission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perm
}

func (f *fakeSink) RequestPermission(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.grant {
		f.perm = Granted
	}
	return f.grant, nil
}

func (f *fakeSink) Send(_ context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return f.sendErr
}

func tasksN(n int) []store.Task {
	out := make([]store.Task, n)
	for i := range out {
		out[i] = store.Task{ID: string(rune('a' + i)), Title: "task " + string(rune('a'+i))}
	}
	return out
}

func TestDispatchSendsOneConsolidatedMessage(t *testing.T) {
	s := &fakeSink{name: "fake", perm: Granted}
	d := &Dispatcher{Enabled: func() bool { return true }, Sinks: []Sink{s}}
	d.Dispatch(context.Background(), tasksN(3))
	if len(s.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(s.sent))
	}
	if s.sent[0].Title != "Tasks Detected" || !strings.HasPrefix(s.sent[0].Body, "3 new tasks") {
		t.Fatalf("message: %+v", s.sent[0])
	}
}

func TestDispatchNoOpWhenDisabledOrEmpty(t *testing.T) {
	s := &fakeSink{name: "fake", perm: Granted}
	enabled := false
	d := &Dispatcher{Enabled: func() bool { return enabled }, Sinks: []Sink{s}}
	d.Dispatch(context.Background(), tasksN(2))
	enabled = true
	d.Dispatch(context.Background(), nil)
	if len(s.sent) != 0 {
		t.Fatalf("sent %d messages, want 0", len(s.sent))
	}
}

func TestPermissionRequestedOnce(t *testing.T) {
	s := &fakeSink{name: "fake", perm: Undetermined, grant: false}
	d := &Dispatcher{Enabled: func() bool { return true }, Sinks: []Sink{s}}
	for i := 0; i < 3; i++ {
		d.Dispatch(context.Background(), tasksN(1))
	}
	if s.requests != 1 {
		t.Fatalf("requests: %d, want 1", s.requests)
	}
	if len(s.sent) != 0 {
		t.Fatal("sent without permission")
	}

	granted := &fakeSink{name: "granting", perm: Undetermined, grant: true}
	d = &Dispatcher{Enabled: func() bool { return true }, Sinks: []Sink{granted}}
	d.Dispatch(context.Background(), tasksN(1))
	d.Dispatch(context.Background(), tasksN(1))
	if granted.requests != 1 || len(granted.sent) != 2 {
		t.Fatalf("requests=%d sent=%d", granted.requests, len(granted.sent))
	}
	if got := d.Permissions(context.Background())["granting"]; got != "granted" {
		t.Fatalf("Permissions: %q", got)
	}
}

func TestDeliveryErrorsAreSwallowed(t *testing.T) {
	bad := &fakeSink{name: "bad", perm: Granted, sendErr: errors.New("boom")}
	good := &fakeSink{name: "good", perm: Granted}
	d := &Dispatcher{Enabled: func() bool { return true }, Sinks: []Sink{bad, good}}
	d.Dispatch(context.Background(), tasksN(1))
	if len(good.sent) != 1 {
		t.Fatal("a failing sink must not block the others")
	}
}

type slowSink struct {
	fakeSink
	release chan struct{}
	ctxErr  error
}

func (s *slowSink) Send(ctx context.Context, m Message) error {
	<-s.release
	s.mu.Lock()
	s.ctxErr = ctx.Err()
	s.mu.Unlock()
	return s.fakeSink.Send(ctx, m)
}

func TestGoDoesNotWaitForSlowSinks(t *testing.T) {
	s := &slowSink{fakeSink: fakeSink{name: "slow", perm: Granted}, release: make(chan struct{})}
	d := &Dispatcher{Enabled: func() bool { return true }, Sinks: []Sink{s}}
	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		d.Go(ctx, tasksN(2))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Go blocked on a slow sink")
	}
	cancel()
	close(s.release)
	d.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) != 1 || s.ctxErr != nil {
		t.Fatalf("sent=%d ctxErr=%v, want one delivery on a live context", len(s.sent), s.ctxErr)
	}
}

func TestNewMessageSingleTask(t *testing.T) {
	m := NewMessage([]store.Task{{Title: "Reply to Dana"}})
	if m.Title != "New Task Detected" || m.Body != "Reply to Dana" {
		t.Fatalf("message: %+v", m)
	}
}

func TestSlackSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	s := Slack{WebhookURL: func() string { return srv.URL }}
	if s.Permission(context.Background()) != Granted {
		t.Fatal("configured webhook should be granted")
	}
	if err := s.Send(context.Background(), NewMessage(tasksN(2))); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(got["text"], "2 new tasks") || !strings.Contains(got["text"], "task b") {
		t.Fatalf("text: %q", got["text"])
	}
	if (Slack{WebhookURL: func() string { return "" }}).Permission(context.Background()) != Denied {
		t.Fatal("missing webhook should be denied")
	}
}

func TestSlackNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	err := Slack{WebhookURL: func() string { return srv.URL }}.Send(context.Background(), NewMessage(tasksN(1)))
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("want 403 error, got %v", err)
	}
}

func TestDesktopWithCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	script := filepath.Join(dir, "notifier.sh")
	body := "#!/bin/sh\nprintf '%s|%s' \"$1\" \"$2\" > " + out + "\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	d := &Desktop{Command: script}
	if d.Permission(context.Background()) != Undetermined {
		t.Fatal("desktop permission should start undetermined")
	}
	ok, err := d.RequestPermission(context.Background())
	if err != nil || !ok {
		t.Fatalf("RequestPermission: %v %v", ok, err)
	}
	if err := d.Send(context.Background(), NewMessage(tasksN(2))); err != nil {
		t.Fatalf("Send: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "Tasks Detected|2 new tasks detected from screen capture" {
		t.Fatalf("notifier args: %q", b)
	}

	off := &Desktop{Command: script, Enabled: func() bool { return false }}
	if off.Permission(context.Background()) != Denied {
		t.Fatal("disabled desktop sink should be denied")
	}
	missing := &Desktop{Command: filepath.Join(dir, "nope")}
	if ok, _ := missing.RequestPermission(context.Background()); ok {
		t.Fatal("missing notifier should not be granted")
	}
}

func TestAMQPPermissionFollowsURL(t *testing.T) {
	a := &AMQP{URL: func() string { return "" }}
	if a.Permission(context.Background()) != Denied {
		t.Fatal("no url should be denied")
	}
	if err := a.Send(context.Background(), NewMessage(tasksN(1))); err == nil {
		t.Fatal("Send without url should fail")
	}
	if a.exchange() != "taskwatch.events" {
		t.Fatalf("default exchange: %q", a.exchange())
	}
}

func TestAMQPPublish(t *testing.T) {
	url := os.Getenv("AMQP_URL")
	if url == "" {
		t.Skip("AMQP_URL not set")
	}
	a := &AMQP{URL: func() string { return url }}
	defer func() { _ = a.Close() }()
	if err := a.Send(context.Background(), NewMessage(tasksN(2))); err != nil {
		t.Fatalf("Send: %v", err)
	}
}
