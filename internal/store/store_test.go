package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatal(err)
	}
	st, err := Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTask(id string, prio float64, created time.Time) Task {
	return Task{
		ID:              id,
		Title:           "task " + id,
		InitialPriority: prio,
		CurrentPriority: prio,
		Status:          "pending",
		CreatedAt:       created,
		UpdatedAt:       created,
		DecayAnchor:     created,
	}
}

func ptr(s string) *string { return &s }

func TestMigrationsAndBasicCRUD(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	a := newTask("a", 0.3, base)
	a.SourceWindow = ptr("Inbox - Mail")
	b := newTask("b", 0.9, base.Add(time.Second))
	if err := st.InsertTasks(ctx, []Task{a, b}); err != nil {
		t.Fatalf("InsertTasks: %v", err)
	}

	got, err := st.GetTask(ctx, "a")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got == nil || got.Title != "task a" || got.SourceWindow == nil || *got.SourceWindow != "Inbox - Mail" {
		t.Fatalf("GetTask: got %+v", got)
	}
	if !got.CreatedAt.Equal(base) || !got.DecayAnchor.Equal(base) || got.SnoozedUntil != nil {
		t.Fatalf("timestamps not round-tripped: %+v", got)
	}

	missing, err := st.GetTask(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("GetTask missing: got %v, %v", missing, err)
	}

	until := base.Add(2 * time.Hour)
	got.Status = "snoozed"
	got.SnoozedUntil = &until
	got.ActiveSeconds = 42.5
	got.UpdatedAt = base.Add(time.Minute)
	if err := st.UpdateTask(ctx, *got); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	got, _ = st.GetTask(ctx, "a")
	if got.Status != "snoozed" || got.SnoozedUntil == nil || !got.SnoozedUntil.Equal(until) || got.ActiveSeconds != 42.5 {
		t.Fatalf("after update: %+v", got)
	}

	if err := st.UpdateTask(ctx, newTask("ghost", 0.5, base)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateTask missing: want ErrNotFound, got %v", err)
	}

	ok, err := st.DeleteTask(ctx, "b")
	if err != nil || !ok {
		t.Fatalf("DeleteTask: %v %v", ok, err)
	}
	ok, err = st.DeleteTask(ctx, "b")
	if err != nil || ok {
		t.Fatalf("DeleteTask twice: %v %v", ok, err)
	}
}

func TestListTasksOrderingAndFilter(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var in []Task
	prios := []float64{0.2, 0.8, 0.8, 0.5}
	for i, p := range prios {
		in = append(in, newTask(fmt.Sprintf("t%d", i), p, base.Add(time.Duration(i)*time.Second)))
	}
	in[3].Status = "completed"
	if err := st.InsertTasks(ctx, in); err != nil {
		t.Fatalf("InsertTasks: %v", err)
	}

	all, err := st.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	for i, task := range all {
		if task.ID != in[i].ID {
			t.Fatalf("insertion order: index %d got %s want %s", i, task.ID, in[i].ID)
		}
	}

	byPrio, err := st.ListTasks(ctx, TaskFilter{Statuses: []string{"pending"}, ByPriority: true})
	if err != nil {
		t.Fatalf("ListTasks by priority: %v", err)
	}
	want := []string{"t1", "t2", "t0"}
	if len(byPrio) != len(want) {
		t.Fatalf("by priority: got %d tasks, want %d", len(byPrio), len(want))
	}
	for i, id := range want {
		if byPrio[i].ID != id {
			t.Fatalf("by priority: index %d got %s want %s", i, byPrio[i].ID, id)
		}
	}

	limited, _ := st.ListTasks(ctx, TaskFilter{Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("limit: got %d", len(limited))
	}

	counts, err := st.CountTasksByStatus(ctx)
	if err != nil {
		t.Fatalf("CountTasksByStatus: %v", err)
	}
	if counts["pending"] != 3 || counts["completed"] != 1 {
		t.Fatalf("counts: %v", counts)
	}
}

func TestSaveCaptureIsAtomic(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	c := CaptureContext{ID: "c1", Text: "hello", WindowTitle: "Editor", AppName: "code", Width: 800, Height: 600, CapturedAt: base}
	if err := st.SaveCapture(ctx, c, []Task{newTask("x", 0.5, base)}); err != nil {
		t.Fatalf("SaveCapture: %v", err)
	}

	// Duplicate task id makes the second insert fail; the capture row must not survive.
	c2 := CaptureContext{ID: "c2", Text: "again", CapturedAt: base.Add(time.Minute)}
	if err := st.SaveCapture(ctx, c2, []Task{newTask("y", 0.5, base), newTask("x", 0.5, base)}); err == nil {
		t.Fatal("SaveCapture with duplicate id should fail")
	}
	caps, err := st.ListCaptures(ctx, 10)
	if err != nil {
		t.Fatalf("ListCaptures: %v", err)
	}
	if len(caps) != 1 || caps[0].ID != "c1" || caps[0].Width != 800 {
		t.Fatalf("ListCaptures: %+v", caps)
	}
	if y, _ := st.GetTask(ctx, "y"); y != nil {
		t.Fatal("task from failed capture was persisted")
	}

	n, err := st.PruneCaptures(ctx, base.Add(time.Second))
	if err != nil || n != 1 {
		t.Fatalf("PruneCaptures: %d %v", n, err)
	}
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	for i := 0; i < 2; i++ {
		if err := EnsureSchema(OpenOptions{Home: home}); err != nil {
			t.Fatalf("EnsureSchema #%d: %v", i, err)
		}
	}
}

func TestOpenWithExplicitPath(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "tasks.db")
	if err := EnsureSchema(OpenOptions{Home: t.TempDir(), Path: path}); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	st, err := OpenWithOptions(OpenOptions{Path: path})
	if err != nil {
		t.Fatalf("OpenWithOptions: %v", err)
	}
	ctx := context.Background()
	if err := st.InsertTasks(ctx, []Task{newTask("a", 0.5, time.Now().UTC())}); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()

	st, err = OpenWithOptions(OpenOptions{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = st.Close() }()
	got, err := st.GetTask(ctx, "a")
	if err != nil || got == nil {
		t.Fatalf("GetTask after reopen: %v %v", got, err)
	}
}

func TestParseMigrationVersion(t *testing.T) {
	t.Parallel()
	v, err := parseMigrationVersion("001_init.sql")
	if err != nil || v != 1 {
		t.Fatalf("parseMigrationVersion: %d %v", v, err)
	}
	if _, err := parseMigrationVersion("init.sql"); err == nil {
		t.Fatal("expected error for filename without version")
	}
}
