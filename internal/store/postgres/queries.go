package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ankittk/taskwatch/internal/store"
	"github.com/jackc/pgx/v5"
)

const taskColumns = `id, title, description, context, initial_priority, current_priority, status, source_window, created_at, updated_at, snoozed_until, active_seconds, decay_anchor`

func scanTask(r pgx.Row) (store.Task, error) {
	var (
		t            store.Task
		createdAt    int64
		updatedAt    int64
		snoozedUntil *int64
		decayAnchor  int64
	)
	if err := r.Scan(&t.ID, &t.Title, &t.Description, &t.Context, &t.InitialPriority, &t.CurrentPriority,
		&t.Status, &t.SourceWindow, &createdAt, &updatedAt, &snoozedUntil, &t.ActiveSeconds, &decayAnchor); err != nil {
		return store.Task{}, err
	}
	t.CreatedAt = store.FromMillis(createdAt)
	t.UpdatedAt = store.FromMillis(updatedAt)
	t.DecayAnchor = store.FromMillis(decayAnchor)
	if snoozedUntil != nil {
		v := store.FromMillis(*snoozedUntil)
		t.SnoozedUntil = &v
	}
	return t, nil
}

func insertTasks(ctx context.Context, tx pgx.Tx, tasks []store.Task) error {
	batch := &pgx.Batch{}
	for _, t := range tasks {
		if t.ID == "" {
			return errors.New("task id required")
		}
		batch.Queue(`INSERT INTO tasks(`+taskColumns+`) VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			t.ID, t.Title, t.Description, t.Context, t.InitialPriority, t.CurrentPriority, t.Status, t.SourceWindow,
			store.Millis(t.CreatedAt), store.Millis(t.UpdatedAt), store.MillisPtr(t.SnoozedUntil), t.ActiveSeconds, store.Millis(t.DecayAnchor))
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (s *Store) InsertTasks(ctx context.Context, tasks []store.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := insertTasks(ctx, tx, tasks); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetTask(ctx context.Context, id string) (*store.Task, error) {
	t, err := scanTask(s.Pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t store.Task) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE tasks SET title=$1, description=$2, context=$3, current_priority=$4, status=$5, source_window=$6, updated_at=$7, snoozed_until=$8, active_seconds=$9, decay_anchor=$10 WHERE id=$11`,
		t.Title, t.Description, t.Context, t.CurrentPriority, t.Status, t.SourceWindow, store.Millis(t.UpdatedAt),
		store.MillisPtr(t.SnoozedUntil), t.ActiveSeconds, store.Millis(t.DecayAnchor), t.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", t.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListTasks(ctx context.Context, f store.TaskFilter) ([]store.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			args = append(args, st)
			ph[i] = "$" + strconv.Itoa(len(args))
		}
		q += ` WHERE status IN (` + strings.Join(ph, ", ") + `)`
	}
	if f.ByPriority {
		q += ` ORDER BY current_priority DESC, created_at ASC, seq ASC`
	} else {
		q += ` ORDER BY seq ASC`
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += ` LIMIT $` + strconv.Itoa(len(args))
	}
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CountTasksByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.Pool.Query(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (s *Store) SaveCapture(ctx context.Context, c store.CaptureContext, tasks []store.Task) error {
	if c.ID == "" {
		return errors.New("capture id required")
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `INSERT INTO capture_contexts(id, text, window_title, app_name, width, height, captured_at) VALUES($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Text, c.WindowTitle, c.AppName, c.Width, c.Height, store.Millis(c.CapturedAt)); err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	if len(tasks) > 0 {
		if err := insertTasks(ctx, tx, tasks); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListCaptures(ctx context.Context, limit int) ([]store.CaptureContext, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, text, window_title, app_name, width, height, captured_at FROM capture_contexts ORDER BY captured_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.CaptureContext
	for rows.Next() {
		var c store.CaptureContext
		var capturedAt int64
		if err := rows.Scan(&c.ID, &c.Text, &c.WindowTitle, &c.AppName, &c.Width, &c.Height, &capturedAt); err != nil {
			return nil, err
		}
		c.CapturedAt = store.FromMillis(capturedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) PruneCaptures(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM capture_contexts WHERE captured_at < $1`, store.Millis(before))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
