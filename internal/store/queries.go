package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (Task, error) {
	var (
		t            Task
		sourceWindow sql.NullString
		createdAt    int64
		updatedAt    int64
		snoozedUntil sql.NullInt64
		decayAnchor  int64
	)
	if err := r.Scan(&t.ID, &t.Title, &t.Description, &t.Context, &t.InitialPriority, &t.CurrentPriority,
		&t.Status, &sourceWindow, &createdAt, &updatedAt, &snoozedUntil, &t.ActiveSeconds, &decayAnchor); err != nil {
		return Task{}, err
	}
	if sourceWindow.Valid {
		v := sourceWindow.String
		t.SourceWindow = &v
	}
	t.CreatedAt = FromMillis(createdAt)
	t.UpdatedAt = FromMillis(updatedAt)
	t.DecayAnchor = FromMillis(decayAnchor)
	if snoozedUntil.Valid {
		v := FromMillis(snoozedUntil.Int64)
		t.SnoozedUntil = &v
	}
	return t, nil
}

// Millis converts t to the integer representation stored in timestamp columns.
func Millis(t time.Time) int64 { return t.UnixMilli() }

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// MillisPtr returns nil for a nil time.
func MillisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func (s *sqliteStore) InsertTasks(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := s.insertTasksTx(ctx, tx, tasks); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) insertTasksTx(ctx context.Context, tx *sql.Tx, tasks []Task) error {
	st := tx.StmtContext(ctx, s.stmtInsertTask)
	for _, t := range tasks {
		if t.ID == "" {
			return errors.New("task id required")
		}
		if _, err := st.ExecContext(ctx, t.ID, t.Title, t.Description, t.Context, t.InitialPriority, t.CurrentPriority,
			t.Status, t.SourceWindow, Millis(t.CreatedAt), Millis(t.UpdatedAt), MillisPtr(t.SnoozedUntil),
			t.ActiveSeconds, Millis(t.DecayAnchor)); err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}
	return nil
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(s.stmtGetTask.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (s *sqliteStore) UpdateTask(ctx context.Context, t Task) error {
	res, err := s.stmtUpdateTask.ExecContext(ctx, t.Title, t.Description, t.Context, t.CurrentPriority, t.Status,
		t.SourceWindow, Millis(t.UpdatedAt), MillisPtr(t.SnoozedUntil), t.ActiveSeconds, Millis(t.DecayAnchor), t.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id string) (bool, error) {
	res, err := s.stmtDeleteTask.ExecContext(ctx, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if len(f.Statuses) > 0 {
		q += ` WHERE status IN (` + strings.TrimSuffix(strings.Repeat("?,", len(f.Statuses)), ",") + `)`
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	if f.ByPriority {
		q += ` ORDER BY current_priority DESC, created_at ASC, seq ASC`
	} else {
		q += ` ORDER BY seq ASC`
	}
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountTasksByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveCapture(ctx context.Context, c CaptureContext, tasks []Task) error {
	if c.ID == "" {
		return errors.New("capture id required")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO capture_contexts(id, text, window_title, app_name, width, height, captured_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Text, c.WindowTitle, c.AppName, c.Width, c.Height, Millis(c.CapturedAt)); err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	if err := s.insertTasksTx(ctx, tx, tasks); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) ListCaptures(ctx context.Context, limit int) ([]CaptureContext, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, text, window_title, app_name, width, height, captured_at FROM capture_contexts ORDER BY captured_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []CaptureContext
	for rows.Next() {
		var (
			c          CaptureContext
			capturedAt int64
		)
		if err := rows.Scan(&c.ID, &c.Text, &c.WindowTitle, &c.AppName, &c.Width, &c.Height, &capturedAt); err != nil {
			return nil, err
		}
		c.CapturedAt = FromMillis(capturedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneCaptures(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM capture_contexts WHERE captured_at < ?`, Millis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
