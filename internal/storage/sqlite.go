package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tgcast/internal/task"
	"tgcast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type taskRow struct {
	content  string
	targets  string
	schedule string
	results  string
	receipts string
}

func encodeRow(t *task.Task) (taskRow, error) {
	var r taskRow
	enc := func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	}
	var err error
	if r.content, err = enc(t.Content); err != nil {
		return r, err
	}
	if r.targets, err = enc(t.Targets); err != nil {
		return r, err
	}
	if r.schedule, err = enc(t.Schedule); err != nil {
		return r, err
	}
	if r.results, err = enc(t.Results); err != nil {
		return r, err
	}
	if r.receipts, err = enc(t.Receipts); err != nil {
		return r, err
	}
	return r, nil
}

func (s *sqliteStore) CreateTask(ctx context.Context, t *task.Task) error {
	r, err := encodeRow(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, name, created_by, status, content, targets, schedule, results, receipts, expiry_ms, created_at, completed_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, t.CreatedBy, string(t.Status),
		r.content, r.targets, r.schedule, r.results, r.receipts,
		t.Expiry.Milliseconds(), t.CreatedAt.UTC().Format(time.RFC3339Nano), nullTime(t.CompletedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return ErrExists
	}
	return err
}

func (s *sqliteStore) UpdateTask(ctx context.Context, t *task.Task) error {
	r, err := encodeRow(t)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET name=?, created_by=?, status=?, content=?, targets=?, schedule=?, results=?, receipts=?, expiry_ms=?, created_at=?, completed_at=?
		 WHERE id=?`,
		t.Name, t.CreatedBy, string(t.Status),
		r.content, r.targets, r.schedule, r.results, r.receipts,
		t.Expiry.Milliseconds(), t.CreatedAt.UTC().Format(time.RFC3339Nano), nullTime(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) SetStatus(ctx context.Context, id string, from, to task.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status=? WHERE id=? AND status=?`,
		string(to), id, string(from),
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, status, content, targets, schedule, results, receipts, expiry_ms, created_at, completed_at
		 FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) ListTasks(ctx context.Context, limit int) ([]*task.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_by, status, content, targets, schedule, results, receipts, expiry_ms, created_at, completed_at
		 FROM tasks ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListExpirable(ctx context.Context, now time.Time) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_by, status, content, targets, schedule, results, receipts, expiry_ms, created_at, completed_at
		 FROM tasks
		 WHERE expiry_ms > 0 AND completed_at IS NOT NULL AND status IN (?,?)`,
		string(task.StatusCompleted), string(task.StatusPartiallyCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		if at, ok := t.ExpiresAt(); ok && !at.After(now) {
			out = append(out, t)
		}
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*task.Task, error) {
	var (
		t           task.Task
		status      string
		row         taskRow
		expiryMS    int64
		createdAt   string
		completedAt sql.NullString
	)
	err := r.Scan(&t.ID, &t.Name, &t.CreatedBy, &status,
		&row.content, &row.targets, &row.schedule, &row.results, &row.receipts,
		&expiryMS, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	t.Expiry = time.Duration(expiryMS) * time.Millisecond
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if completedAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("completed_at: %w", err)
		}
		t.CompletedAt = &at
	}
	for _, f := range []struct {
		raw string
		dst any
	}{
		{row.content, &t.Content},
		{row.targets, &t.Targets},
		{row.schedule, &t.Schedule},
		{row.results, &t.Results},
		{row.receipts, &t.Receipts},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
