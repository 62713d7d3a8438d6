package tool

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"donna-ai/internal/domain"
)

// SQLiteTaskBackend implements TaskBackend using SQLite. Complete and Delete
// are soft transitions so Restore can bring tasks back.
type SQLiteTaskBackend struct {
	db *sql.DB
}

// NewSQLiteTaskBackend opens (or creates) the task database at dbPath.
func NewSQLiteTaskBackend(dbPath string) (*SQLiteTaskBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open task db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id         TEXT PRIMARY KEY,
			principal  TEXT NOT NULL,
			title      TEXT NOT NULL,
			category   TEXT NOT NULL DEFAULT 'Personal',
			priority   TEXT NOT NULL DEFAULT 'Medium',
			due_date   TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'open',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate task db: %w", err)
	}
	return &SQLiteTaskBackend{db: db}, nil
}

// Close closes the underlying database connection.
func (b *SQLiteTaskBackend) Close() error { return b.db.Close() }

func (b *SQLiteTaskBackend) List(ctx context.Context, principal string, f TaskFilter) ([]Task, error) {
	query := "SELECT id, title, category, priority, due_date, status, created_at FROM tasks WHERE principal = ? AND status = ?"
	args := []any{principal, TaskStatusOpen}

	today := time.Now().Format("2006-01-02")
	switch {
	case f.Category != "":
		query += " AND category = ?"
		args = append(args, f.Category)
	case f.DueToday:
		query += " AND due_date = ?"
		args = append(args, today)
	case f.Overdue:
		query += " AND due_date != '' AND due_date < ?"
		args = append(args, today)
	case f.DueThisWeek:
		week := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
		query += " AND due_date != '' AND due_date >= ? AND due_date <= ?"
		args = append(args, today, week)
	}
	query += " ORDER BY created_at, id"

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Title, &t.Category, &t.Priority, &t.DueDate, &t.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			t.CreatedAt = ts
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (b *SQLiteTaskBackend) Add(ctx context.Context, principal string, t Task) (Task, error) {
	now := time.Now()
	t.ID = ulid.Make().String()
	t.Status = TaskStatusOpen
	t.CreatedAt = now
	if t.Category == "" {
		t.Category = "Personal"
	}
	if t.Priority == "" {
		t.Priority = "Medium"
	}

	_, err := b.db.ExecContext(ctx,
		"INSERT INTO tasks (id, principal, title, category, priority, due_date, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, principal, t.Title, t.Category, t.Priority, t.DueDate, t.Status,
		now.UTC().Format(time.RFC3339Nano), now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

func (b *SQLiteTaskBackend) Complete(ctx context.Context, principal, id string) error {
	return b.setStatus(ctx, principal, id, TaskStatusDone)
}

func (b *SQLiteTaskBackend) Delete(ctx context.Context, principal, id string) error {
	return b.setStatus(ctx, principal, id, TaskStatusDeleted)
}

// Restore reopens a completed or deleted task. It is the reversal operation
// the undo tool replays.
func (b *SQLiteTaskBackend) Restore(ctx context.Context, principal, id string) error {
	return b.setStatus(ctx, principal, id, TaskStatusOpen)
}

func (b *SQLiteTaskBackend) setStatus(ctx context.Context, principal, id, status string) error {
	res, err := b.db.ExecContext(ctx,
		"UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND principal = ?",
		status, time.Now().UTC().Format(time.RFC3339Nano), id, principal,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewDomainError("SQLiteTaskBackend.setStatus", domain.ErrNotFound, id)
	}
	return nil
}

func (b *SQLiteTaskBackend) Rename(ctx context.Context, principal, id, title string) error {
	res, err := b.db.ExecContext(ctx,
		"UPDATE tasks SET title = ?, updated_at = ? WHERE id = ? AND principal = ?",
		title, time.Now().UTC().Format(time.RFC3339Nano), id, principal,
	)
	if err != nil {
		return fmt.Errorf("rename task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewDomainError("SQLiteTaskBackend.Rename", domain.ErrNotFound, id)
	}
	return nil
}
