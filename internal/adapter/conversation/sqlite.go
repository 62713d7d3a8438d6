package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"donna-ai/internal/domain"
)

// SQLiteStore implements domain.ConversationStore using SQLite.
// Turns are append-only; sequence numbers are assigned inside a transaction
// so they are strictly increasing per principal even under process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the transcript database at dbPath
// and runs the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open conversation db: %w", err)
	}
	// Sequence assignment relies on read-modify-write in one transaction.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate conversation db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			principal  TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			tool_calls TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			PRIMARY KEY (principal, seq)
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append writes one turn for the principal and returns it with its assigned
// sequence number.
func (s *SQLiteStore) Append(ctx context.Context, principal string, msg domain.Message) (domain.Turn, error) {
	if principal == "" {
		return domain.Turn{}, domain.NewDomainError("SQLiteStore.Append", domain.ErrInvalidInput, "empty principal")
	}

	var callsJSON string
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return domain.Turn{}, fmt.Errorf("marshal tool calls: %w", err)
		}
		callsJSON = string(data)
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var seq uint64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE principal = ?", principal,
	).Scan(&seq)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO turns (principal, seq, role, content, name, tool_calls, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		principal, seq, msg.Role, msg.Content, msg.Name, callsJSON,
		msg.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Turn{}, fmt.Errorf("commit append: %w", err)
	}

	return domain.Turn{Principal: principal, Seq: seq, Message: msg}, nil
}

// ReadRecent returns the most recent limit turns for the principal, oldest
// first. This is a read-time projection: older turns remain stored.
func (s *SQLiteStore) ReadRecent(ctx context.Context, principal string, limit int) ([]domain.Turn, error) {
	if limit < 1 {
		return nil, domain.NewDomainError("SQLiteStore.ReadRecent", domain.ErrInvalidInput, "limit must be >= 1")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, role, content, name, tool_calls, created_at FROM turns WHERE principal = ? ORDER BY seq DESC LIMIT ?",
		principal, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var (
			t         domain.Turn
			callsJSON string
			createdAt string
		)
		t.Principal = principal
		if err := rows.Scan(&t.Seq, &t.Message.Role, &t.Message.Content, &t.Message.Name, &callsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if callsJSON != "" {
			if err := json.Unmarshal([]byte(callsJSON), &t.Message.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls (seq %d): %w", t.Seq, err)
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			t.Message.Timestamp = ts
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	// Rows came newest-first; reverse to transcript order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
