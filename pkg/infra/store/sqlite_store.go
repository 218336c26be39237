package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements HistoryStore using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the history database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	// Enable WAL mode for concurrent CLI processes
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		target TEXT,
		outcome TEXT NOT NULL,
		status_code INTEGER DEFAULT 0,
		message TEXT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_history_started ON history(started_at);
	CREATE INDEX IF NOT EXISTS idx_history_operation ON history(operation);
	`
	_, err := s.db.Exec(query)
	return err
}

// Record implements HistoryStore.Record
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	if e.Operation == "" {
		return ErrMissingOperation
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query := `
		INSERT INTO history (id, operation, target, outcome, status_code, message, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Operation, e.Target, e.Outcome, e.StatusCode, e.Message,
		e.StartedAt.UnixNano(), e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// List implements HistoryStore.List
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	whereClause := "1=1"
	args := []any{}

	if f.Operation != "" {
		whereClause += " AND operation = ?"
		args = append(args, f.Operation)
	}
	if f.Target != "" {
		whereClause += " AND target = ?"
		args = append(args, f.Target)
	}

	query := fmt.Sprintf(`
		SELECT id, operation, target, outcome, status_code, message, started_at, duration_ms
		FROM history
		WHERE %s
		ORDER BY started_at DESC
		LIMIT ?
	`, whereClause)
	args = append(args, f.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			target     sql.NullString
			message    sql.NullString
			startedAt  int64
			durationMs int64
		)
		if err := rows.Scan(&e.ID, &e.Operation, &target, &e.Outcome, &e.StatusCode, &message, &startedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Target = target.String
		e.Message = message.String
		e.StartedAt = time.Unix(0, startedAt)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return entries, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore implements HistoryStore interface
var _ HistoryStore = (*SQLiteStore)(nil)
