package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the durable engine state in SQLite: dedup markers, a small
// key-value table and the pass history.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Pass is one recorded scheduler pass.
type Pass struct {
	ID          string
	Trigger     string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      string
	SummaryJSON string
}

// Open opens or creates the state database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve state db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under the scheduler.
	db.SetMaxOpenConns(1)

	store := &Store{
		DBPath: absPath,
		db:     db,
	}

	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS dedup_markers (
	key TEXT PRIMARY KEY,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dedup_created ON dedup_markers(created_at);

CREATE TABLE IF NOT EXISTS passes (
	id TEXT PRIMARY KEY,
	trigger_kind TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL,
	summary_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_passes_started ON passes(started_at);

CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT
);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("create state schema: %w", err)
	}
	return nil
}

// Exists reports whether a dedup marker is present. It is a primary key
// lookup.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM dedup_markers WHERE key = ?", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check dedup marker: %w", err)
	}
	return true, nil
}

// Set stores a dedup marker. Setting an existing key keeps its original
// timestamp.
func (s *Store) Set(ctx context.Context, key string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO dedup_markers (key, created_at) VALUES (?, ?)",
		key, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set dedup marker: %w", err)
	}
	return nil
}

// Prune removes markers created before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM dedup_markers WHERE created_at < ?",
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("prune dedup markers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune dedup markers: %w", err)
	}
	return int(n), nil
}

// StartPass records the start of a pass.
func (s *Store) StartPass(ctx context.Context, id, trigger string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO passes (id, trigger_kind, started_at, status)
		VALUES (?, ?, ?, ?)
	`, id, trigger, startedAt.UTC().Format(time.RFC3339), "running")
	if err != nil {
		return fmt.Errorf("insert pass: %w", err)
	}
	return nil
}

// FinishPass records the outcome of a pass.
func (s *Store) FinishPass(ctx context.Context, id, status, summaryJSON string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE passes
		SET status = ?,
		    finished_at = ?,
		    summary_json = ?
		WHERE id = ?
	`, status, finishedAt.UTC().Format(time.RFC3339), summaryJSON, id)
	if err != nil {
		return fmt.Errorf("update pass: %w", err)
	}
	return nil
}

// ListPasses returns up to limit passes, newest first.
func (s *Store) ListPasses(ctx context.Context, limit int) ([]Pass, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_kind, started_at, finished_at, status, summary_json
		FROM passes
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	var passes []Pass
	for rows.Next() {
		var p Pass
		var startedAt string
		var finishedAt, summary sql.NullString
		if err := rows.Scan(&p.ID, &p.Trigger, &startedAt, &finishedAt, &p.Status, &summary); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		p.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt.Valid {
			t, _ := time.Parse(time.RFC3339, finishedAt.String)
			p.FinishedAt = &t
		}
		if summary.Valid {
			p.SummaryJSON = summary.String
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return passes, nil
}

// GetKV retrieves a value from the key-value store.
func (s *Store) GetKV(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get kv: %w", err)
	}
	return value, nil
}

// SetKV sets a value in the key-value store.
func (s *Store) SetKV(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO kv (key, value)
		VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set kv: %w", err)
	}
	return nil
}
