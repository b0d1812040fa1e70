package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"lifesignal/internal/alerts"
)

const defaultAuditPath = "audit/events.db"

// Log writes operational events and emitted alerts to SQLite.
type Log struct {
	DBPath string

	once sync.Once
	db   *sql.DB
	err  error
}

// NewLog returns a Log bound to dbPath. An empty path falls back to
// LIFESIGNAL_AUDIT_DB and then to audit/events.db. The database is opened
// on first use.
func NewLog(dbPath string) *Log {
	return &Log{DBPath: dbPath}
}

// Close releases the database handle.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Log) open() (*sql.DB, error) {
	l.once.Do(func() {
		resolved, err := resolveDBPath(l.DBPath)
		if err != nil {
			l.err = err
			return
		}
		l.DBPath = resolved
		db, err := sql.Open("sqlite", resolved)
		if err != nil {
			l.err = fmt.Errorf("open audit db: %w", err)
			return
		}
		db.SetMaxOpenConns(1)
		if err := ensureSchema(db); err != nil {
			_ = db.Close()
			l.err = err
			return
		}
		l.db = db
	})
	return l.db, l.err
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			actor TEXT NOT NULL,
			type TEXT NOT NULL,
			payload_json TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			rule TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			link TEXT,
			source_id TEXT NOT NULL,
			dedup_key TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts);
	`)
	if err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

func resolveDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		dbPath = os.Getenv("LIFESIGNAL_AUDIT_DB")
	}
	if dbPath == "" {
		dbPath = defaultAuditPath
	}
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("resolve audit db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure audit db dir: %w", err)
	}
	return absPath, nil
}

// LogEvent writes an audit event.
func (l *Log) LogEvent(actor string, eventType string, payload any) error {
	db, err := l.open()
	if err != nil {
		return err
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = db.Exec(
		"INSERT INTO events (ts, actor, type, payload_json) VALUES (?, ?, ?, ?)",
		time.Now().UTC(),
		actor,
		eventType,
		string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}

// AppendAlert adds an emitted alert to the alert log.
func (l *Log) AppendAlert(ctx context.Context, rec alerts.Record) error {
	db, err := l.open()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO alerts (id, ts, rule, severity, title, message, link, source_id, dedup_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.At.UTC().Format(time.RFC3339Nano),
		string(rec.Rule),
		string(rec.Severity),
		rec.Title,
		rec.Message,
		rec.Link,
		rec.SourceID,
		rec.Key,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns up to limit alerts, newest first.
func (l *Log) ListAlerts(ctx context.Context, limit int) ([]alerts.Record, error) {
	db, err := l.open()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, ts, rule, severity, title, message, link, source_id, dedup_key
		FROM alerts
		ORDER BY ts DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []alerts.Record
	for rows.Next() {
		var rec alerts.Record
		var ts, rule, severity string
		var link sql.NullString
		if err := rows.Scan(&rec.ID, &ts, &rule, &severity, &rec.Title, &rec.Message, &link, &rec.SourceID, &rec.Key); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		rec.At, _ = time.Parse(time.RFC3339Nano, ts)
		rec.Rule = alerts.Rule(rule)
		rec.Severity = alerts.Severity(severity)
		rec.Link = link.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}
