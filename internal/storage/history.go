package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const historyFileName = "history.db"

//go:embed schema.sql
var schemaSQL string

// Schema versions:
// 1 - sessions table with started_at index
const currentSchemaVersion = 1

// Outcome is how a recorded session ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAbandoned Outcome = "abandoned"
)

// SessionRecord is one row of session history.
type SessionRecord struct {
	SessionID       string
	ModeID          string
	ModeName        string
	StartedAt       time.Time
	EndedAt         time.Time
	Elapsed         time.Duration
	Paused          time.Duration
	PhasesCompleted int
	PhaseCount      int
	Outcome         Outcome
}

// History stores finished and abandoned sessions in SQLite.
type History struct {
	db *sql.DB
}

// OpenHistory opens or creates the history database in dataDir.
func OpenHistory(dataDir string) (*History, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return openHistoryAt(filepath.Join(dataDir, historyFileName))
}

func openHistoryAt(path string) (*History, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to history database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &History{db: db}, nil
}

// Close closes the database.
func (history *History) Close() error {
	if history == nil || history.db == nil {
		return nil
	}
	return history.db.Close()
}

// Record inserts a session. Recording the same session twice keeps the
// first row.
func (history *History) Record(ctx context.Context, record SessionRecord) error {
	_, err := history.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions (
			session_id, mode_id, mode_name, started_at, ended_at,
			elapsed_ms, paused_ms, phases_completed, phase_count, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID, record.ModeID, record.ModeName,
		record.StartedAt.UnixMilli(), record.EndedAt.UnixMilli(),
		record.Elapsed.Milliseconds(), record.Paused.Milliseconds(),
		record.PhasesCompleted, record.PhaseCount, string(record.Outcome),
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", record.SessionID, err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first. A limit of zero or less
// returns every session.
func (history *History) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := history.db.QueryContext(ctx, `
		SELECT session_id, mode_id, mode_name, started_at, ended_at,
		       elapsed_ms, paused_ms, phases_completed, phase_count, status
		FROM sessions
		ORDER BY started_at DESC, session_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var (
			record             SessionRecord
			startedAt, endedAt int64
			elapsed, paused    int64
			outcome            string
		)
		if err := rows.Scan(&record.SessionID, &record.ModeID, &record.ModeName, &startedAt, &endedAt,
			&elapsed, &paused, &record.PhasesCompleted, &record.PhaseCount, &outcome); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		record.StartedAt = time.UnixMilli(startedAt)
		record.EndedAt = time.UnixMilli(endedAt)
		record.Elapsed = time.Duration(elapsed) * time.Millisecond
		record.Paused = time.Duration(paused) * time.Millisecond
		record.Outcome = Outcome(outcome)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history rows: %w", err)
	}
	return records, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
