package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jiuai233/StreamDeck/internal/domain"
	"github.com/jiuai233/StreamDeck/internal/protocol"
)

// SQLiteStore keeps the history of enumeration runs so profiles can be
// regenerated without VTube Studio running.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dsn.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	inMemory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	if !inMemory {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database folder: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is a separate database
	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			endpoint TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			succeeded INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS run_entries (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			model_id TEXT NOT NULL,
			model_name TEXT NOT NULL,
			model TEXT NOT NULL,
			icon TEXT NOT NULL,
			hotkeys TEXT NOT NULL,
			skipped INTEGER NOT NULL DEFAULT 0,
			failure TEXT,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun stores a finished run with all its entries.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.RunResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, endpoint, started_at, finished_at, succeeded, skipped) VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Endpoint, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Succeeded, run.Skipped)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, e := range run.Entries {
		model, err := json.Marshal(e.Model)
		if err != nil {
			return err
		}
		hotkeys, err := json.Marshal(e.Hotkeys)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_entries (run_id, position, model_id, model_name, model, icon, hotkeys, skipped, failure) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, i, e.Model.ModelID, e.Model.ModelName, string(model), e.Icon, string(hotkeys), e.Skipped, nullString(e.Failure))
		if err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetRun retrieves a run with its entries. It returns nil when the run does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.RunResult, error) {
	var run domain.RunResult
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, endpoint, started_at, finished_at, succeeded, skipped FROM runs WHERE run_id = ?`,
		runID).Scan(&run.RunID, &run.Endpoint, &run.StartedAt, &run.FinishedAt, &run.Succeeded, &run.Skipped)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries, err := s.getEntries(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Entries = entries
	return &run, nil
}

// LatestRun retrieves the most recent run, or nil when there is none.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*domain.RunResult, error) {
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetRun(ctx, runID)
}

// ListRuns lists runs newest first without their entries.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.RunResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, endpoint, started_at, finished_at, succeeded, skipped FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunResult
	for rows.Next() {
		var run domain.RunResult
		if err := rows.Scan(&run.RunID, &run.Endpoint, &run.StartedAt, &run.FinishedAt, &run.Succeeded, &run.Skipped); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) getEntries(ctx context.Context, runID string) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, icon, hotkeys, skipped, failure FROM run_entries WHERE run_id = ? ORDER BY position`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.Entry{}
	for rows.Next() {
		var e domain.Entry
		var model, hotkeys string
		var failure sql.NullString
		if err := rows.Scan(&model, &e.Icon, &hotkeys, &e.Skipped, &failure); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(model), &e.Model); err != nil {
			return nil, fmt.Errorf("decode model: %w", err)
		}
		if err := json.Unmarshal([]byte(hotkeys), &e.Hotkeys); err != nil {
			return nil, fmt.Errorf("decode hotkeys: %w", err)
		}
		if e.Hotkeys == nil {
			e.Hotkeys = []protocol.Hotkey{}
		}
		if failure.Valid {
			e.Failure = failure.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
