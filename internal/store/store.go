// Package store keeps the ledger of report runs in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/surveygraph/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		class_id TEXT NOT NULL,
		level TEXT NOT NULL,
		shape TEXT NOT NULL,
		valid_pre INTEGER NOT NULL DEFAULT 0,
		valid_mid INTEGER NOT NULL DEFAULT 0,
		valid_post INTEGER NOT NULL DEFAULT 0,
		n_other INTEGER NOT NULL DEFAULT 0,
		persisted INTEGER NOT NULL DEFAULT 0,
		input_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS runs_input_hash ON runs(input_hash);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun stores a run. A zero CreatedAt is set to the current time.
func (s *Store) RecordRun(r model.RunRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, class_id, level, shape, valid_pre, valid_mid, valid_post, n_other, persisted, input_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ClassID, r.Level, r.Shape, r.ValidPre, r.ValidMid, r.ValidPost, r.NOther, r.Persisted, r.InputHash, r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

const runColumns = `id, class_id, level, shape, valid_pre, valid_mid, valid_post, n_other, persisted, input_hash, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (model.RunRecord, error) {
	var r model.RunRecord
	err := sc.Scan(&r.ID, &r.ClassID, &r.Level, &r.Shape, &r.ValidPre, &r.ValidMid, &r.ValidPost,
		&r.NOther, &r.Persisted, &r.InputHash, &r.CreatedAt)
	return r, err
}

// GetRun returns a run by ID.
func (s *Store) GetRun(id string) (model.RunRecord, error) {
	return scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]model.RunRecord, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []model.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FindPersistedByHash returns the earliest run with the given input hash that appended
// to the reference data, or nil if there is none.
func (s *Store) FindPersistedByHash(hash string) (*model.RunRecord, error) {
	r, err := scanRun(s.db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE input_hash = ? AND persisted = 1 ORDER BY created_at LIMIT 1`, hash,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RunCount returns the number of recorded runs.
func (s *Store) RunCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&count)
	return count, err
}
