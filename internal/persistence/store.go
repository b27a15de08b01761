// Package persistence is the durable, transactional store backing the
// Supervisor's crash recovery (spec.md §4.4): one embedded SQLite file
// holding jobs, articles, files, a server config snapshot, history,
// RSS dedup state, and schedule rules.
package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open creates the database directory if needed, opens the sqlite file
// with WAL journaling tuned for a single writer, and runs migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	// A single-writer embedded database has no use for a connection pool
	// deeper than a handful of readers; this also sidesteps SQLITE_BUSY
	// under WAL with concurrent batch-update writers.
	db.SetMaxOpenConns(8)

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
