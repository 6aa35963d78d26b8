// Package storage persists alerts, raw events, and metric/risk history in
// SQLite via the pure-Go modernc driver.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite holds the database connection pools. WAL mode allows one writer
// alongside concurrent readers, so writes go through a single-connection
// pool while reads get their own wider pool.
type SQLite struct {
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Path    string
	logger  *zap.SugaredLogger
}

// NewSQLite opens (creating if necessary) the database at path, applies the
// pragmas both pools need, and runs migrations.
func NewSQLite(path string, logger *zap.SugaredLogger) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	writeDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite write pool: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", path)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("open sqlite read pool: %w", err)
	}
	readDB.SetMaxOpenConns(8)

	s := &SQLite{WriteDB: writeDB, ReadDB: readDB, Path: path, logger: logger}

	for name, db := range map[string]*sql.DB{"write": writeDB, "read": readDB} {
		if err := configurePool(db); err != nil {
			s.Close()
			return nil, fmt.Errorf("configure sqlite %s pool: %w", name, err)
		}
	}

	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Infow("SQLite storage ready", "path", path)
	return s, nil
}

func configurePool(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db.Ping()
}

// Close closes both pools.
func (s *SQLite) Close() error {
	var firstErr error
	for _, db := range []*sql.DB{s.WriteDB, s.ReadDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
