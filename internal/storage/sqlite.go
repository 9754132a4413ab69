// Package storage provides SQLite connectivity and the repositories behind the sync engine,
// the feed exporter and the cleaning scheduler.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQL database connection with application-specific methods.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens the SQLite file described by cfg, creating its directory if needed.
func NewDB(cfg Config) (*DB, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	busy := cfg.BusyTimeoutMs
	if busy <= 0 {
		busy = 5000
	}

	// WAL lets the exporter read while a sync is writing; the busy timeout
	// serializes concurrent source syncs instead of failing them.
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL", cfg.Path, busy)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(2)

	return &DB{DB: db, path: cfg.Path}, nil
}

// Wrap adapts an already opened connection, e.g. one from sqlmock.
func Wrap(db *sql.DB) *DB {
	return &DB{DB: db}
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Transaction executes fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
func (db *DB) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
