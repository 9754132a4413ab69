package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// BaseRepository provides common functionality for all repositories.
type BaseRepository struct {
	db  *DB
	now func() time.Time
}

// NewBaseRepository creates a new base repository with the given database connection.
func NewBaseRepository(db *DB) BaseRepository {
	return BaseRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB returns the underlying database connection.
func (r *BaseRepository) DB() *DB {
	return r.db
}

// Now returns the current time in UTC for database timestamps.
func (r *BaseRepository) Now() time.Time {
	return r.now().UTC()
}

// SetClock overrides the timestamp source. Tests use it to get stable rows.
func (r *BaseRepository) SetClock(now func() time.Time) {
	r.now = now
}

// Transaction executes a function within a database transaction.
func (r *BaseRepository) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return r.db.Transaction(ctx, fn)
}

// go-sqlite3 stores times as text with their zone offset and SQLite compares that text,
// so every bound or stored time goes through utc to keep text order equal to instant order.
func utc(t time.Time) time.Time {
	return t.UTC()
}

// GenerateID creates a new random UUID for use as a primary key.
func GenerateID() string {
	return uuid.NewString()
}
