package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/host-calendar-sync/backend/internal/storage/models"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("not found")

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const sourceColumns = `id, property_id, name, url, active, last_sync_at, last_status,
	last_error, created_at, updated_at`

// SourceRepository reads and writes calendar sources and their sync metadata.
type SourceRepository struct {
	BaseRepository
}

// NewSourceRepository creates a new calendar source repository.
func NewSourceRepository(db *DB) *SourceRepository {
	return &SourceRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func scanSource(s rowScanner) (models.CalendarSource, error) {
	var src models.CalendarSource
	err := s.Scan(
		&src.ID, &src.PropertyID, &src.Name, &src.URL, &src.Active,
		&src.LastSyncAt, &src.LastStatus, &src.LastError,
		&src.CreatedAt, &src.UpdatedAt,
	)
	return src, err
}

// Create inserts a new calendar source. New sources are active and never synced.
func (r *SourceRepository) Create(ctx context.Context, src *models.CalendarSource) error {
	src.ID = GenerateID()
	src.CreatedAt = r.Now()
	src.UpdatedAt = src.CreatedAt
	src.Active = true
	src.LastStatus = ""

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO calendar_sources (
			id, property_id, name, url, active, last_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		src.ID, src.PropertyID, src.Name, src.URL, src.Active,
		src.LastStatus, src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar source: %w", err)
	}

	return nil
}

// GetByID retrieves a calendar source by its ID.
func (r *SourceRepository) GetByID(ctx context.Context, id string) (*models.CalendarSource, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM calendar_sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calendar source %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar source: %w", err)
	}
	return &src, nil
}

// ListByProperty returns every source of a property, active or not.
func (r *SourceRepository) ListByProperty(ctx context.Context, propertyID string) ([]models.CalendarSource, error) {
	return r.list(ctx, `SELECT `+sourceColumns+` FROM calendar_sources
		WHERE property_id = ? ORDER BY created_at, id`, propertyID)
}

// ListActive returns active sources, restricted to propertyIDs when any are given.
// Sources synced longest ago come first.
func (r *SourceRepository) ListActive(ctx context.Context, propertyIDs []string) ([]models.CalendarSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM calendar_sources WHERE active = 1`
	args := make([]any, 0, len(propertyIDs))
	if len(propertyIDs) > 0 {
		query += ` AND property_id IN (?` + strings.Repeat(", ?", len(propertyIDs)-1) + `)`
		for _, id := range propertyIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY last_sync_at ASC NULLS FIRST, id`

	return r.list(ctx, query, args...)
}

func (r *SourceRepository) list(ctx context.Context, query string, args ...any) ([]models.CalendarSource, error) {
	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying calendar sources: %w", err)
	}
	defer rows.Close()

	var sources []models.CalendarSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning calendar source: %w", err)
		}
		sources = append(sources, src)
	}

	return sources, rows.Err()
}

// Deactivate soft-deletes a source; reservations keep referencing it.
func (r *SourceRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE calendar_sources SET active = 0, updated_at = ? WHERE id = ?
	`, r.Now(), id)
	if err != nil {
		return fmt.Errorf("deactivating calendar source: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("calendar source %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordSuccess stamps a completed sync and clears any previous error.
func (r *SourceRepository) RecordSuccess(ctx context.Context, id string, syncedAt time.Time) error {
	_, err := r.DB().ExecContext(ctx, `
		UPDATE calendar_sources SET
			last_sync_at = ?, last_status = ?, last_error = NULL, updated_at = ?
		WHERE id = ?
	`, utc(syncedAt), models.SyncStatusOK, r.Now(), id)
	if err != nil {
		return fmt.Errorf("recording sync success: %w", err)
	}
	return nil
}

// RecordFailure stores a failed sync attempt. last_sync_at keeps the last good sync.
func (r *SourceRepository) RecordFailure(ctx context.Context, id, status, message string) error {
	_, err := r.DB().ExecContext(ctx, `
		UPDATE calendar_sources SET last_status = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, status, message, r.Now(), id)
	if err != nil {
		return fmt.Errorf("recording sync failure: %w", err)
	}
	return nil
}

// RecordError stores an error message without changing last_status.
func (r *SourceRepository) RecordError(ctx context.Context, id, message string) error {
	_, err := r.DB().ExecContext(ctx, `
		UPDATE calendar_sources SET last_error = ?, updated_at = ? WHERE id = ?
	`, message, r.Now(), id)
	if err != nil {
		return fmt.Errorf("recording sync error: %w", err)
	}
	return nil
}
