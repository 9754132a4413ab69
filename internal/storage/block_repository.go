package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/host-calendar-sync/backend/internal/storage/models"
)

// BlockRepository provides read access to host-authored calendar blocks.
// Blocks are written by the booking UI, which lives outside this service.
type BlockRepository struct {
	BaseRepository
}

// NewBlockRepository creates a new calendar block repository.
func NewBlockRepository(db *DB) *BlockRepository {
	return &BlockRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts an active or inactive block.
func (r *BlockRepository) Create(ctx context.Context, b *models.CalendarBlock) error {
	b.ID = GenerateID()
	b.CreatedAt = r.Now()
	b.UpdatedAt = b.CreatedAt

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO calendar_blocks (
			id, property_id, start_date, end_date, reason, active, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.PropertyID, utc(b.StartDate), utc(b.EndDate), b.Reason, b.Active,
		b.CreatedBy, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar block: %w", err)
	}
	return nil
}

// ListActiveInWindow returns active blocks overlapping [from, to), ordered by start.
func (r *BlockRepository) ListActiveInWindow(ctx context.Context, propertyID string, from, to time.Time) ([]models.CalendarBlock, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, property_id, start_date, end_date, reason, active, created_by, created_at, updated_at
		FROM calendar_blocks
		WHERE property_id = ? AND active = 1 AND start_date < ? AND end_date >= ?
		ORDER BY start_date, id
	`, propertyID, utc(to), utc(from))
	if err != nil {
		return nil, fmt.Errorf("querying calendar blocks: %w", err)
	}
	defer rows.Close()

	var blocks []models.CalendarBlock
	for rows.Next() {
		var b models.CalendarBlock
		if err := rows.Scan(
			&b.ID, &b.PropertyID, &b.StartDate, &b.EndDate, &b.Reason, &b.Active,
			&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning calendar block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}
