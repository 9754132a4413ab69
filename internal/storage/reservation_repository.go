package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/host-calendar-sync/backend/internal/storage/models"
)

const reservationColumns = `id, property_id, source_id, external_uid, guest_name, guest_count,
	start_date, end_date, status, created_at, updated_at`

// ReservationRepository persists reservations reconciled from external feeds.
type ReservationRepository struct {
	BaseRepository
}

// NewReservationRepository creates a new reservation repository.
func NewReservationRepository(db *DB) *ReservationRepository {
	return &ReservationRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func scanReservation(s rowScanner) (models.Reservation, error) {
	var res models.Reservation
	err := s.Scan(
		&res.ID, &res.PropertyID, &res.SourceID, &res.ExternalUID, &res.GuestName, &res.GuestCount,
		&res.StartDate, &res.EndDate, &res.Status, &res.CreatedAt, &res.UpdatedAt,
	)
	return res, err
}

// Upsert inserts or updates res keyed by (property_id, external_uid) and reports which
// of the three outcomes happened. An unchanged row is not written. On return res carries
// the stored id and timestamps.
func (r *ReservationRepository) Upsert(ctx context.Context, res *models.Reservation) (models.UpsertOutcome, error) {
	outcome := models.UpsertUnchanged

	err := r.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations
			WHERE property_id = ? AND external_uid = ?`, res.PropertyID, res.ExternalUID)
		existing, err := scanReservation(row)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			now := r.Now()
			res.ID = GenerateID()
			res.CreatedAt = now
			res.UpdatedAt = now
			// ON CONFLICT covers a concurrent sync of the same uid that won the race.
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO reservations (`+reservationColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(property_id, external_uid) DO UPDATE SET
					source_id = excluded.source_id,
					guest_name = excluded.guest_name,
					guest_count = excluded.guest_count,
					start_date = excluded.start_date,
					end_date = excluded.end_date,
					status = excluded.status,
					updated_at = excluded.updated_at
			`,
				res.ID, res.PropertyID, res.SourceID, res.ExternalUID, res.GuestName, res.GuestCount,
				utc(res.StartDate), utc(res.EndDate), res.Status, res.CreatedAt, res.UpdatedAt,
			); err != nil {
				return fmt.Errorf("inserting reservation: %w", err)
			}
			outcome = models.UpsertInserted
			return nil

		case err != nil:
			return fmt.Errorf("querying reservation: %w", err)
		}

		res.ID = existing.ID
		res.CreatedAt = existing.CreatedAt
		if existing.SameBooking(res) {
			res.UpdatedAt = existing.UpdatedAt
			outcome = models.UpsertUnchanged
			return nil
		}

		res.UpdatedAt = r.Now()
		if _, err := tx.ExecContext(ctx, `
			UPDATE reservations SET
				source_id = ?, guest_name = ?, guest_count = ?, start_date = ?, end_date = ?,
				status = ?, updated_at = ?
			WHERE id = ?
		`,
			res.SourceID, res.GuestName, res.GuestCount, utc(res.StartDate), utc(res.EndDate),
			res.Status, res.UpdatedAt, res.ID,
		); err != nil {
			return fmt.Errorf("updating reservation: %w", err)
		}
		outcome = models.UpsertChanged
		return nil
	})
	if err != nil {
		return models.UpsertUnchanged, err
	}

	return outcome, nil
}

// GetByExternalUID looks up the reservation for a feed uid within a property.
func (r *ReservationRepository) GetByExternalUID(ctx context.Context, propertyID, uid string) (*models.Reservation, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE property_id = ? AND external_uid = ?`, propertyID, uid)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %s/%s: %w", propertyID, uid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying reservation: %w", err)
	}
	return &res, nil
}

// ListBookedInWindow returns booked reservations overlapping [from, to), ordered by start.
func (r *ReservationRepository) ListBookedInWindow(ctx context.Context, propertyID string, from, to time.Time) ([]models.Reservation, error) {
	rows, err := r.DB().QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE property_id = ? AND status = ? AND start_date < ? AND end_date > ?
		ORDER BY start_date, id`, propertyID, models.ReservationBooked, utc(to), utc(from))
	if err != nil {
		return nil, fmt.Errorf("querying reservations: %w", err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
