package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/host-calendar-sync/backend/internal/storage/models"
)

// CleaningRepository provides data access for cleaning tasks and the cleaner pool.
type CleaningRepository struct {
	BaseRepository
}

// NewCleaningRepository creates a new cleaning repository.
func NewCleaningRepository(db *DB) *CleaningRepository {
	return &CleaningRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// CreateTask inserts a cleaning task in the todo state.
func (r *CleaningRepository) CreateTask(ctx context.Context, task *models.CleaningTask) error {
	task.ID = GenerateID()
	task.CreatedAt = r.Now()
	task.UpdatedAt = task.CreatedAt
	if task.Status == "" {
		task.Status = models.TaskStatusTodo
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO cleaning_tasks (
			id, property_id, reservation_id, scheduled_start, status, assigned_cleaner_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID, task.PropertyID, task.ReservationID, utc(task.ScheduledStart), task.Status,
		task.AssignedCleanerID, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting cleaning task: %w", err)
	}
	return nil
}

// SaveAssignment adds a cleaner to a property's pool or updates its weight and flag.
func (r *CleaningRepository) SaveAssignment(ctx context.Context, a models.CleanerAssignment) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO cleaner_assignments (property_id, cleaner_id, weight, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(property_id, cleaner_id) DO UPDATE SET
			weight = excluded.weight,
			active = excluded.active
	`, a.PropertyID, a.CleanerID, a.Weight, a.Active)
	if err != nil {
		return fmt.Errorf("saving cleaner assignment: %w", err)
	}
	return nil
}

// ListActiveAssignments returns the property's active pool, highest weight first.
// Equal weights fall back to cleaner id so the order is stable.
func (r *CleaningRepository) ListActiveAssignments(ctx context.Context, propertyID string) ([]models.CleanerAssignment, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT property_id, cleaner_id, weight, active
		FROM cleaner_assignments
		WHERE property_id = ? AND active = 1
		ORDER BY weight DESC, cleaner_id ASC
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying cleaner assignments: %w", err)
	}
	defer rows.Close()

	var out []models.CleanerAssignment
	for rows.Next() {
		var a models.CleanerAssignment
		if err := rows.Scan(&a.PropertyID, &a.CleanerID, &a.Weight, &a.Active); err != nil {
			return nil, fmt.Errorf("scanning cleaner assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListUnassignedTasks returns todo tasks without a cleaner scheduled in [from, to),
// ordered by scheduled_start then id.
func (r *CleaningRepository) ListUnassignedTasks(ctx context.Context, propertyID string, from, to time.Time) ([]models.CleaningTask, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, property_id, reservation_id, scheduled_start, status, assigned_cleaner_id, created_at, updated_at
		FROM cleaning_tasks
		WHERE property_id = ? AND status = ? AND assigned_cleaner_id IS NULL
		  AND scheduled_start >= ? AND scheduled_start < ?
		ORDER BY scheduled_start ASC, id ASC
	`, propertyID, models.TaskStatusTodo, utc(from), utc(to))
	if err != nil {
		return nil, fmt.Errorf("querying cleaning tasks: %w", err)
	}
	defer rows.Close()

	var out []models.CleaningTask
	for rows.Next() {
		var t models.CleaningTask
		if err := rows.Scan(
			&t.ID, &t.PropertyID, &t.ReservationID, &t.ScheduledStart, &t.Status,
			&t.AssignedCleanerID, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning cleaning task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AssignTask gives an unassigned todo task to a cleaner. A task that was assigned
// in the meantime is reported as ErrNotFound and left untouched.
func (r *CleaningRepository) AssignTask(ctx context.Context, taskID, cleanerID string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE cleaning_tasks SET assigned_cleaner_id = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND assigned_cleaner_id IS NULL
	`, cleanerID, models.TaskStatusAssigned, r.Now(), taskID, models.TaskStatusTodo)
	if err != nil {
		return fmt.Errorf("assigning cleaning task: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("unassigned cleaning task %s: %w", taskID, ErrNotFound)
	}
	return nil
}
