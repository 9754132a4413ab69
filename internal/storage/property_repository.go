package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/host-calendar-sync/backend/internal/storage/models"
)

// PropertyRepository reads properties and their owning hosts.
type PropertyRepository struct {
	BaseRepository
}

// NewPropertyRepository creates a new property repository.
func NewPropertyRepository(db *DB) *PropertyRepository {
	return &PropertyRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// CreateHost inserts a host. An empty id is generated.
func (r *PropertyRepository) CreateHost(ctx context.Context, h *models.Host) error {
	if h.ID == "" {
		h.ID = GenerateID()
	}
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO hosts (id, name, export_token) VALUES (?, ?, ?)
	`, h.ID, h.Name, h.ExportToken)
	if err != nil {
		return fmt.Errorf("inserting host: %w", err)
	}
	return nil
}

// CreateProperty inserts a property. An empty id is generated.
func (r *PropertyRepository) CreateProperty(ctx context.Context, p *models.Property) error {
	if p.ID == "" {
		p.ID = GenerateID()
	}
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO properties (id, host_id, name) VALUES (?, ?, ?)
	`, p.ID, p.HostID, p.Name)
	if err != nil {
		return fmt.Errorf("inserting property: %w", err)
	}
	return nil
}

// GetByID retrieves a property by its ID.
func (r *PropertyRepository) GetByID(ctx context.Context, id string) (*models.Property, error) {
	var p models.Property
	err := r.DB().QueryRowContext(ctx, `
		SELECT id, host_id, name FROM properties WHERE id = ?
	`, id).Scan(&p.ID, &p.HostID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("property %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying property: %w", err)
	}
	return &p, nil
}

// ExportToken returns the export token of the host owning the property.
func (r *PropertyRepository) ExportToken(ctx context.Context, propertyID string) (string, error) {
	var token string
	err := r.DB().QueryRowContext(ctx, `
		SELECT h.export_token FROM properties p JOIN hosts h ON h.id = p.host_id WHERE p.id = ?
	`, propertyID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("property %s: %w", propertyID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying export token: %w", err)
	}
	return token, nil
}
