package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/host-calendar-sync/backend/internal/api/middleware"
	"github.com/host-calendar-sync/backend/internal/storage"
	"github.com/host-calendar-sync/backend/internal/storage/models"
)

// SourceRegistry manages the calendar sources attached to properties.
// *storage.SourceRepository implements it.
type SourceRegistry interface {
	Create(ctx context.Context, src *models.CalendarSource) error
	ListByProperty(ctx context.Context, propertyID string) ([]models.CalendarSource, error)
	Deactivate(ctx context.Context, id string) error
}

// PropertyLookup checks that a property exists.
type PropertyLookup interface {
	GetByID(ctx context.Context, id string) (*models.Property, error)
}

// CreateSourceRequest is the body of POST /api/properties/{id}/sources.
type CreateSourceRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ListSources returns every source of a property, including deactivated ones.
func ListSources(sources SourceRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["id"]

		list, err := sources.ListByProperty(r.Context(), propertyID)
		if err != nil {
			logger.Error("listing sources", zap.String("property_id", propertyID), zap.Error(err))
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query calendar sources")
			return
		}
		if list == nil {
			list = []models.CalendarSource{}
		}

		writeJSON(w, http.StatusOK, list)
	}
}

// CreateSource registers a new feed URL for a property.
// webcal:// links, as handed out by most channels, are stored as https://.
func CreateSource(sources SourceRegistry, properties PropertyLookup, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["id"]
		ctx := r.Context()

		var req CreateSourceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || strings.TrimSpace(req.URL) == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Name and URL are required")
			return
		}
		feedURL, err := normalizeFeedURL(req.URL)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		if _, err := properties.GetByID(ctx, propertyID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
				return
			}
			logger.Error("loading property", zap.String("property_id", propertyID), zap.Error(err))
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create calendar source")
			return
		}

		src := &models.CalendarSource{PropertyID: propertyID, Name: req.Name, URL: feedURL}
		if err := sources.Create(ctx, src); err != nil {
			logger.Error("creating source", zap.String("property_id", propertyID), zap.Error(err))
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create calendar source")
			return
		}

		writeJSON(w, http.StatusCreated, src)
	}
}

// DeactivateSource soft-deletes a source. Its reservations are kept.
func DeactivateSource(sources SourceRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		err := sources.Deactivate(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar source not found")
			return
		}
		if err != nil {
			logger.Error("deactivating source", zap.String("source_id", id), zap.Error(err))
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to deactivate calendar source")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func normalizeFeedURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), "webcal://") {
		raw = "https://" + raw[len("webcal://"):]
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", errors.New("URL must be an absolute http(s) address")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("URL scheme must be http, https or webcal")
	}
	return u.String(), nil
}
