package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/host-calendar-sync/backend/internal/api/middleware"
	"github.com/host-calendar-sync/backend/internal/calendar"
	"github.com/host-calendar-sync/backend/internal/storage"
)

// Syncer runs feed syncs. *calendar.SyncService implements it.
type Syncer interface {
	SyncAll(ctx context.Context, req calendar.SyncRequest) (*calendar.BatchResult, error)
	SyncSourceByID(ctx context.Context, id string, debug bool) (calendar.SourceResult, error)
}

// SyncRequest is the body of POST /api/sync.
type SyncRequest struct {
	PropertyID string `json:"property_id"`
	All        bool   `json:"all"`
	Debug      bool   `json:"debug"`
}

// TriggerSync syncs one property's sources, or every active source when all is set.
// Per-source failures are reported inside the 200 response.
func TriggerSync(syncer Syncer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SyncRequest
		if err := decodeJSON(w, r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.PropertyID == "" && !req.All {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Either property_id or all is required")
			return
		}

		syncReq := calendar.SyncRequest{Debug: req.Debug}
		if !req.All {
			syncReq.PropertyIDs = []string{req.PropertyID}
		}

		batch, err := syncer.SyncAll(r.Context(), syncReq)
		switch {
		case errors.Is(err, calendar.ErrNoSources):
			middleware.WriteError(w, http.StatusUnprocessableEntity, middleware.ErrNoSources, "No active calendar sources to sync")
			return
		case err != nil && batch == nil:
			logger.Error("sync failed", zap.Error(err))
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to sync calendars")
			return
		case err != nil:
			logger.Warn("sync interrupted", zap.Error(err))
		}

		writeJSON(w, http.StatusOK, batch)
	}
}

// SyncSource syncs a single source. ?debug=true includes parsed samples.
func SyncSource(syncer Syncer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		debug, _ := strconv.ParseBool(r.URL.Query().Get("debug"))

		result, err := syncer.SyncSourceByID(r.Context(), id, debug)
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar source not found")
			return
		}
		if err != nil {
			logger.Error("loading source for sync", zap.String("source_id", id), zap.Error(err))
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to sync calendar source")
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}
