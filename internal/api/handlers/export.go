package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/host-calendar-sync/backend/internal/api/middleware"
	"github.com/host-calendar-sync/backend/internal/calendar"
	"github.com/host-calendar-sync/backend/internal/storage"
)

// CalendarExporter renders a property's outbound feed. *calendar.Exporter implements it.
type CalendarExporter interface {
	Export(ctx context.Context, propertyID string, opts calendar.ExportOptions) (*calendar.ExportedCalendar, error)
}

// TokenStore resolves the export token guarding a property's feed.
type TokenStore interface {
	ExportToken(ctx context.Context, propertyID string) (string, error)
}

// ExportCalendar serves GET /api/properties/{id}/calendar.ics?token=...
// Unknown properties and bad tokens both answer 401 so property ids cannot be probed.
func ExportCalendar(exporter CalendarExporter, tokens TokenStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["id"]
		ctx := r.Context()

		given := r.URL.Query().Get("token")
		expected, err := tokens.ExportToken(ctx, propertyID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Error("loading export token", zap.String("property_id", propertyID), zap.Error(err))
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to export calendar")
			return
		}
		if given == "" || expected == "" || subtle.ConstantTimeCompare([]byte(given), []byte(expected)) != 1 {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Invalid export token")
			return
		}

		includeReservations, _ := strconv.ParseBool(r.URL.Query().Get("reservations"))
		cal, err := exporter.Export(ctx, propertyID, calendar.ExportOptions{IncludeReservations: includeReservations})
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
			return
		}
		if err != nil {
			logger.Error("exporting calendar", zap.String("property_id", propertyID), zap.Error(err))
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to export calendar")
			return
		}

		etag := `"` + cal.ETag + `"`
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "private, max-age=300")
		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, cal.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(cal.Body)))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write([]byte(cal.Body))
		}
	}
}

// etagMatches checks an If-None-Match header, which may list several tags or be "*".
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
