// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/host-calendar-sync/backend/internal/api/handlers"
	"github.com/host-calendar-sync/backend/internal/api/middleware"
	"github.com/host-calendar-sync/backend/internal/storage"
	"github.com/host-calendar-sync/backend/internal/websocket"
)

// Services bundles everything the router hands to its handlers.
type Services struct {
	DB         *storage.DB
	Hub        *websocket.Hub
	Sync       handlers.Syncer
	Scheduler  handlers.NextRunner
	Exporter   handlers.CalendarExporter
	Assigner   handlers.Assigner
	Sources    handlers.SourceRegistry
	Properties interface {
		handlers.PropertyLookup
		handlers.TokenStore
	}
	// Location resolves date-only bounds of assignment requests.
	Location  *time.Location
	Logger    *zap.Logger
	StaticDir string
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}

	r := mux.NewRouter()
	r.Use(middleware.Logging(logger))
	r.Use(middleware.ErrorRecovery(logger))

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods(http.MethodGet)
	api.HandleFunc("/status", handlers.Status(s.DB, s.Hub, s.Scheduler, logger)).Methods(http.MethodGet)

	api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub, logger)).Methods(http.MethodGet)

	// Sync endpoints
	api.HandleFunc("/sync", handlers.TriggerSync(s.Sync, logger)).Methods(http.MethodPost)
	api.HandleFunc("/sources/{id}/sync", handlers.SyncSource(s.Sync, logger)).Methods(http.MethodPost)

	// Source registry
	api.HandleFunc("/properties/{id}/sources", handlers.ListSources(s.Sources, logger)).Methods(http.MethodGet)
	api.HandleFunc("/properties/{id}/sources", handlers.CreateSource(s.Sources, s.Properties, logger)).Methods(http.MethodPost)
	api.HandleFunc("/sources/{id}", handlers.DeactivateSource(s.Sources, logger)).Methods(http.MethodDelete)

	// Outbound feed
	api.HandleFunc("/properties/{id}/calendar.ics", handlers.ExportCalendar(s.Exporter, s.Properties, logger)).
		Methods(http.MethodGet, http.MethodHead)

	// Cleaning
	api.HandleFunc("/cleaning/auto-assign", handlers.AutoAssign(s.Assigner, loc, logger)).Methods(http.MethodPost)

	if s.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.StaticDir)))
	}

	return r
}
