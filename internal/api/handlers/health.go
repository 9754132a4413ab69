package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/host-calendar-sync/backend/internal/storage"
	"github.com/host-calendar-sync/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, HealthResponse{Status: status, DBConnected: dbConnected})
	}
}

// NextRunner reports when the periodic sync fires next.
type NextRunner interface {
	NextRun() *time.Time
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	ActiveSources      int        `json:"active_sources"`
	FailingSources     int        `json:"failing_sources"`
	BookedReservations int        `json:"booked_reservations"`
	UnassignedTasks    int        `json:"unassigned_tasks"`
	WebSocketClients   int        `json:"websocket_clients"`
	NextSyncAt         *time.Time `json:"next_sync_at,omitempty"`
}

// Status returns a handler that provides system status information.
// Counting failures are logged and reported as zero.
func Status(db *storage.DB, hub *websocket.Hub, scheduler NextRunner, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		count := func(name, query string) int {
			var n int
			if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
				logger.Warn("status count failed", zap.String("count", name), zap.Error(err))
			}
			return n
		}

		response := StatusResponse{
			ActiveSources:      count("active_sources", "SELECT COUNT(*) FROM calendar_sources WHERE active = 1"),
			FailingSources:     count("failing_sources", "SELECT COUNT(*) FROM calendar_sources WHERE active = 1 AND last_status IN ('fetch_error', 'parse_error')"),
			BookedReservations: count("booked_reservations", "SELECT COUNT(*) FROM reservations WHERE status = 'booked'"),
			UnassignedTasks:    count("unassigned_tasks", "SELECT COUNT(*) FROM cleaning_tasks WHERE status = 'todo' AND assigned_cleaner_id IS NULL"),
		}
		if hub != nil {
			response.WebSocketClients = hub.ClientCount()
		}
		if scheduler != nil {
			response.NextSyncAt = scheduler.NextRun()
		}

		writeJSON(w, http.StatusOK, response)
	}
}
