package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/host-calendar-sync/backend/internal/api/middleware"
	"github.com/host-calendar-sync/backend/internal/cleaning"
)

// Assigner auto-assigns cleaning tasks. *cleaning.Scheduler implements it.
type Assigner interface {
	AutoAssign(ctx context.Context, propertyID string, from, to time.Time) (*cleaning.AssignResult, error)
}

// AutoAssignRequest is the body of POST /api/cleaning/auto-assign.
// From is inclusive and To exclusive; both accept YYYY-MM-DD or RFC 3339.
type AutoAssignRequest struct {
	PropertyID string `json:"property_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// AutoAssign distributes unassigned tasks in the range over the property's cleaners.
// Date-only bounds are midnight in loc.
func AutoAssign(assigner Assigner, loc *time.Location, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AutoAssignRequest
		if err := decodeJSON(w, r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		from, err := parseDay(req.From, loc)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Invalid from: "+err.Error())
			return
		}
		to, err := parseDay(req.To, loc)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Invalid to: "+err.Error())
			return
		}

		result, err := assigner.AutoAssign(r.Context(), req.PropertyID, from, to)
		switch {
		case errors.Is(err, cleaning.ErrMissingProperty), errors.Is(err, cleaning.ErrInvalidRange):
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		case errors.Is(err, cleaning.ErrNoEligibleWorkers):
			middleware.WriteError(w, http.StatusUnprocessableEntity, middleware.ErrNoEligibleWorkers, "No active cleaners for this property")
			return
		case err != nil:
			logger.Error("auto-assign failed", zap.String("property_id", req.PropertyID), zap.Error(err))
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to assign cleaning tasks")
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func parseDay(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("required")
	}
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", value)
	}
	return t, nil
}
