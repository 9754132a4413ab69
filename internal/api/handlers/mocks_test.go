package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/host-calendar-sync/backend/internal/api/middleware"
	"github.com/host-calendar-sync/backend/internal/calendar"
	"github.com/host-calendar-sync/backend/internal/cleaning"
	"github.com/host-calendar-sync/backend/internal/storage/models"
)

type mockSyncer struct{ mock.Mock }

func (m *mockSyncer) SyncAll(ctx context.Context, req calendar.SyncRequest) (*calendar.BatchResult, error) {
	args := m.Called(ctx, req)
	batch, _ := args.Get(0).(*calendar.BatchResult)
	return batch, args.Error(1)
}

func (m *mockSyncer) SyncSourceByID(ctx context.Context, id string, debug bool) (calendar.SourceResult, error) {
	args := m.Called(ctx, id, debug)
	return args.Get(0).(calendar.SourceResult), args.Error(1)
}

type mockAssigner struct{ mock.Mock }

func (m *mockAssigner) AutoAssign(ctx context.Context, propertyID string, from, to time.Time) (*cleaning.AssignResult, error) {
	args := m.Called(ctx, propertyID, from, to)
	result, _ := args.Get(0).(*cleaning.AssignResult)
	return result, args.Error(1)
}

type mockExporter struct{ mock.Mock }

func (m *mockExporter) Export(ctx context.Context, propertyID string, opts calendar.ExportOptions) (*calendar.ExportedCalendar, error) {
	args := m.Called(ctx, propertyID, opts)
	cal, _ := args.Get(0).(*calendar.ExportedCalendar)
	return cal, args.Error(1)
}

type mockTokens struct{ mock.Mock }

func (m *mockTokens) ExportToken(ctx context.Context, propertyID string) (string, error) {
	args := m.Called(ctx, propertyID)
	return args.String(0), args.Error(1)
}

type mockSources struct{ mock.Mock }

func (m *mockSources) Create(ctx context.Context, src *models.CalendarSource) error {
	args := m.Called(ctx, src)
	if args.Error(0) == nil {
		src.ID = "src-new"
		src.Active = true
	}
	return args.Error(0)
}

func (m *mockSources) ListByProperty(ctx context.Context, propertyID string) ([]models.CalendarSource, error) {
	args := m.Called(ctx, propertyID)
	list, _ := args.Get(0).([]models.CalendarSource)
	return list, args.Error(1)
}

func (m *mockSources) Deactivate(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockProperties struct{ mock.Mock }

func (m *mockProperties) GetByID(ctx context.Context, id string) (*models.Property, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Property)
	return p, args.Error(1)
}

// serve routes a single request through a mux router so path variables resolve.
func serve(h http.HandlerFunc, method, pattern, target, body string, header ...string) *httptest.ResponseRecorder {
	r := mux.NewRouter()
	r.HandleFunc(pattern, h).Methods(method)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorResponse {
	t.Helper()
	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}
