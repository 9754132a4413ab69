package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"github.com/host-calendar-sync/backend/internal/api/middleware"
	"github.com/host-calendar-sync/backend/internal/calendar"
	"github.com/host-calendar-sync/backend/internal/storage"
)

const exportPattern = "/api/properties/{id}/calendar.ics"

func exportFixture() *calendar.ExportedCalendar {
	return &calendar.ExportedCalendar{
		Body:     "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n",
		ETag:     "0123456789abcdef",
		Filename: "casa-azul.ics",
	}
}

func TestExportCalendar(t *testing.T) {
	t.Run("serves feed with headers", func(t *testing.T) {
		tokens := &mockTokens{}
		tokens.On("ExportToken", mock.Anything, "prop-1").Return("s3cret", nil)
		exporter := &mockExporter{}
		exporter.On("Export", mock.Anything, "prop-1", calendar.ExportOptions{IncludeReservations: true}).
			Return(exportFixture(), nil)

		h := ExportCalendar(exporter, tokens, zaptest.NewLogger(t))
		rec := serve(h, http.MethodGet, exportPattern, "/api/properties/prop-1/calendar.ics?token=s3cret&reservations=true", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, `"0123456789abcdef"`, rec.Header().Get("ETag"))
		assert.Equal(t, `attachment; filename="casa-azul.ics"`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, exportFixture().Body, rec.Body.String())
		exporter.AssertExpectations(t)
	})

	t.Run("matching etag is not modified", func(t *testing.T) {
		tokens := &mockTokens{}
		tokens.On("ExportToken", mock.Anything, "prop-1").Return("s3cret", nil)
		exporter := &mockExporter{}
		exporter.On("Export", mock.Anything, "prop-1", calendar.ExportOptions{}).Return(exportFixture(), nil)

		h := ExportCalendar(exporter, tokens, zaptest.NewLogger(t))
		rec := serve(h, http.MethodGet, exportPattern, "/api/properties/prop-1/calendar.ics?token=s3cret", "",
			"If-None-Match", `"stale", "0123456789abcdef"`)

		assert.Equal(t, http.StatusNotModified, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("token checks", func(t *testing.T) {
		tests := []struct {
			name   string
			target string
			stored string
			err    error
		}{
			{name: "missing token", target: "/api/properties/prop-1/calendar.ics", stored: "s3cret"},
			{name: "wrong token", target: "/api/properties/prop-1/calendar.ics?token=guess", stored: "s3cret"},
			{name: "host without token", target: "/api/properties/prop-1/calendar.ics?token=x", stored: ""},
			{
				name:   "unknown property",
				target: "/api/properties/prop-1/calendar.ics?token=s3cret",
				err:    fmt.Errorf("property prop-1: %w", storage.ErrNotFound),
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tokens := &mockTokens{}
				tokens.On("ExportToken", mock.Anything, "prop-1").Return(tt.stored, tt.err)
				exporter := &mockExporter{}

				rec := serve(ExportCalendar(exporter, tokens, zaptest.NewLogger(t)), http.MethodGet, exportPattern, tt.target, "")

				assert.Equal(t, http.StatusUnauthorized, rec.Code)
				assert.Equal(t, middleware.ErrUnauthorized, decodeError(t, rec).Error)
				exporter.AssertNotCalled(t, "Export", mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("export failure", func(t *testing.T) {
		tokens := &mockTokens{}
		tokens.On("ExportToken", mock.Anything, "prop-1").Return("s3cret", nil)
		exporter := &mockExporter{}
		exporter.On("Export", mock.Anything, "prop-1", calendar.ExportOptions{}).Return(nil, errors.New("query failed"))

		h := ExportCalendar(exporter, tokens, zaptest.NewLogger(t))
		rec := serve(h, http.MethodGet, exportPattern, "/api/properties/prop-1/calendar.ics?token=s3cret", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{header: "", want: false},
		{header: `"abc"`, want: true},
		{header: `W/"abc"`, want: true},
		{header: `"x", "abc"`, want: true},
		{header: "*", want: true},
		{header: `"abd"`, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, etagMatches(tt.header, `"abc"`))
		})
	}
}
