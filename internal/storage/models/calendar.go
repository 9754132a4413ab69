// Package models contains the persisted domain records.
package models

import (
	"time"
)

// CalendarSource is one external feed linked to a property (an OTA iCal URL).
type CalendarSource struct {
	ID         string     `json:"id"`
	PropertyID string     `json:"property_id"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	Active     bool       `json:"active"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	LastStatus string     `json:"last_status"`
	LastError  *string    `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Sync status constants. An empty status means the source was never synced.
const (
	SyncStatusOK         = "ok"
	SyncStatusFetchError = "fetch_error"
	SyncStatusParseError = "parse_error"
)

// CalendarBlock is a host-authored unavailability window.
type CalendarBlock struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Reason     string    `json:"reason"`
	Active     bool      `json:"active"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
