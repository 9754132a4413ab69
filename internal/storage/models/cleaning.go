package models

import (
	"time"
)

// CleaningTask is a scheduled turnover job for a property.
type CleaningTask struct {
	ID                string    `json:"id"`
	PropertyID        string    `json:"property_id"`
	ReservationID     *string   `json:"reservation_id,omitempty"`
	ScheduledStart    time.Time `json:"scheduled_start"`
	Status            string    `json:"status"`
	AssignedCleanerID *string   `json:"assigned_cleaner_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Task status constants
const (
	TaskStatusTodo     = "todo"
	TaskStatusAssigned = "assigned"
	TaskStatusDone     = "done"
)

// CleanerAssignment puts a cleaner in a property's auto-assignment pool.
// Higher weight means higher priority.
type CleanerAssignment struct {
	PropertyID string `json:"property_id"`
	CleanerID  string `json:"cleaner_id"`
	Weight     int    `json:"weight"`
	Active     bool   `json:"active"`
}
