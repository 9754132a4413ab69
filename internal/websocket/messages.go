package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeCalendarSyncCompleted MessageType = "calendar.sync_completed"
	TypeCalendarSyncError     MessageType = "calendar.sync_error"
	TypeCleaningAssigned      MessageType = "cleaning.assigned"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncCompletedPayload is the payload for calendar.sync_completed events.
type SyncCompletedPayload struct {
	SourceID    string `json:"source_id"`
	PropertyID  string `json:"property_id"`
	EventsFound int    `json:"events_found"`
	Inserted    int    `json:"inserted"`
	Updated     int    `json:"updated"`
	Unchanged   int    `json:"unchanged"`
	Canceled    int    `json:"canceled"`
}

// SyncErrorPayload is the payload for calendar.sync_error events.
type SyncErrorPayload struct {
	SourceID   string `json:"source_id"`
	PropertyID string `json:"property_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// CleaningAssignedPayload is the payload for cleaning.assigned events.
type CleaningAssignedPayload struct {
	PropertyID    string    `json:"property_id"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	AssignedCount int       `json:"assigned_count"`
	TotalTasks    int       `json:"total_tasks"`
	CleanersUsed  int       `json:"cleaners_used"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
