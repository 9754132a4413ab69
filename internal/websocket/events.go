package websocket

import (
	"go.uber.org/zap"
)

// EventBroadcaster encodes domain events and hands them to the hub.
// A nil *EventBroadcaster is valid and drops every event.
type EventBroadcaster struct {
	hub    *Hub
	logger *zap.Logger
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub, logger *zap.Logger) *EventBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBroadcaster{hub: hub, logger: logger}
}

// SyncCompleted announces a successful source sync.
func (b *EventBroadcaster) SyncCompleted(payload SyncCompletedPayload) {
	b.broadcast(NewMessage(TypeCalendarSyncCompleted, payload))
}

// SyncFailed announces a failed source sync.
func (b *EventBroadcaster) SyncFailed(payload SyncErrorPayload) {
	b.broadcast(NewMessage(TypeCalendarSyncError, payload))
}

// CleaningAssigned announces the outcome of an auto-assign run.
func (b *EventBroadcaster) CleaningAssigned(payload CleaningAssignedPayload) {
	b.broadcast(NewMessage(TypeCleaningAssigned, payload))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	if b == nil || b.hub == nil {
		return
	}
	data, err := msg.JSON()
	if err != nil {
		b.logger.Error("encoding websocket message", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}
	b.hub.Broadcast(data)
}
