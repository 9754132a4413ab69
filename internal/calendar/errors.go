package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFeed is returned when a fetched body carries no VCALENDAR envelope.
	ErrMalformedFeed = errors.New("feed is not an iCalendar document")

	// ErrNoSources is returned by SyncAll when there is nothing to sync.
	ErrNoSources = errors.New("no active calendar sources")
)

// TransportError is a failed feed fetch: either the request itself failed
// (Err set) or the origin answered with a non-2xx status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PersistenceError is a store failure while reconciling one event.
type PersistenceError struct {
	SourceID string
	UID      string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting event %s from source %s: %v", e.UID, e.SourceID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
