package models

import (
	"time"
)

// Reservation is a booking reconciled from an external feed.
// (PropertyID, ExternalUID) is unique.
type Reservation struct {
	ID          string    `json:"id"`
	PropertyID  string    `json:"property_id"`
	SourceID    string    `json:"source_id"`
	ExternalUID string    `json:"external_uid"`
	GuestName   string    `json:"guest_name"`
	GuestCount  int       `json:"guest_count"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Reservation status constants
const (
	ReservationBooked   = "booked"
	ReservationCanceled = "canceled"
)

// SameBooking reports whether two reservations carry the same synced payload.
// Identity and bookkeeping timestamps are ignored.
func (r *Reservation) SameBooking(other *Reservation) bool {
	return r.SourceID == other.SourceID &&
		r.GuestName == other.GuestName &&
		r.GuestCount == other.GuestCount &&
		r.StartDate.Equal(other.StartDate) &&
		r.EndDate.Equal(other.EndDate) &&
		r.Status == other.Status
}

// UpsertOutcome classifies what an upsert did to the stored row.
type UpsertOutcome int

const (
	UpsertInserted UpsertOutcome = iota
	UpsertChanged
	UpsertUnchanged
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertInserted:
		return "inserted"
	case UpsertChanged:
		return "changed"
	default:
		return "unchanged"
	}
}
