package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	ics "github.com/arran4/golang-ical"

	"github.com/host-calendar-sync/backend/internal/storage/models"
)

// BlockLister reads host-authored blocks.
type BlockLister interface {
	ListActiveInWindow(ctx context.Context, propertyID string, from, to time.Time) ([]models.CalendarBlock, error)
}

// ReservationLister reads booked reservations.
type ReservationLister interface {
	ListBookedInWindow(ctx context.Context, propertyID string, from, to time.Time) ([]models.Reservation, error)
}

// PropertyGetter resolves the property being exported.
type PropertyGetter interface {
	GetByID(ctx context.Context, id string) (*models.Property, error)
}

// ExportOptions selects what goes into the outbound feed.
type ExportOptions struct {
	IncludeReservations bool
}

// ExportedCalendar is a rendered feed.
type ExportedCalendar struct {
	Body     string
	ETag     string
	Filename string
}

// Exporter renders a property's availability as an iCalendar feed.
type Exporter struct {
	blocks       BlockLister
	reservations ReservationLister
	properties   PropertyGetter
	cfg          ExportConfig
	loc          *time.Location
	now          func() time.Time
}

// NewExporter creates an exporter. loc is the zone reservation instants are read in
// to recover their calendar dates.
func NewExporter(blocks BlockLister, reservations ReservationLister, properties PropertyGetter, cfg ExportConfig, loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	if cfg.PastDays <= 0 {
		cfg.PastDays = 365
	}
	if cfg.FutureDays <= 0 {
		cfg.FutureDays = 548
	}
	if cfg.Domain == "" {
		cfg.Domain = "calendar-sync.local"
	}
	return &Exporter{
		blocks:       blocks,
		reservations: reservations,
		properties:   properties,
		cfg:          cfg,
		loc:          loc,
		now:          time.Now,
	}
}

// SetClock overrides the clock that anchors the export window.
func (e *Exporter) SetClock(now func() time.Time) {
	e.now = now
}

// exportEvent is one VEVENT before rendering.
type exportEvent struct {
	uid     string
	start   time.Time // civil date, midnight UTC
	end     time.Time // civil date, midnight UTC, inclusive
	stamp   time.Time
	summary string
	desc    string
}

// Export renders the feed for propertyID. Output is byte-stable for unchanged input.
func (e *Exporter) Export(ctx context.Context, propertyID string, opts ExportOptions) (*ExportedCalendar, error) {
	property, err := e.properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("loading property: %w", err)
	}

	now := e.now()
	from := now.AddDate(0, 0, -e.cfg.PastDays)
	to := now.AddDate(0, 0, e.cfg.FutureDays)

	blocks, err := e.blocks.ListActiveInWindow(ctx, propertyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing blocks: %w", err)
	}

	events := make([]exportEvent, 0, len(blocks))
	for _, b := range blocks {
		// Blocks are stored as calendar dates.
		events = append(events, exportEvent{
			uid:     fmt.Sprintf("block-%s@%s", b.ID, e.cfg.Domain),
			start:   civilDate(b.StartDate, time.UTC),
			end:     civilDate(b.EndDate, time.UTC),
			stamp:   b.UpdatedAt,
			summary: "Not available",
			desc:    b.Reason,
		})
	}

	if opts.IncludeReservations {
		reservations, err := e.reservations.ListBookedInWindow(ctx, propertyID, from, to)
		if err != nil {
			return nil, fmt.Errorf("listing reservations: %w", err)
		}
		for _, r := range reservations {
			events = append(events, exportEvent{
				uid:     fmt.Sprintf("reservation-%s@%s", r.ID, e.cfg.Domain),
				start:   civilDate(r.StartDate, e.loc),
				end:     civilDate(r.EndDate, e.loc),
				stamp:   r.UpdatedAt,
				summary: "Reserved",
			})
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].start.Equal(events[j].start) {
			return events[i].start.Before(events[j].start)
		}
		return events[i].uid < events[j].uid
	})

	body := e.render(property.Name, events)
	sum := sha256.Sum256([]byte(body))

	return &ExportedCalendar{
		Body:     body,
		ETag:     hex.EncodeToString(sum[:])[:16],
		Filename: Slug(property.Name) + ".ics",
	}, nil
}

func (e *Exporter) render(propertyName string, events []exportEvent) string {
	cal := ics.NewCalendar()
	cal.SetProductId(e.cfg.ProductID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName(propertyName)
	cal.SetXWRCalDesc("Availability for " + propertyName)

	for _, ev := range events {
		vevent := cal.AddEvent(ev.uid)
		vevent.SetDtStampTime(ev.stamp.UTC())
		vevent.SetAllDayStartAt(ev.start)
		// All-day DTEND is exclusive.
		vevent.SetAllDayEndAt(ev.end.AddDate(0, 0, 1))
		vevent.SetSummary(ev.summary)
		if ev.desc != "" {
			vevent.SetDescription(ev.desc)
		}
	}

	return cal.Serialize()
}

// civilDate returns the calendar date of t as seen in loc, at midnight UTC.
func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Slug turns a display name into a filename-safe token.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "calendar"
	}
	return slug
}
