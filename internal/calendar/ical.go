// Package calendar ingests OTA iCal feeds into reservations and renders the host's
// outbound feed.
package calendar

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
)

// Event status values produced by the parser.
const (
	EventConfirmed = "confirmed"
	EventCanceled  = "canceled"
)

// dateOnlyHour is the wall-clock hour given to date-only values. Feeds from booking
// channels send check-in/check-out days; 10:00 is the checkout convention.
const dateOnlyHour = 10

// NormalizedEvent is one VEVENT after parsing.
type NormalizedEvent struct {
	UID         string    `json:"uid"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Status      string    `json:"status"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	GuestCount  int       `json:"guest_count"`
}

// Canceled reports whether the feed marked the event as cancelled.
func (e NormalizedEvent) Canceled() bool {
	return e.Status == EventCanceled
}

// Parser parses iCal/ICS calendar feeds.
// It is safe for concurrent use.
type Parser struct {
	loc *time.Location
}

// NewParser creates a parser that reads floating and date-only values as wall-clock
// time in loc. TZID parameters are not resolved. A nil loc means UTC.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc}
}

// Location returns the zone used for floating times.
func (p *Parser) Location() *time.Location {
	return p.loc
}

// ParseReader reads a whole document and parses it.
// Only read failures are returned as errors.
func (p *Parser) ParseReader(r io.Reader) ([]NormalizedEvent, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading calendar: %w", err)
	}
	return p.Parse(string(body)), nil
}

// Parse turns raw calendar text into events. Malformed events (unterminated,
// missing or unparseable DTSTART, unparseable DTEND, end before start) are skipped;
// everything well formed in the same document is returned.
func (p *Parser) Parse(raw string) []NormalizedEvent {
	var (
		events  []NormalizedEvent
		current *rawEvent
		// depth counts sub-components (VALARM, ...) open inside the current event.
		depth int
	)

	for _, line := range unfold(raw) {
		name, value, ok := splitProperty(line)
		if !ok {
			continue
		}

		switch name {
		case "BEGIN":
			component := strings.ToUpper(strings.TrimSpace(value))
			if component == "VEVENT" {
				// A new VEVENT before END drops the unterminated one.
				current = &rawEvent{}
				depth = 0
				continue
			}
			if current != nil {
				depth++
			}

		case "END":
			component := strings.ToUpper(strings.TrimSpace(value))
			switch {
			case component == "VEVENT":
				if current != nil && depth == 0 {
					if ev, ok := p.build(current); ok {
						events = append(events, ev)
					}
				}
				current = nil
				depth = 0
			case component == "VCALENDAR":
				current = nil
				depth = 0
			case current != nil && depth > 0:
				depth--
			}

		default:
			if current != nil && depth == 0 {
				current.set(name, value)
			}
		}
	}

	return events
}

// rawEvent collects the undecoded property values of one VEVENT.
type rawEvent struct {
	uid         string
	dtstart     string
	dtend       string
	status      string
	summary     string
	description string
}

func (e *rawEvent) set(name, value string) {
	switch name {
	case "UID":
		e.uid = strings.TrimSpace(value)
	case "DTSTART":
		e.dtstart = strings.TrimSpace(value)
	case "DTEND":
		e.dtend = strings.TrimSpace(value)
	case "STATUS":
		e.status = value
	case "SUMMARY":
		e.summary = unescapeText(value)
	case "DESCRIPTION":
		e.description = unescapeText(value)
	}
}

func (p *Parser) build(raw *rawEvent) (NormalizedEvent, bool) {
	if raw.dtstart == "" {
		return NormalizedEvent{}, false
	}
	start, allDay, err := p.parseDateTime(raw.dtstart)
	if err != nil {
		return NormalizedEvent{}, false
	}

	var end time.Time
	if raw.dtend == "" {
		end = start
		if allDay {
			end = start.AddDate(0, 0, 1)
		}
	} else {
		end, _, err = p.parseDateTime(raw.dtend)
		if err != nil {
			return NormalizedEvent{}, false
		}
	}
	if end.Before(start) {
		return NormalizedEvent{}, false
	}

	uid := raw.uid
	if uid == "" {
		uid = fallbackUID(raw)
	}

	return NormalizedEvent{
		UID:         uid,
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Status:      normalizeStatus(raw.status),
		Summary:     raw.summary,
		Description: raw.description,
		GuestCount:  GuestCount(raw.summary + "\n" + raw.description),
	}, true
}

// parseDateTime parses DATE and DATE-TIME values. The bool result is true for DATE.
func (p *Parser) parseDateTime(value string) (time.Time, bool, error) {
	if len(value) == 8 && isDigits(value) {
		d, err := time.ParseInLocation("20060102", value, p.loc)
		if err != nil {
			return time.Time{}, false, err
		}
		return time.Date(d.Year(), d.Month(), d.Day(), dateOnlyHour, 0, 0, 0, p.loc), true, nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		return t, false, err
	}

	t, err := time.ParseInLocation("20060102T150405", value, p.loc)
	return t, false, err
}

// normalizeStatus maps STATUS to the two event states. Both spellings of the
// cancellation keyword are seen in the wild.
func normalizeStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CANCELLED", "CANCELED":
		return EventCanceled
	default:
		return EventConfirmed
	}
}

// fallbackUID derives a stable identifier for events that ship without a UID,
// so re-syncing the same feed still hits the same reservation row.
func fallbackUID(raw *rawEvent) string {
	sum := sha256.Sum256([]byte(raw.dtstart + "|" + raw.dtend + "|" + raw.summary))
	return "gen-" + hex.EncodeToString(sum[:8])
}

// LooksLikeCalendar reports whether raw carries a VCALENDAR envelope.
func LooksLikeCalendar(raw string) bool {
	return strings.Contains(strings.ToUpper(raw), "BEGIN:VCALENDAR")
}

// unfold splits raw into logical lines, joining folded continuation lines
// (those starting with a space or tab) onto the previous line.
func unfold(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			if len(lines) > 0 {
				lines[len(lines)-1] += line[1:]
			}
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// splitProperty splits "NAME;PARAM=x:value" into the upper-cased name and the value.
// Colons inside quoted parameter values do not end the name part.
func splitProperty(line string) (string, string, bool) {
	inQuotes := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuotes = !inQuotes
		case ':':
			if inQuotes {
				continue
			}
			name := line[:i]
			if semi := strings.IndexByte(name, ';'); semi != -1 {
				name = name[:semi]
			}
			return strings.ToUpper(strings.TrimSpace(name)), line[i+1:], true
		}
	}
	return "", "", false
}

var textUnescaper = strings.NewReplacer(
	`\\`, `\`,
	`\n`, "\n",
	`\N`, "\n",
	`\,`, ",",
	`\;`, ";",
)

func unescapeText(value string) string {
	return textUnescaper.Replace(value)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
