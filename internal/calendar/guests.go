package calendar

import (
	"regexp"
	"strconv"
)

// DefaultGuestCount is used when a feed does not say how many guests are coming.
const DefaultGuestCount = 2

// guestLabel matches "Guests: 4", "guest=3", "Huéspedes: 5" and similar.
// English and Spanish labels are supported.
var guestLabel = regexp.MustCompile(`(?i)\b(?:guests?|hu[ée]sped(?:es)?)\s*[:=]\s*(\d+)`)

// GuestCount extracts a best-effort guest count from free text.
// The first positive number following a known label wins.
func GuestCount(text string) int {
	for _, m := range guestLabel.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return DefaultGuestCount
}
