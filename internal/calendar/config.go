package calendar

import (
	"fmt"
	"time"
)

// SyncConfig configures feed fetching and reconciliation.
type SyncConfig struct {
	// Timezone is the IANA zone used for date-only and floating feed values.
	Timezone string `mapstructure:"timezone" default:"UTC"`
	// UserAgent is sent with every feed request.
	UserAgent string `mapstructure:"user_agent" default:"host-calendar-sync/1.0"`
	// FetchTimeoutSeconds bounds a single feed request.
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds" default:"30"`
	// MaxFeedBytes caps how much of a feed body is read.
	MaxFeedBytes int64 `mapstructure:"max_feed_bytes" default:"10485760"`
	// Concurrency is the number of sources synced in parallel by SyncAll.
	Concurrency int `mapstructure:"concurrency" default:"4"`
	// IntervalMinutes schedules a periodic SyncAll. Zero disables it.
	IntervalMinutes int `mapstructure:"interval_minutes" default:"15"`
	// DebugSamples is how many parsed events a debug sync returns per source.
	DebugSamples int `mapstructure:"debug_samples" default:"5"`
}

// Location resolves Timezone.
func (c SyncConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading sync timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// FetchTimeout returns the per-request timeout.
func (c SyncConfig) FetchTimeout() time.Duration {
	if c.FetchTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// ExportConfig configures the outbound feed.
type ExportConfig struct {
	// Domain is the right-hand side of exported UIDs.
	Domain string `mapstructure:"domain" default:"calendar-sync.local"`
	// ProductID is written as PRODID.
	ProductID string `mapstructure:"product_id" default:"-//Host Calendar Sync//Export 1.0//EN"`
	// PastDays and FutureDays bound the exported window around now.
	PastDays   int `mapstructure:"past_days" default:"365"`
	FutureDays int `mapstructure:"future_days" default:"548"`
}
