package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Fetcher downloads calendar feeds.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewFetcher creates a fetcher. A nil client gets a fresh one with timeout.
func NewFetcher(client *http.Client, cfg SyncConfig) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout()}
	}
	maxBytes := cfg.MaxFeedBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Fetcher{
		client:    client,
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
	}
}

// Fetch GETs feedURL and returns the body. Failures are *TransportError.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return "", &TransportError{URL: redactURL(feedURL), Err: stripURL(err)}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/calendar, text/plain;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &TransportError{URL: redactURL(feedURL), Err: stripURL(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return "", &TransportError{URL: redactURL(feedURL), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", &TransportError{URL: redactURL(feedURL), StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	return string(body), nil
}

// stripURL drops the *url.Error wrapper, which repeats the full unredacted URL.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

// redactURL strips the query string and credentials; OTA export links embed
// secret tokens there.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	u.Fragment = ""
	return u.String()
}
