package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/host-calendar-sync/backend/internal/storage/models"
)

// feedServer serves calendar bodies by path. Bodies can be swapped between syncs.
type feedServer struct {
	*httptest.Server
	mu         sync.Mutex
	bodies     map[string]string
	statuses   map[string]int
	userAgents []string
}

func newFeedServer(t *testing.T) *feedServer {
	fs := &feedServer{bodies: map[string]string{}, statuses: map[string]int{}}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.userAgents = append(fs.userAgents, r.UserAgent())
		if status, ok := fs.statuses[r.URL.Path]; ok {
			w.WriteHeader(status)
			return
		}
		body, ok := fs.bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) serve(path, body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.bodies[path] = body
	delete(fs.statuses, path)
}

func (fs *feedServer) fail(path string, status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.statuses[path] = status
}

func source(id, propertyID, url string) models.CalendarSource {
	return models.CalendarSource{ID: id, PropertyID: propertyID, Name: id, URL: url, Active: true}
}

var syncTime = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

func newTestSyncService(t *testing.T, sources *fakeSourceStore, reservations *fakeReservationStore, cfg SyncConfig) *SyncService {
	t.Helper()
	if cfg.UserAgent == "" {
		cfg.UserAgent = "host-calendar-sync-test/1.0"
	}
	svc := NewSyncService(
		sources,
		reservations,
		NewFetcher(&http.Client{Timeout: 2 * time.Second}, cfg),
		NewParser(time.UTC),
		nil,
		zaptest.NewLogger(t),
		cfg,
	)
	svc.SetClock(func() time.Time { return syncTime })
	return svc
}

var twoBookings = feed(
	vevent("UID:a", "DTSTART;VALUE=DATE:20250301", "DTEND;VALUE=DATE:20250305", "SUMMARY:Guests: 3"),
	vevent("UID:b", "DTSTART;VALUE=DATE:20250310", "DTEND;VALUE=DATE:20250312", "STATUS:CANCELLED"),
)

func TestSyncService_SyncSource(t *testing.T) {
	t.Run("Resync is idempotent", func(t *testing.T) {
		fs := newFeedServer(t)
		fs.serve("/airbnb.ics", twoBookings)
		sources := newFakeSourceStore(source("src-1", "prop-1", fs.URL+"/airbnb.ics"))
		reservations := newFakeReservationStore()
		svc := newTestSyncService(t, sources, reservations, SyncConfig{})

		first := svc.SyncSource(context.Background(), sources.get("src-1"))
		require.NoError(t, first.Err)
		assert.Equal(t, 2, first.EventsFound)
		assert.Equal(t, 1, first.Inserted)
		assert.Equal(t, 1, first.Canceled)

		second := svc.SyncSource(context.Background(), sources.get("src-1"))
		require.NoError(t, second.Err)
		assert.Equal(t, 2, second.EventsFound)
		assert.Equal(t, 0, second.Inserted)
		assert.Equal(t, 0, second.Canceled)
		assert.Equal(t, 2, second.Unchanged)

		assert.Equal(t, 2, reservations.count("prop-1"))
		assert.Equal(t, 2, reservations.writes)

		res, ok := reservations.get("prop-1", "a")
		require.True(t, ok)
		assert.Equal(t, models.ReservationBooked, res.Status)
		assert.Equal(t, 3, res.GuestCount)
		assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), res.StartDate)
		assert.Equal(t, time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC), res.EndDate)

		res, ok = reservations.get("prop-1", "b")
		require.True(t, ok)
		assert.Equal(t, models.ReservationCanceled, res.Status)

		src := sources.get("src-1")
		assert.Equal(t, models.SyncStatusOK, src.LastStatus)
		assert.Nil(t, src.LastError)
		require.NotNil(t, src.LastSyncAt)
		assert.Equal(t, syncTime, *src.LastSyncAt)
	})

	t.Run("Cancellation updates existing booking", func(t *testing.T) {
		fs := newFeedServer(t)
		fs.serve("/feed.ics", feed(vevent("UID:a", "DTSTART;VALUE=DATE:20250301", "DTEND;VALUE=DATE:20250305")))
		sources := newFakeSourceStore(source("src-1", "prop-1", fs.URL+"/feed.ics"))
		reservations := newFakeReservationStore()
		svc := newTestSyncService(t, sources, reservations, SyncConfig{})

		first := svc.SyncSource(context.Background(), sources.get("src-1"))
		assert.Equal(t, 1, first.Inserted)

		fs.serve("/feed.ics", feed(vevent("UID:a", "DTSTART;VALUE=DATE:20250301", "DTEND;VALUE=DATE:20250305", "STATUS:CANCELLED")))
		second := svc.SyncSource(context.Background(), sources.get("src-1"))
		require.NoError(t, second.Err)
		assert.Equal(t, 1, second.Canceled)
		assert.Equal(t, 0, second.Updated)

		res, _ := reservations.get("prop-1", "a")
		assert.Equal(t, models.ReservationCanceled, res.Status)
		assert.Equal(t, 1, reservations.count("prop-1"))
	})

	t.Run("Changed dates count as updated", func(t *testing.T) {
		fs := newFeedServer(t)
		fs.serve("/feed.ics", feed(vevent("UID:a", "DTSTART;VALUE=DATE:20250301", "DTEND;VALUE=DATE:20250305")))
		sources := newFakeSourceStore(source("src-1", "prop-1", fs.URL+"/feed.ics"))
		reservations := newFakeReservationStore()
		svc := newTestSyncService(t, sources, reservations, SyncConfig{})

		svc.SyncSource(context.Background(), sources.get("src-1"))
		fs.serve("/feed.ics", feed(vevent("UID:a", "DTSTART;VALUE=DATE:20250302", "DTEND;VALUE=DATE:20250306")))
		result := svc.SyncSource(context.Background(), sources.get("src-1"))

		assert.Equal(t, 1, result.Updated)
		res, _ := reservations.get("prop-1", "a")
		assert.Equal(t, time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC), res.StartDate)
	})

	t.Run("Non-2xx is a transport error", func(t *testing.T) {
		fs := newFeedServer(t)
		fs.fail("/feed.ics", http.StatusBadGateway)
		sources := newFakeSourceStore(source("src-1", "prop-1", fs.URL+"/feed.ics"))
		reservations := newFakeReservationStore()
		svc := newTestSyncService(t, sources, reservations, SyncConfig{})

		result := svc.SyncSource(context.Background(), sources.get("src-1"))

		var te *TransportError
		require.ErrorAs(t, result.Err, &te)
		assert.Equal(t, http.StatusBadGateway, te.StatusCode)
		assert.False(t, result.OK())
		assert.NotEmpty(t, result.Error)

		src := sources.get("src-1")
		assert.Equal(t, models.SyncStatusFetchError, src.LastStatus)
		require.NotNil(t, src.LastError)
		assert.Contains(t, *src.LastError, "502")
		assert.Nil(t, src.LastSyncAt)
		assert.Zero(t, reservations.count("prop-1"))
	})

	t.Run("Unreachable origin is a transport error", func(t *testing.T) {
		fs := newFeedServer(t)
		url := fs.URL + "/feed.ics"
		fs.Close()
		sources := newFakeSourceStore(source("src-1", "prop-1", url))
		svc := newTestSyncService(t, sources, newFakeReservationStore(), SyncConfig{})

		result := svc.SyncSource(context.Background(), sources.get("src-1"))

		var te *TransportError
		require.ErrorAs(t, result.Err, &te)
		assert.Error(t, te.Err)
		assert.Equal(t, models.SyncStatusFetchError, sources.get("src-1").LastStatus)
	})

	t.Run("Body without calendar is a parse error", func(t *testing.T) {
		fs := newFeedServer(t)
		fs.serve("/feed.ics", "<html>Please log in</html>")
		sources := newFakeSourceStore(source("src-1", "prop-1", fs.URL+"/feed.ics"))
		svc := newTestSyncService(t, sources, newFakeReservationStore(), SyncConfig{})

		result := svc.SyncSource(context.Background(), sources.get("src-1"))

		assert.ErrorIs(t, result.Err, ErrMalformedFeed)
		assert.Equal(t, models.SyncStatusParseError, sources.get("src-1").LastStatus)
	})

	t.Run("Store failure aborts remaining events", func(t *testing.T) {
		fs := newFeedServer(t)
		fs.serve("/feed.ics", feed(
			vevent("UID:a", "DTSTART;VALUE=DATE:20250301"),
			vevent("UID:b", "DTSTART;VALUE=DATE:20250302"),
			vevent("UID:c", "DTSTART;VALUE=DATE:20250303"),
		))
		src := source("src-1", "prop-1", fs.URL+"/feed.ics")
		src.LastStatus = models.SyncStatusOK
		sources := newFakeSourceStore(src)
		reservations := newFakeReservationStore()
		reservations.failUID = "b"
		svc := newTestSyncService(t, sources, reservations, SyncConfig{})

		result := svc.SyncSource(context.Background(), sources.get("src-1"))

		var pe *PersistenceError
		require.ErrorAs(t, result.Err, &pe)
		assert.Equal(t, "b", pe.UID)
		assert.Equal(t, 1, result.Inserted)
		_, ok := reservations.get("prop-1", "c")
		assert.False(t, ok)

		stored := sources.get("src-1")
		assert.Equal(t, models.SyncStatusOK, stored.LastStatus)
		require.NotNil(t, stored.LastError)
		assert.Contains(t, *stored.LastError, "disk I/O error")
	})

	t.Run("Sends user agent", func(t *testing.T) {
		fs := newFeedServer(t)
		fs.serve("/feed.ics", twoBookings)
		sources := newFakeSourceStore(source("src-1", "prop-1", fs.URL+"/feed.ics"))
		svc := newTestSyncService(t, sources, newFakeReservationStore(), SyncConfig{UserAgent: "calsync/2.0"})

		svc.SyncSource(context.Background(), sources.get("src-1"))

		fs.mu.Lock()
		defer fs.mu.Unlock()
		assert.Equal(t, []string{"calsync/2.0"}, fs.userAgents)
	})
}

func TestSyncService_SyncSourceByID(t *testing.T) {
	fs := newFeedServer(t)
	fs.serve("/feed.ics", twoBookings)
	sources := newFakeSourceStore(source("src-1", "prop-1", fs.URL+"/feed.ics"))
	svc := newTestSyncService(t, sources, newFakeReservationStore(), SyncConfig{DebugSamples: 1})

	result, err := svc.SyncSourceByID(context.Background(), "src-1", true)
	require.NoError(t, err)
	assert.True(t, result.OK())
	require.Len(t, result.Samples, 1)
	assert.Equal(t, "a", result.Samples[0].UID)

	_, err = svc.SyncSourceByID(context.Background(), "missing", false)
	assert.Error(t, err)
}

func TestSyncService_SyncAll(t *testing.T) {
	t.Run("One failing source does not affect the others", func(t *testing.T) {
		fs := newFeedServer(t)
		fs.serve("/one.ics", feed(vevent("UID:1a", "DTSTART;VALUE=DATE:20250301"), vevent("UID:1b", "DTSTART;VALUE=DATE:20250310")))
		fs.fail("/two.ics", http.StatusNotFound)
		fs.serve("/three.ics", feed(vevent("UID:3a", "DTSTART;VALUE=DATE:20250401")))

		sources := newFakeSourceStore(
			source("src-1", "prop-1", fs.URL+"/one.ics"),
			source("src-2", "prop-2", fs.URL+"/two.ics"),
			source("src-3", "prop-3", fs.URL+"/three.ics"),
		)
		reservations := newFakeReservationStore()
		svc := newTestSyncService(t, sources, reservations, SyncConfig{Concurrency: 2})

		batch, err := svc.SyncAll(context.Background(), SyncRequest{})
		require.NoError(t, err)
		require.Len(t, batch.Sources, 3)

		assert.Equal(t, "src-1", batch.Sources[0].SourceID)
		assert.True(t, batch.Sources[0].OK())
		assert.True(t, IsTransportError(batch.Sources[1].Err))
		assert.True(t, batch.Sources[2].OK())

		assert.Equal(t, SyncTotals{Sources: 3, Failed: 1, EventsFound: 3, Inserted: 3}, batch.Totals)
		assert.Equal(t, 2, reservations.count("prop-1"))
		assert.Equal(t, 0, reservations.count("prop-2"))
		assert.Equal(t, 1, reservations.count("prop-3"))
		assert.Equal(t, models.SyncStatusFetchError, sources.get("src-2").LastStatus)
		assert.Equal(t, models.SyncStatusOK, sources.get("src-3").LastStatus)
	})

	t.Run("Filters by property and skips inactive sources", func(t *testing.T) {
		fs := newFeedServer(t)
		fs.serve("/feed.ics", twoBookings)
		inactive := source("src-3", "prop-1", fs.URL+"/feed.ics")
		inactive.Active = false
		sources := newFakeSourceStore(
			source("src-1", "prop-1", fs.URL+"/feed.ics"),
			source("src-2", "prop-2", fs.URL+"/feed.ics"),
			inactive,
		)
		svc := newTestSyncService(t, sources, newFakeReservationStore(), SyncConfig{})

		batch, err := svc.SyncAll(context.Background(), SyncRequest{PropertyIDs: []string{"prop-1"}})
		require.NoError(t, err)
		require.Len(t, batch.Sources, 1)
		assert.Equal(t, "src-1", batch.Sources[0].SourceID)
		assert.Empty(t, batch.Sources[0].Samples)
	})

	t.Run("No sources", func(t *testing.T) {
		svc := newTestSyncService(t, newFakeSourceStore(), newFakeReservationStore(), SyncConfig{})

		batch, err := svc.SyncAll(context.Background(), SyncRequest{})
		assert.ErrorIs(t, err, ErrNoSources)
		assert.Nil(t, batch)
	})

	t.Run("Listing failure", func(t *testing.T) {
		sources := newFakeSourceStore()
		sources.listErr = errors.New("database is locked")
		svc := newTestSyncService(t, sources, newFakeReservationStore(), SyncConfig{})

		_, err := svc.SyncAll(context.Background(), SyncRequest{})
		assert.ErrorContains(t, err, "database is locked")
	})

	t.Run("Panic is isolated to its source", func(t *testing.T) {
		fs := newFeedServer(t)
		fs.serve("/bad.ics", feed(vevent("UID:boom", "DTSTART;VALUE=DATE:20250301")))
		fs.serve("/good.ics", feed(vevent("UID:fine", "DTSTART;VALUE=DATE:20250301")))
		sources := newFakeSourceStore(
			source("src-1", "prop-1", fs.URL+"/bad.ics"),
			source("src-2", "prop-2", fs.URL+"/good.ics"),
		)
		reservations := newFakeReservationStore()
		reservations.panicOn = "boom"
		svc := newTestSyncService(t, sources, reservations, SyncConfig{Concurrency: 1})

		batch, err := svc.SyncAll(context.Background(), SyncRequest{})
		require.NoError(t, err)

		assert.ErrorContains(t, batch.Sources[0].Err, "internal error")
		assert.True(t, batch.Sources[1].OK())
		assert.Equal(t, 1, reservations.count("prop-2"))
		assert.Equal(t, 1, batch.Totals.Failed)
	})

	t.Run("Canceled context starts nothing", func(t *testing.T) {
		fs := newFeedServer(t)
		fs.serve("/feed.ics", twoBookings)
		sources := newFakeSourceStore(
			source("src-1", "prop-1", fs.URL+"/feed.ics"),
			source("src-2", "prop-2", fs.URL+"/feed.ics"),
		)
		reservations := newFakeReservationStore()
		svc := newTestSyncService(t, sources, reservations, SyncConfig{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		batch, err := svc.SyncAll(ctx, SyncRequest{})
		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, batch)
		assert.Equal(t, 2, batch.Totals.Skipped)
		assert.Zero(t, reservations.count("prop-1"))
		assert.Empty(t, sources.get("src-1").LastStatus)
	})

	t.Run("Debug returns samples", func(t *testing.T) {
		fs := newFeedServer(t)
		fs.serve("/feed.ics", twoBookings)
		sources := newFakeSourceStore(source("src-1", "prop-1", fs.URL+"/feed.ics"))
		svc := newTestSyncService(t, sources, newFakeReservationStore(), SyncConfig{DebugSamples: 5})

		batch, err := svc.SyncAll(context.Background(), SyncRequest{Debug: true})
		require.NoError(t, err)
		assert.Len(t, batch.Sources[0].Samples, 2)
	})
}

func TestSyncService_CoalescedSync(t *testing.T) {
	newGatedService := func(t *testing.T, fetcher FeedFetcher, reservations *fakeReservationStore) (*SyncService, *fakeSourceStore) {
		sources := newFakeSourceStore(source("src-1", "prop-1", "https://ota.example/feed.ics"))
		svc := NewSyncService(sources, reservations, fetcher, NewParser(time.UTC), nil, zaptest.NewLogger(t), SyncConfig{})
		svc.SetClock(func() time.Time { return syncTime })
		return svc, sources
	}

	// runTwo starts a caller on firstCtx, waits for its fetch to begin, then joins a
	// second caller on the same source before cancel and release run.
	runTwo := func(svc *SyncService, fetcher *gatedFetcher, firstCtx context.Context, cancel context.CancelFunc) [2]SourceResult {
		src := models.CalendarSource{ID: "src-1", PropertyID: "prop-1", Name: "src-1", URL: "https://ota.example/feed.ics", Active: true}
		var (
			results [2]SourceResult
			wg      sync.WaitGroup
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			results[0] = svc.SyncSource(firstCtx, src)
		}()
		<-fetcher.entered
		go func() {
			defer wg.Done()
			results[1] = svc.SyncSource(context.Background(), src)
		}()
		time.Sleep(50 * time.Millisecond)
		cancel()
		close(fetcher.release)
		wg.Wait()
		return results
	}

	t.Run("Shared run outlives a canceled caller", func(t *testing.T) {
		fetcher := newGatedFetcher(twoBookings)
		reservations := newFakeReservationStore()
		svc, sources := newGatedService(t, fetcher, reservations)

		ctx, cancel := context.WithCancel(context.Background())
		results := runTwo(svc, fetcher, ctx, cancel)

		for _, r := range results {
			assert.True(t, r.OK(), "unexpected error: %v", r.Err)
			assert.Equal(t, 2, r.EventsFound)
		}
		assert.Equal(t, 2, reservations.count("prop-1"))
		assert.Equal(t, models.SyncStatusOK, sources.get("src-1").LastStatus)
	})

	t.Run("Panic with waiting callers becomes a failed result", func(t *testing.T) {
		fetcher := newGatedFetcher(feed(vevent("UID:boom", "DTSTART;VALUE=DATE:20250301")))
		reservations := newFakeReservationStore()
		reservations.panicOn = "boom"
		svc, sources := newGatedService(t, fetcher, reservations)

		results := runTwo(svc, fetcher, context.Background(), func() {})

		for _, r := range results {
			assert.ErrorContains(t, r.Err, "internal error")
		}
		require.NotNil(t, sources.get("src-1").LastError)
		assert.Contains(t, *sources.get("src-1").LastError, "store exploded")
	})
}
