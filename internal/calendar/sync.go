package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/host-calendar-sync/backend/internal/storage/models"
	"github.com/host-calendar-sync/backend/internal/websocket"
)

// SourceStore is the sync metadata side of the source registry.
type SourceStore interface {
	GetByID(ctx context.Context, id string) (*models.CalendarSource, error)
	ListActive(ctx context.Context, propertyIDs []string) ([]models.CalendarSource, error)
	RecordSuccess(ctx context.Context, id string, syncedAt time.Time) error
	RecordFailure(ctx context.Context, id, status, message string) error
	RecordError(ctx context.Context, id, message string) error
}

// ReservationStore upserts reservations on (property_id, external_uid).
type ReservationStore interface {
	Upsert(ctx context.Context, res *models.Reservation) (models.UpsertOutcome, error)
}

// FeedFetcher downloads a feed body.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// SourceResult summarizes one source sync. Counts are exclusive: a canceled event
// that was written counts under Canceled only, and a canceled event that was already
// stored as canceled counts under Unchanged.
type SourceResult struct {
	SourceID    string            `json:"source_id"`
	PropertyID  string            `json:"property_id"`
	SourceName  string            `json:"source_name"`
	EventsFound int               `json:"events_found"`
	Inserted    int               `json:"inserted"`
	Updated     int               `json:"updated"`
	Unchanged   int               `json:"unchanged"`
	Canceled    int               `json:"canceled"`
	Skipped     bool              `json:"skipped,omitempty"`
	Err         error             `json:"-"`
	Error       string            `json:"error,omitempty"`
	Samples     []NormalizedEvent `json:"samples,omitempty"`
	SyncedAt    time.Time         `json:"synced_at"`
}

// OK reports whether the source synced without error.
func (r SourceResult) OK() bool {
	return r.Err == nil && !r.Skipped
}

func (r *SourceResult) setErr(err error) {
	r.Err = err
	r.Error = err.Error()
}

// SyncRequest selects what SyncAll syncs. Empty PropertyIDs means every property.
type SyncRequest struct {
	PropertyIDs []string
	Debug       bool
}

// SyncTotals aggregates a batch.
type SyncTotals struct {
	Sources     int `json:"sources"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	EventsFound int `json:"events_found"`
	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
	Unchanged   int `json:"unchanged"`
	Canceled    int `json:"canceled"`
}

// BatchResult is the outcome of SyncAll.
type BatchResult struct {
	Sources    []SourceResult `json:"sources"`
	Totals     SyncTotals     `json:"totals"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// SyncService reconciles external feeds into reservations.
type SyncService struct {
	sources      SourceStore
	reservations ReservationStore
	fetcher      FeedFetcher
	parser       *Parser
	events       *websocket.EventBroadcaster
	logger       *zap.Logger

	concurrency  int
	debugSamples int
	now          func() time.Time

	inflight singleflight.Group
}

// NewSyncService creates a sync service. events may be nil.
func NewSyncService(
	sources SourceStore,
	reservations ReservationStore,
	fetcher FeedFetcher,
	parser *Parser,
	events *websocket.EventBroadcaster,
	logger *zap.Logger,
	cfg SyncConfig,
) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &SyncService{
		sources:      sources,
		reservations: reservations,
		fetcher:      fetcher,
		parser:       parser,
		events:       events,
		logger:       logger.Named("sync"),
		concurrency:  concurrency,
		debugSamples: cfg.DebugSamples,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the clock used for last_sync_at.
func (s *SyncService) SetClock(now func() time.Time) {
	s.now = now
}

// SyncSourceByID loads a source and syncs it.
func (s *SyncService) SyncSourceByID(ctx context.Context, id string, debug bool) (SourceResult, error) {
	source, err := s.sources.GetByID(ctx, id)
	if err != nil {
		return SourceResult{}, fmt.Errorf("getting source: %w", err)
	}
	return s.syncCoalesced(ctx, *source, debug), nil
}

// SyncSource fetches, parses and reconciles one source. Failures are reported in
// the result and recorded on the source; they are never returned as a Go error so
// batch callers can aggregate without special cases.
func (s *SyncService) SyncSource(ctx context.Context, source models.CalendarSource) SourceResult {
	return s.syncCoalesced(ctx, source, false)
}

// syncCoalesced shares one in-flight sync between concurrent callers for a source.
// The shared run is detached from the caller's cancellation, since other callers
// may be waiting on it. A panic inside the run becomes a failed result for every
// waiter; singleflight would otherwise re-raise it where it cannot be recovered.
func (s *SyncService) syncCoalesced(ctx context.Context, source models.CalendarSource, debug bool) SourceResult {
	key := source.ID
	if debug {
		key += "#debug"
	}
	work := context.WithoutCancel(ctx)
	v, _, _ := s.inflight.Do(key, func() (result any, _ error) {
		defer func() {
			if r := recover(); r != nil {
				result = s.panicResult(work, source, r)
			}
		}()
		return s.syncSource(work, source, debug), nil
	})
	return v.(SourceResult)
}

func (s *SyncService) syncSource(ctx context.Context, source models.CalendarSource, debug bool) SourceResult {
	result := SourceResult{
		SourceID:   source.ID,
		PropertyID: source.PropertyID,
		SourceName: source.Name,
		SyncedAt:   s.now(),
	}
	log := s.logger.With(zap.String("source_id", source.ID), zap.String("property_id", source.PropertyID))

	body, err := s.fetcher.Fetch(ctx, source.URL)
	if err != nil {
		s.fail(ctx, log, &result, models.SyncStatusFetchError, err)
		return result
	}
	if !LooksLikeCalendar(body) {
		s.fail(ctx, log, &result, models.SyncStatusParseError, ErrMalformedFeed)
		return result
	}

	events := s.parser.Parse(body)
	result.EventsFound = len(events)
	if debug && s.debugSamples > 0 {
		n := min(s.debugSamples, len(events))
		result.Samples = append([]NormalizedEvent(nil), events[:n]...)
	}

	for _, ev := range events {
		res := reservationFromEvent(source, ev)
		outcome, err := s.reservations.Upsert(ctx, res)
		if err != nil {
			perr := &PersistenceError{SourceID: source.ID, UID: ev.UID, Err: err}
			result.setErr(perr)
			log.Error("reconciling event", zap.String("uid", ev.UID), zap.Error(err))
			if recErr := s.sources.RecordError(ctx, source.ID, perr.Error()); recErr != nil {
				log.Warn("recording sync error", zap.Error(recErr))
			}
			s.events.SyncFailed(websocket.SyncErrorPayload{
				SourceID:   source.ID,
				PropertyID: source.PropertyID,
				Status:     "persistence_error",
				Message:    perr.Error(),
			})
			return result
		}

		switch {
		case outcome == models.UpsertUnchanged:
			result.Unchanged++
		case ev.Canceled():
			result.Canceled++
		case outcome == models.UpsertInserted:
			result.Inserted++
		default:
			result.Updated++
		}
	}

	if err := s.sources.RecordSuccess(ctx, source.ID, result.SyncedAt); err != nil {
		log.Warn("recording sync success", zap.Error(err))
	}

	log.Info("source synced",
		zap.Int("events", result.EventsFound),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("canceled", result.Canceled),
	)
	s.events.SyncCompleted(websocket.SyncCompletedPayload{
		SourceID:    source.ID,
		PropertyID:  source.PropertyID,
		EventsFound: result.EventsFound,
		Inserted:    result.Inserted,
		Updated:     result.Updated,
		Unchanged:   result.Unchanged,
		Canceled:    result.Canceled,
	})
	return result
}

// fail records a fetch or parse failure on the source. Reservations are untouched.
func (s *SyncService) fail(ctx context.Context, log *zap.Logger, result *SourceResult, status string, err error) {
	result.setErr(err)
	log.Warn("source sync failed", zap.String("status", status), zap.Error(err))
	if recErr := s.sources.RecordFailure(ctx, result.SourceID, status, err.Error()); recErr != nil {
		log.Warn("recording sync failure", zap.Error(recErr))
	}
	s.events.SyncFailed(websocket.SyncErrorPayload{
		SourceID:   result.SourceID,
		PropertyID: result.PropertyID,
		Status:     status,
		Message:    err.Error(),
	})
}

func reservationFromEvent(source models.CalendarSource, ev NormalizedEvent) *models.Reservation {
	status := models.ReservationBooked
	if ev.Canceled() {
		status = models.ReservationCanceled
	}
	return &models.Reservation{
		PropertyID:  source.PropertyID,
		SourceID:    source.ID,
		ExternalUID: ev.UID,
		GuestName:   ev.Summary,
		GuestCount:  ev.GuestCount,
		StartDate:   ev.Start,
		EndDate:     ev.End,
		Status:      status,
	}
}

// SyncAll syncs every active source matching req with bounded concurrency.
// One source failing (or panicking) does not affect the others. Once ctx is done no
// further sources are started; sources already running finish, and the partial
// batch is returned together with the context error.
func (s *SyncService) SyncAll(ctx context.Context, req SyncRequest) (*BatchResult, error) {
	sources, err := s.sources.ListActive(ctx, req.PropertyIDs)
	if err != nil {
		return nil, fmt.Errorf("listing active sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	batch := &BatchResult{
		Sources:   make([]SourceResult, len(sources)),
		StartedAt: s.now(),
	}
	// Started sources run to completion even if the batch is canceled.
	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, source := range sources {
		batch.Sources[i] = skippedResult(source)
		if ctx.Err() != nil {
			continue
		}
		i, source := i, source
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			batch.Sources[i] = s.syncCoalesced(work, source, req.Debug)
			return nil
		})
	}
	_ = g.Wait()

	batch.FinishedAt = s.now()
	batch.Totals = totals(batch.Sources)

	s.logger.Info("batch sync finished",
		zap.Int("sources", batch.Totals.Sources),
		zap.Int("failed", batch.Totals.Failed),
		zap.Int("skipped", batch.Totals.Skipped),
		zap.Int("inserted", batch.Totals.Inserted),
		zap.Int("updated", batch.Totals.Updated),
		zap.Int("canceled", batch.Totals.Canceled),
		zap.Duration("took", batch.FinishedAt.Sub(batch.StartedAt)),
	)

	if err := ctx.Err(); err != nil {
		return batch, fmt.Errorf("batch sync interrupted: %w", err)
	}
	return batch, nil
}

// panicResult records a panic raised while syncing source as a failed result.
func (s *SyncService) panicResult(ctx context.Context, source models.CalendarSource, r any) SourceResult {
	err := fmt.Errorf("internal error syncing source: %v", r)
	s.logger.Error("source sync panicked",
		zap.String("source_id", source.ID),
		zap.Any("panic", r),
		zap.Stack("stack"),
	)
	result := SourceResult{
		SourceID:   source.ID,
		PropertyID: source.PropertyID,
		SourceName: source.Name,
		SyncedAt:   s.now(),
	}
	result.setErr(err)
	if recErr := s.sources.RecordError(ctx, source.ID, err.Error()); recErr != nil {
		s.logger.Warn("recording sync error", zap.String("source_id", source.ID), zap.Error(recErr))
	}
	return result
}

func skippedResult(source models.CalendarSource) SourceResult {
	r := SourceResult{
		SourceID:   source.ID,
		PropertyID: source.PropertyID,
		SourceName: source.Name,
		Skipped:    true,
	}
	r.Error = context.Canceled.Error()
	return r
}

func totals(results []SourceResult) SyncTotals {
	t := SyncTotals{Sources: len(results)}
	for _, r := range results {
		switch {
		case r.Skipped:
			t.Skipped++
		case r.Err != nil:
			t.Failed++
		}
		t.EventsFound += r.EventsFound
		t.Inserted += r.Inserted
		t.Updated += r.Updated
		t.Unchanged += r.Unchanged
		t.Canceled += r.Canceled
	}
	return t
}

// IsTransportError reports whether err is a feed fetch failure.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
