package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/host-calendar-sync/backend/internal/storage/models"
)

type fakeSourceStore struct {
	mu      sync.Mutex
	sources []models.CalendarSource
	listErr error
}

func newFakeSourceStore(sources ...models.CalendarSource) *fakeSourceStore {
	return &fakeSourceStore{sources: sources}
}

func (f *fakeSourceStore) find(id string) *models.CalendarSource {
	for i := range f.sources {
		if f.sources[i].ID == id {
			return &f.sources[i]
		}
	}
	return nil
}

func (f *fakeSourceStore) get(id string) models.CalendarSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.find(id)
}

func (f *fakeSourceStore) GetByID(_ context.Context, id string) (*models.CalendarSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.find(id)
	if src == nil {
		return nil, fmt.Errorf("source %s not found", id)
	}
	cp := *src
	return &cp, nil
}

func (f *fakeSourceStore) ListActive(_ context.Context, propertyIDs []string) ([]models.CalendarSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.CalendarSource
	for _, src := range f.sources {
		if !src.Active {
			continue
		}
		if len(propertyIDs) > 0 && !contains(propertyIDs, src.PropertyID) {
			continue
		}
		out = append(out, src)
	}
	return out, nil
}

func (f *fakeSourceStore) RecordSuccess(_ context.Context, id string, syncedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.find(id)
	src.LastSyncAt = &syncedAt
	src.LastStatus = models.SyncStatusOK
	src.LastError = nil
	return nil
}

func (f *fakeSourceStore) RecordFailure(_ context.Context, id, status, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.find(id)
	src.LastStatus = status
	src.LastError = &message
	return nil
}

func (f *fakeSourceStore) RecordError(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.find(id)
	src.LastError = &message
	return nil
}

type reservationKey struct {
	propertyID string
	uid        string
}

// fakeReservationStore mirrors the (property_id, external_uid) upsert contract.
type fakeReservationStore struct {
	mu      sync.Mutex
	rows    map[reservationKey]models.Reservation
	failUID string
	panicOn string
	writes  int
}

func newFakeReservationStore() *fakeReservationStore {
	return &fakeReservationStore{rows: make(map[reservationKey]models.Reservation)}
}

func (f *fakeReservationStore) Upsert(_ context.Context, res *models.Reservation) (models.UpsertOutcome, error) {
	if f.panicOn != "" && res.ExternalUID == f.panicOn {
		panic("store exploded")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if res.ExternalUID == f.failUID {
		return models.UpsertUnchanged, fmt.Errorf("disk I/O error")
	}

	key := reservationKey{res.PropertyID, res.ExternalUID}
	existing, ok := f.rows[key]
	if !ok {
		res.ID = fmt.Sprintf("res-%d", len(f.rows)+1)
		f.rows[key] = *res
		f.writes++
		return models.UpsertInserted, nil
	}
	res.ID = existing.ID
	if existing.SameBooking(res) {
		return models.UpsertUnchanged, nil
	}
	f.rows[key] = *res
	f.writes++
	return models.UpsertChanged, nil
}

func (f *fakeReservationStore) count(propertyID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.rows {
		if k.propertyID == propertyID {
			n++
		}
	}
	return n
}

func (f *fakeReservationStore) get(propertyID, uid string) (models.Reservation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[reservationKey{propertyID, uid}]
	return r, ok
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// gatedFetcher holds every Fetch until release is closed, honoring ctx meanwhile.
type gatedFetcher struct {
	body    string
	entered chan struct{}
	release chan struct{}
}

func newGatedFetcher(body string) *gatedFetcher {
	return &gatedFetcher{body: body, entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gatedFetcher) Fetch(ctx context.Context, url string) (string, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return g.body, nil
	case <-ctx.Done():
		return "", &TransportError{URL: url, Err: ctx.Err()}
	}
}
