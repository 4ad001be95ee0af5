package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/philippzhuravlev/event-aggregator/internal/apperrors"
	"github.com/philippzhuravlev/event-aggregator/internal/facebook"
	"github.com/philippzhuravlev/event-aggregator/internal/logger"
	"github.com/philippzhuravlev/event-aggregator/internal/models"
	"github.com/philippzhuravlev/event-aggregator/internal/repository"
)

// In-memory collaborators

type fakePages struct {
	pages   []models.Page
	listErr error

	mu      sync.Mutex
	expired []string
}

func (f *fakePages) ListActive(ctx context.Context) ([]models.Page, error) {
	return f.pages, f.listErr
}

func (f *fakePages) GetPage(ctx context.Context, pageID string) (models.Page, error) {
	for _, p := range f.pages {
		if p.PageID == pageID {
			return p, nil
		}
	}
	return models.Page{}, apperrors.ErrPageNotFound
}

func (f *fakePages) MarkTokenExpired(ctx context.Context, pageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, pageID)
	return nil
}

type fakeEvents struct {
	upsertErr error

	batches [][]models.Event
}

func (f *fakeEvents) UpsertBatch(ctx context.Context, events []models.Event) (repository.UpsertResult, error) {
	if f.upsertErr != nil {
		return repository.UpsertResult{}, f.upsertErr
	}
	f.batches = append(f.batches, events)
	return repository.UpsertResult{Added: len(events)}, nil
}

func (f *fakeEvents) all() []models.Event {
	var out []models.Event
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

type fakeStore struct {
	tokens  map[string]string
	getErrs map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tokens: map[string]string{}, getErrs: map[string]error{}}
}

func (f *fakeStore) Get(ctx context.Context, pageID string) (string, error) {
	if err, ok := f.getErrs[pageID]; ok {
		return "", err
	}
	if tok, ok := f.tokens[pageID]; ok {
		return tok, nil
	}
	return "", apperrors.ErrTokenNotFound
}

type fakeGraph struct {
	eventsByPage map[string][]facebook.PageEvent
	errsByPage   map[string]error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		eventsByPage: map[string][]facebook.PageEvent{},
		errsByPage:   map[string]error{},
	}
}

func (f *fakeGraph) ListEvents(ctx context.Context, pageID string, pageToken string, since time.Time) ([]facebook.PageEvent, error) {
	if err, ok := f.errsByPage[pageID]; ok {
		return nil, err
	}
	return f.eventsByPage[pageID], nil
}

type fakeRelocator struct {
	err    error
	prefix string
}

func (f *fakeRelocator) Relocate(ctx context.Context, srcURL string, eventID string, start time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.prefix + eventID, nil
}

func activePage(pageID string, expiresAt *time.Time) models.Page {
	ref := uuid.New()
	return models.Page{
		PageID:         pageID,
		PageName:       "Page " + pageID,
		TokenStatus:    models.TokenStatusActive,
		TokenExpiresAt: expiresAt,
		TokenRef:       &ref,
	}
}

func graphEvent(id string, start time.Time) facebook.PageEvent {
	return facebook.PageEvent{ID: id, Name: "Event " + id, StartTime: start}
}

func newTestService(cfg Config, pages *fakePages, events *fakeEvents, store *fakeStore, fb *fakeGraph, images relocator, now time.Time) *Service {
	s := NewService(cfg, pages, events, store, fb, images, logger.NewNoOpLogger())
	s.now = func() time.Time { return now }
	return s
}

func TestSyncAllPages(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	farAhead := now.AddDate(0, 0, 30)

	t.Run("zero pages is a successful no-op", func(t *testing.T) {
		events := &fakeEvents{}
		s := newTestService(Config{}, &fakePages{}, events, newFakeStore(), newFakeGraph(), nil, now)

		summary, err := s.SyncAllPages(t.Context())

		require.NoError(t, err)
		require.True(t, summary.Success)
		require.Equal(t, 0, summary.PagesProcessed)
		require.Empty(t, events.batches, "no batch write without events")
	})

	t.Run("one page failing does not block the other", func(t *testing.T) {
		pages := &fakePages{pages: []models.Page{
			activePage("bad", &farAhead),
			activePage("good", &farAhead),
		}}
		store := newFakeStore()
		store.tokens["bad"] = "tok-bad"
		store.tokens["good"] = "tok-good"
		fb := newFakeGraph()
		fb.errsByPage["bad"] = errors.New("graph timeout")
		fb.eventsByPage["good"] = []facebook.PageEvent{graphEvent("e1", now), graphEvent("e2", now)}
		events := &fakeEvents{}

		s := newTestService(Config{}, pages, events, store, fb, nil, now)
		summary, err := s.SyncAllPages(t.Context())

		require.NoError(t, err)
		require.True(t, summary.Success, "partial success is still success")
		require.Equal(t, 2, summary.PagesProcessed)
		require.Len(t, summary.Errors, 1)
		require.Equal(t, "bad", summary.Errors[0].PageID)
		require.Equal(t, 2, summary.EventsAdded, "the healthy page's events must still land")
		require.Len(t, events.all(), 2)
	})

	t.Run("invalid token expires the page without a run error", func(t *testing.T) {
		pages := &fakePages{pages: []models.Page{activePage("p1", &farAhead)}}
		store := newFakeStore()
		store.tokens["p1"] = "tok"
		fb := newFakeGraph()
		fb.errsByPage["p1"] = &facebook.Error{Code: 190, Message: "Error validating access token"}

		s := newTestService(Config{}, pages, &fakeEvents{}, store, fb, nil, now)
		summary, err := s.SyncAllPages(t.Context())

		require.NoError(t, err)
		require.Empty(t, summary.Errors, "an invalid token is lifecycle, not a page error")
		require.Equal(t, []string{"p1"}, pages.expired)
		require.Equal(t, 0, summary.EventsAdded)
	})

	t.Run("missing stored token contributes nothing and no error", func(t *testing.T) {
		pages := &fakePages{pages: []models.Page{activePage("p1", &farAhead)}}
		events := &fakeEvents{}

		s := newTestService(Config{}, pages, events, newFakeStore(), newFakeGraph(), nil, now)
		summary, err := s.SyncAllPages(t.Context())

		require.NoError(t, err)
		require.Empty(t, summary.Errors)
		require.Empty(t, events.batches)
	})

	t.Run("results join into a single batch write", func(t *testing.T) {
		pages := &fakePages{pages: []models.Page{
			activePage("a", &farAhead),
			activePage("b", &farAhead),
			activePage("c", &farAhead),
		}}
		store := newFakeStore()
		fb := newFakeGraph()
		for _, id := range []string{"a", "b", "c"} {
			store.tokens[id] = "tok-" + id
			fb.eventsByPage[id] = []facebook.PageEvent{graphEvent(id+"-e1", now)}
		}
		events := &fakeEvents{}

		s := newTestService(Config{MaxConcurrent: 2}, pages, events, store, fb, nil, now)
		summary, err := s.SyncAllPages(t.Context())

		require.NoError(t, err)
		require.Len(t, events.batches, 1, "all pages must land in one write")
		require.Len(t, events.batches[0], 3)
		require.Equal(t, 3, summary.EventsAdded)
	})

	t.Run("batch write failure fails the run", func(t *testing.T) {
		pages := &fakePages{pages: []models.Page{activePage("p1", &farAhead)}}
		store := newFakeStore()
		store.tokens["p1"] = "tok"
		fb := newFakeGraph()
		fb.eventsByPage["p1"] = []facebook.PageEvent{graphEvent("e1", now)}
		events := &fakeEvents{upsertErr: errors.New("db down")}

		s := newTestService(Config{}, pages, events, store, fb, nil, now)
		_, err := s.SyncAllPages(t.Context())

		require.Error(t, err)
		require.ErrorContains(t, err, "batch event write")
	})

	t.Run("cover relocation failure falls back to source URL", func(t *testing.T) {
		pages := &fakePages{pages: []models.Page{activePage("p1", &farAhead)}}
		store := newFakeStore()
		store.tokens["p1"] = "tok"
		fb := newFakeGraph()
		ev := graphEvent("e1", now)
		ev.CoverURL = "https://scontent.example/cover.jpg"
		fb.eventsByPage["p1"] = []facebook.PageEvent{ev}
		events := &fakeEvents{}

		s := newTestService(Config{}, pages, events, store, fb, &fakeRelocator{err: errors.New("bucket gone")}, now)
		_, err := s.SyncAllPages(t.Context())

		require.NoError(t, err)
		require.Equal(t, "https://scontent.example/cover.jpg", events.all()[0].CoverURL)
	})

	t.Run("cover relocated when storage is configured", func(t *testing.T) {
		pages := &fakePages{pages: []models.Page{activePage("p1", &farAhead)}}
		store := newFakeStore()
		store.tokens["p1"] = "tok"
		fb := newFakeGraph()
		ev := graphEvent("e1", now)
		ev.CoverURL = "https://scontent.example/cover.jpg"
		fb.eventsByPage["p1"] = []facebook.PageEvent{ev}
		events := &fakeEvents{}

		s := newTestService(Config{}, pages, events, store, fb, &fakeRelocator{prefix: "https://cdn.example/events/"}, now)
		_, err := s.SyncAllPages(t.Context())

		require.NoError(t, err)
		require.Equal(t, "https://cdn.example/events/e1", events.all()[0].CoverURL)
	})

	t.Run("listing failure propagates", func(t *testing.T) {
		pages := &fakePages{listErr: errors.New("db down")}
		s := newTestService(Config{}, pages, &fakeEvents{}, newFakeStore(), newFakeGraph(), nil, now)

		_, err := s.SyncAllPages(t.Context())

		require.Error(t, err)
	})
}

func TestSyncPage(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	farAhead := now.AddDate(0, 0, 30)

	t.Run("unknown page errors", func(t *testing.T) {
		s := newTestService(Config{}, &fakePages{}, &fakeEvents{}, newFakeStore(), newFakeGraph(), nil, now)

		_, err := s.SyncPage(t.Context(), "missing")

		require.ErrorIs(t, err, apperrors.ErrPageNotFound)
	})

	t.Run("ineligible page is a no-op", func(t *testing.T) {
		page := activePage("p1", &farAhead)
		page.TokenStatus = models.TokenStatusExpired
		events := &fakeEvents{}

		s := newTestService(Config{}, &fakePages{pages: []models.Page{page}}, events, newFakeStore(), newFakeGraph(), nil, now)
		summary, err := s.SyncPage(t.Context(), "p1")

		require.NoError(t, err)
		require.Equal(t, 0, summary.PagesProcessed)
		require.Empty(t, events.batches)
	})

	t.Run("eligible page fetches and persists", func(t *testing.T) {
		pages := &fakePages{pages: []models.Page{activePage("p1", &farAhead)}}
		store := newFakeStore()
		store.tokens["p1"] = "tok"
		fb := newFakeGraph()
		fb.eventsByPage["p1"] = []facebook.PageEvent{graphEvent("e1", now)}
		events := &fakeEvents{}

		s := newTestService(Config{}, pages, events, store, fb, nil, now)
		summary, err := s.SyncPage(t.Context(), "p1")

		require.NoError(t, err)
		require.Equal(t, 1, summary.PagesProcessed)
		require.Equal(t, 1, summary.EventsAdded)
		require.Equal(t, "p1", events.all()[0].PageID)
		require.Equal(t, "e1", events.all()[0].EventID)
	})

	t.Run("page failure lands in errors not in the return", func(t *testing.T) {
		pages := &fakePages{pages: []models.Page{activePage("p1", &farAhead)}}
		store := newFakeStore()
		store.tokens["p1"] = "tok"
		fb := newFakeGraph()
		fb.errsByPage["p1"] = errors.New("graph timeout")

		s := newTestService(Config{}, pages, &fakeEvents{}, store, fb, nil, now)
		summary, err := s.SyncPage(t.Context(), "p1")

		require.NoError(t, err)
		require.Len(t, summary.Errors, 1)
	})
}
