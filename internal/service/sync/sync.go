// Package sync fans event synchronization out across all active pages,
// isolating per-page failures so one page's error never aborts the batch.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/philippzhuravlev/event-aggregator/internal/apperrors"
	"github.com/philippzhuravlev/event-aggregator/internal/facebook"
	"github.com/philippzhuravlev/event-aggregator/internal/logger"
	"github.com/philippzhuravlev/event-aggregator/internal/models"
	"github.com/philippzhuravlev/event-aggregator/internal/repository"
	"github.com/philippzhuravlev/event-aggregator/internal/service/token"
)

type pageRepo interface {
	ListActive(ctx context.Context) ([]models.Page, error)
	GetPage(ctx context.Context, pageID string) (models.Page, error)
	MarkTokenExpired(ctx context.Context, pageID string) error
}

type eventRepo interface {
	UpsertBatch(ctx context.Context, events []models.Event) (repository.UpsertResult, error)
}

type secretStore interface {
	Get(ctx context.Context, pageID string) (string, error)
}

type graphClient interface {
	ListEvents(ctx context.Context, pageID string, pageToken string, since time.Time) ([]facebook.PageEvent, error)
}

type relocator interface {
	Relocate(ctx context.Context, srcURL string, eventID string, start time.Time) (string, error)
}

type Config struct {
	// Look-back window for event listing. Default 30 days.
	LookbackDays int

	// Days before expiry at which a token is reported expiring. Default 7.
	WarningDays int

	// Cap on concurrently synced pages. Default 8.
	MaxConcurrent int
}

type Service struct {
	cfg    Config
	pages  pageRepo
	events eventRepo
	store  secretStore
	fb     graphClient
	images relocator
	logger logger.Logger

	now func() time.Time
}

// NewService wires the sync orchestrator. images may be nil; covers then keep
// their facebook CDN URLs.
func NewService(cfg Config, pages pageRepo, events eventRepo, store secretStore, fb graphClient, images relocator, l logger.Logger) *Service {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	if cfg.WarningDays <= 0 {
		cfg.WarningDays = token.DefaultWarningDays
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}

	return &Service{
		cfg:    cfg,
		pages:  pages,
		events: events,
		store:  store,
		fb:     fb,
		images: images,
		logger: l,
		now:    time.Now,
	}
}

// pageResult is what every per-page task resolves with. No error ever escapes
// a task as a panic or group failure; it travels here as data.
type pageResult struct {
	pageID        string
	events        []models.Event
	err           error
	expiringDays  int
	tokenExpiring bool
}

// SyncAllPages syncs every active page concurrently, joins all results and
// persists the union of fetched events in one idempotent batch write.
// Individual page failures surface in the summary's Errors; the run itself
// only fails on the initial listing or the final batch write.
func (s *Service) SyncAllPages(ctx context.Context) (models.SyncSummary, error) {
	summary := models.SyncSummary{Success: true, Timestamp: s.now()}

	pages, err := s.pages.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing active pages: %w", err)
	}
	summary.PagesProcessed = len(pages)
	if len(pages) == 0 {
		return summary, nil
	}

	// Fire-all-then-await-all. Worker funcs always return nil so a failing
	// page can never cancel its siblings; SetLimit only caps parallelism.
	results := make([]pageResult, len(pages))
	g := &errgroup.Group{}
	g.SetLimit(s.cfg.MaxConcurrent)

	for i, page := range pages {
		g.Go(func() error {
			results[i] = s.syncPage(ctx, page)
			return nil
		})
	}
	_ = g.Wait() // join barrier: the batch write must not start earlier

	var batch []models.Event
	var expiring []pageResult
	for _, res := range results {
		if res.err != nil {
			s.logger.Error("Page sync failed", "page_id", res.pageID, "error", res.err)
			summary.Errors = append(summary.Errors, models.PageError{PageID: res.pageID, Error: res.err.Error()})
			continue
		}
		batch = append(batch, res.events...)
		if res.tokenExpiring {
			expiring = append(expiring, res)
		}
	}

	if len(batch) > 0 {
		written, err := s.events.UpsertBatch(ctx, batch)
		if err != nil {
			return summary, fmt.Errorf("batch event write: %w", err)
		}
		summary.EventsAdded = written.Added
		summary.EventsUpdated = written.Updated
	}

	// One aggregate warning per run, not one per page
	if len(expiring) > 0 {
		ids := make([]string, 0, len(expiring))
		for _, res := range expiring {
			ids = append(ids, fmt.Sprintf("%s (%dd)", res.pageID, res.expiringDays))
		}
		s.logger.Warn("Pages with expiring tokens encountered during sync", "count", len(expiring), "pages", ids)
	}

	s.logger.Info("Sync run finished",
		"pages_processed", summary.PagesProcessed,
		"events_added", summary.EventsAdded,
		"events_updated", summary.EventsUpdated,
		"page_errors", len(summary.Errors),
	)

	return summary, nil
}

// SyncPage syncs a single page, the webhook ingestion path. Ineligible pages
// are a no-op, not an error.
func (s *Service) SyncPage(ctx context.Context, pageID string) (models.SyncSummary, error) {
	summary := models.SyncSummary{Success: true, Timestamp: s.now()}

	page, err := s.pages.GetPage(ctx, pageID)
	if err != nil {
		return summary, err
	}
	if !page.Eligible() {
		s.logger.Warn("Page not eligible for sync", "page_id", pageID, "token_status", page.TokenStatus)
		return summary, nil
	}
	summary.PagesProcessed = 1

	res := s.syncPage(ctx, page)
	if res.err != nil {
		summary.Errors = append(summary.Errors, models.PageError{PageID: pageID, Error: res.err.Error()})
		return summary, nil
	}

	if len(res.events) > 0 {
		written, err := s.events.UpsertBatch(ctx, res.events)
		if err != nil {
			return summary, fmt.Errorf("batch event write: %w", err)
		}
		summary.EventsAdded = written.Added
		summary.EventsUpdated = written.Updated
	}

	return summary, nil
}

// syncPage always resolves with a result record; no error escapes it any
// other way.
func (s *Service) syncPage(ctx context.Context, page models.Page) pageResult {
	res := pageResult{pageID: page.PageID}

	// Expiry side note only; an expiring token does not block the sync itself
	if page.TokenExpiresAt != nil {
		days := token.DaysUntilExpiry(*page.TokenExpiresAt, s.now())
		if token.IsExpiring(days, s.cfg.WarningDays) {
			res.tokenExpiring = true
			res.expiringDays = days
		}
	} else {
		res.tokenExpiring = true
	}

	pageToken, err := s.store.Get(ctx, page.PageID)
	if err != nil {
		if errors.Is(err, apperrors.ErrTokenNotFound) {
			// No credential to sync with; not a failure of the run
			s.logger.Warn("Page has no stored token, skipping sync", "page_id", page.PageID)
			return res
		}
		res.err = fmt.Errorf("reading stored token: %w", err)
		return res
	}

	since := s.now().AddDate(0, 0, -s.cfg.LookbackDays)
	fetched, err := s.fb.ListEvents(ctx, page.PageID, pageToken, since)
	if err != nil {
		if facebook.IsTokenInvalid(err) {
			// Expected lifecycle state, handled in place: mark the page
			// expired and contribute nothing to this run
			if markErr := s.pages.MarkTokenExpired(ctx, page.PageID); markErr != nil {
				s.logger.Error("Failed to mark page token expired", "page_id", page.PageID, "error", markErr)
			}
			s.logger.Warn("Facebook reports token invalid during sync, page marked expired", "page_id", page.PageID)
			return res
		}
		res.err = err
		return res
	}

	res.events = make([]models.Event, 0, len(fetched))
	for _, ev := range fetched {
		res.events = append(res.events, s.normalize(ctx, page.PageID, ev))
	}

	s.logger.Debug("Page synced", "page_id", page.PageID, "events", len(res.events))
	return res
}

// normalize maps a Graph event onto the stable persisted shape, relocating the
// cover image when storage is configured. Relocation failure falls back to the
// source URL and never blocks persistence.
func (s *Service) normalize(ctx context.Context, pageID string, ev facebook.PageEvent) models.Event {
	coverURL := ev.CoverURL
	if coverURL != "" && s.images != nil {
		owned, err := s.images.Relocate(ctx, coverURL, ev.ID, ev.StartTime)
		if err != nil {
			s.logger.Warn("Cover relocation failed, keeping source URL", "event_id", ev.ID, "error", err)
		} else {
			coverURL = owned
		}
	}

	return models.Event{
		PageID:      pageID,
		EventID:     ev.ID,
		Name:        ev.Name,
		Description: ev.Description,
		StartTime:   ev.StartTime,
		EndTime:     ev.EndTime,
		PlaceName:   ev.PlaceName,
		CoverURL:    coverURL,
	}
}
