// Package token owns the page token lifecycle: the pure expiry evaluator, the
// health reporter and the refresh orchestrator.
package token

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/philippzhuravlev/event-aggregator/internal/facebook"
	"github.com/philippzhuravlev/event-aggregator/internal/logger"
	"github.com/philippzhuravlev/event-aggregator/internal/models"
)

type pageRepo interface {
	ListActive(ctx context.Context) ([]models.Page, error)
	UpdateToken(ctx context.Context, pageID string, status string, expiresAt *time.Time, ref *uuid.UUID) error
	MarkTokenExpired(ctx context.Context, pageID string) error
}

type secretStore interface {
	Get(ctx context.Context, pageID string) (string, error)
	Put(ctx context.Context, pageID string, token string, ttl time.Duration) (uuid.UUID, error)
}

type graphClient interface {
	ExchangeForLongLivedToken(ctx context.Context, shortToken string) (facebook.Token, error)
}

type alerter interface {
	SendAlert(ctx context.Context, subject string, text string) error
}

type Config struct {
	// Days before expiry at which a token counts as expiring. Default 7.
	WarningDays int

	// Validity window recorded for a freshly exchanged token when facebook
	// does not report one. Default 60 days.
	TokenValidity time.Duration
}

type Service struct {
	cfg    Config
	pages  pageRepo
	store  secretStore
	fb     graphClient
	mailer alerter
	logger logger.Logger

	// Refresh attempts are bucket-limited per page so repeated scheduler runs
	// in a short window cannot hammer facebook
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	now func() time.Time
}

func NewService(cfg Config, pages pageRepo, store secretStore, fb graphClient, mailer alerter, l logger.Logger) *Service {
	if cfg.WarningDays <= 0 {
		cfg.WarningDays = DefaultWarningDays
	}
	if cfg.TokenValidity <= 0 {
		cfg.TokenValidity = DefaultTokenValidity
	}

	return &Service{
		cfg:      cfg,
		pages:    pages,
		store:    store,
		fb:       fb,
		mailer:   mailer,
		logger:   l,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// limiter returns the page's refresh bucket: one attempt per 6 hours with a
// burst of 2.
func (s *Service) limiter(pageID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[pageID]
	if !ok {
		l = rate.NewLimiter(rate.Every(6*time.Hour), 2)
		s.limiters[pageID] = l
	}
	return l
}
