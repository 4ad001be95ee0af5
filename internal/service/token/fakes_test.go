package token

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/philippzhuravlev/event-aggregator/internal/facebook"
	"github.com/philippzhuravlev/event-aggregator/internal/logger"
	"github.com/philippzhuravlev/event-aggregator/internal/models"
)

// In-memory collaborators for orchestrator tests

type updateCall struct {
	pageID    string
	status    string
	expiresAt *time.Time
}

type fakePages struct {
	pages   []models.Page
	listErr error

	updates []updateCall
	expired []string
}

func (f *fakePages) ListActive(ctx context.Context) ([]models.Page, error) {
	return f.pages, f.listErr
}

func (f *fakePages) UpdateToken(ctx context.Context, pageID string, status string, expiresAt *time.Time, ref *uuid.UUID) error {
	f.updates = append(f.updates, updateCall{pageID: pageID, status: status, expiresAt: expiresAt})
	return nil
}

func (f *fakePages) MarkTokenExpired(ctx context.Context, pageID string) error {
	f.expired = append(f.expired, pageID)
	return nil
}

type putCall struct {
	pageID string
	token  string
	ttl    time.Duration
}

type fakeStore struct {
	tokens  map[string]string
	getErrs map[string]error
	putErr  error

	puts []putCall
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tokens:  map[string]string{},
		getErrs: map[string]error{},
	}
}

func (f *fakeStore) Get(ctx context.Context, pageID string) (string, error) {
	if err, ok := f.getErrs[pageID]; ok {
		return "", err
	}
	return f.tokens[pageID], nil
}

func (f *fakeStore) Put(ctx context.Context, pageID string, token string, ttl time.Duration) (uuid.UUID, error) {
	if f.putErr != nil {
		return uuid.Nil, f.putErr
	}
	f.puts = append(f.puts, putCall{pageID: pageID, token: token, ttl: ttl})
	f.tokens[pageID] = token
	return uuid.New(), nil
}

type fakeGraph struct {
	token facebook.Token
	err   error

	exchanged []string
}

func (f *fakeGraph) ExchangeForLongLivedToken(ctx context.Context, shortToken string) (facebook.Token, error) {
	f.exchanged = append(f.exchanged, shortToken)
	if f.err != nil {
		return facebook.Token{}, f.err
	}
	return f.token, nil
}

type fakeAlerter struct {
	err error

	subjects []string
}

func (f *fakeAlerter) SendAlert(ctx context.Context, subject string, text string) error {
	f.subjects = append(f.subjects, subject)
	return f.err
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

func newTestService(cfg Config, pages *fakePages, store *fakeStore, fb *fakeGraph, alerts *fakeAlerter, now time.Time) *Service {
	s := NewService(cfg, pages, store, fb, alerts, logger.NewNoOpLogger())
	s.now = func() time.Time { return now }
	return s
}
