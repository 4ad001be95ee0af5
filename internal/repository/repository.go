package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/philippzhuravlev/event-aggregator/internal/models"
)

type CreatePageParams struct {
	PageID         string
	PageName       string
	TokenExpiresAt *time.Time
	TokenRef       *uuid.UUID
}

// Page registry interface
type PageRepo interface {
	// Create page or update its name/token on conflict (oauth callback path)
	CreatePage(ctx context.Context, arg CreatePageParams) (models.Page, error)

	// Get page by external facebook id
	// If page not found must return apperrors.ErrPageNotFound
	GetPage(ctx context.Context, pageID string) (models.Page, error)

	// List pages with token_status = 'active'
	ListActive(ctx context.Context) ([]models.Page, error)

	// Set token status, expiry and secret reference after a refresh
	// If page not found must return apperrors.ErrPageNotFound
	UpdateToken(ctx context.Context, pageID string, status string, expiresAt *time.Time, ref *uuid.UUID) error

	// Mark the page token expired: makes the page ineligible for sync/refresh
	// until it is re-authorized through the oauth callback
	MarkTokenExpired(ctx context.Context, pageID string) error
}

type UpsertResult struct {
	Added   int
	Updated int
}

// Event store interface
type EventRepo interface {
	// Upsert all events in one batch keyed by (page_id, event_id)
	// Repeated syncs of the same event must not create duplicates
	UpsertBatch(ctx context.Context, events []models.Event) (UpsertResult, error)

	ListByPage(ctx context.Context, pageID string) ([]models.Event, error)
}

type TokenRecord struct {
	ID         uuid.UUID
	PageID     string
	Ciphertext []byte
	Nonce      []byte
	ExpiresAt  *time.Time
}

// Encrypted token rows, keyed by page id
// Callers never see plaintext here; encryption lives in internal/secrets
type TokenRepo interface {
	// Put stores or overwrites the token row and returns its reference
	Put(ctx context.Context, rec TokenRecord) (uuid.UUID, error)

	// If no row exists must return apperrors.ErrTokenNotFound
	Get(ctx context.Context, pageID string) (TokenRecord, error)

	Delete(ctx context.Context, pageID string) error
}

type Storage interface {
	Page() PageRepo
	Event() EventRepo
	Token() TokenRepo

	InTx(ctx context.Context, fn func(Storage) error) error
}
