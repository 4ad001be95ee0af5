package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/philippzhuravlev/event-aggregator/internal/apperrors"
	"github.com/philippzhuravlev/event-aggregator/internal/models"
	"github.com/philippzhuravlev/event-aggregator/internal/repository"
)

type PageRepo struct {
	db DBTX
}

const createPage = `-- name: CreatePage
INSERT INTO pages (page_id, page_name, token_status, token_expires_at, token_ref, created_at, updated_at)
VALUES ($1, $2, 'active', $3, $4, now(), now())
ON CONFLICT (page_id) DO UPDATE
SET page_name = EXCLUDED.page_name,
    token_status = 'active',
    token_expires_at = EXCLUDED.token_expires_at,
    token_ref = EXCLUDED.token_ref,
    updated_at = now()
RETURNING page_id, page_name, token_status, token_expires_at, token_ref, created_at, updated_at
`

// CreatePage inserts the page or, when it already exists, reactivates it with
// the fresh token data. Re-authorization through oauth lands here, so a page
// previously marked expired becomes active again.
func (r *PageRepo) CreatePage(ctx context.Context, arg repository.CreatePageParams) (models.Page, error) {
	rows, _ := r.db.Query(ctx, createPage, arg.PageID, arg.PageName, arg.TokenExpiresAt, arg.TokenRef)
	page, err := pgx.CollectOneRow(rows, rowToPage)
	if err != nil {
		return page, fmt.Errorf("db error: %w", err)
	}

	return page, nil
}

const getPage = `-- name: GetPage
SELECT page_id, page_name, token_status, token_expires_at, token_ref, created_at, updated_at
FROM pages
WHERE page_id = $1
`

func (r *PageRepo) GetPage(ctx context.Context, pageID string) (models.Page, error) {
	rows, _ := r.db.Query(ctx, getPage, pageID)
	page, err := pgx.CollectOneRow(rows, rowToPage)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return page, apperrors.ErrPageNotFound
	}

	return page, err
}

const listActive = `-- name: ListActive
SELECT page_id, page_name, token_status, token_expires_at, token_ref, created_at, updated_at
FROM pages
WHERE token_status = 'active'
ORDER BY page_id
`

func (r *PageRepo) ListActive(ctx context.Context) ([]models.Page, error) {
	rows, _ := r.db.Query(ctx, listActive)
	pages, err := pgx.CollectRows(rows, rowToPage)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return pages, nil
}

const updateToken = `-- name: UpdateToken
UPDATE pages
SET token_status = $2, token_expires_at = $3, token_ref = $4, updated_at = now()
WHERE page_id = $1
`

func (r *PageRepo) UpdateToken(ctx context.Context, pageID string, status string, expiresAt *time.Time, ref *uuid.UUID) error {
	tag, err := r.db.Exec(ctx, updateToken, pageID, status, expiresAt, ref)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrPageNotFound
	}

	return nil
}

const markTokenExpired = `-- name: MarkTokenExpired
UPDATE pages
SET token_status = 'expired', updated_at = now()
WHERE page_id = $1
`

func (r *PageRepo) MarkTokenExpired(ctx context.Context, pageID string) error {
	tag, err := r.db.Exec(ctx, markTokenExpired, pageID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrPageNotFound
	}

	return nil
}

func rowToPage(row pgx.CollectableRow) (models.Page, error) {
	var p models.Page
	err := row.Scan(&p.PageID, &p.PageName, &p.TokenStatus, &p.TokenExpiresAt, &p.TokenRef, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
