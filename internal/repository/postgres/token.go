package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/philippzhuravlev/event-aggregator/internal/apperrors"
	"github.com/philippzhuravlev/event-aggregator/internal/repository"
)

type TokenRepo struct {
	db DBTX
}

const putToken = `-- name: PutToken
INSERT INTO page_tokens (id, page_id, ciphertext, nonce, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now(), now())
ON CONFLICT (page_id) DO UPDATE
SET ciphertext = EXCLUDED.ciphertext,
    nonce = EXCLUDED.nonce,
    expires_at = EXCLUDED.expires_at,
    updated_at = now()
RETURNING id
`

func (r *TokenRepo) Put(ctx context.Context, rec repository.TokenRecord) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	var ref uuid.UUID
	err := r.db.QueryRow(ctx, putToken, rec.ID, rec.PageID, rec.Ciphertext, rec.Nonce, rec.ExpiresAt).Scan(&ref)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			return ref, fmt.Errorf("token row conflict for page %s: %w", rec.PageID, err)
		}
		return ref, fmt.Errorf("db error: %w", err)
	}

	return ref, nil
}

const getToken = `-- name: GetToken
SELECT id, page_id, ciphertext, nonce, expires_at
FROM page_tokens
WHERE page_id = $1
`

func (r *TokenRepo) Get(ctx context.Context, pageID string) (repository.TokenRecord, error) {
	var rec repository.TokenRecord
	err := r.db.QueryRow(ctx, getToken, pageID).Scan(&rec.ID, &rec.PageID, &rec.Ciphertext, &rec.Nonce, &rec.ExpiresAt)

	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return rec, apperrors.ErrTokenNotFound
	}

	return rec, err
}

const deleteToken = `-- name: DeleteToken
DELETE FROM page_tokens
WHERE page_id = $1
`

func (r *TokenRepo) Delete(ctx context.Context, pageID string) error {
	_, err := r.db.Exec(ctx, deleteToken, pageID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
