// Package secrets fronts page access token storage. Tokens are sealed with
// nacl/secretbox before they reach the database; the orchestrators above only
// ever see plaintext token strings and never the storage technology.
package secrets

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/philippzhuravlev/event-aggregator/internal/apperrors"
	"github.com/philippzhuravlev/event-aggregator/internal/repository"
)

const nonceSize = 24

type Store struct {
	key    [32]byte
	tokens repository.TokenRepo
}

// NewStore builds a store from a 64-char hex encoded key.
func NewStore(hexKey string, tokens repository.TokenRepo) (*Store, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return nil, apperrors.ErrSecretKeyInvalid
	}

	s := &Store{tokens: tokens}
	copy(s.key[:], raw)

	return s, nil
}

// Put seals the token and upserts its row, returning the opaque reference the
// page registry keeps instead of the secret itself.
func (s *Store) Put(ctx context.Context, pageID string, token string, ttl time.Duration) (uuid.UUID, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return uuid.Nil, fmt.Errorf("nonce generation failed: %w", err)
	}

	sealed := secretbox.Seal(nil, []byte(token), &nonce, &s.key)

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	id, err := s.tokens.Put(ctx, repository.TokenRecord{
		PageID:     pageID,
		Ciphertext: sealed,
		Nonce:      nonce[:],
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("storing token for page %s: %w", pageID, err)
	}

	return id, nil
}

// Get returns the plaintext token for the page.
// Returns apperrors.ErrTokenNotFound when no token is stored.
func (s *Store) Get(ctx context.Context, pageID string) (string, error) {
	rec, err := s.tokens.Get(ctx, pageID)
	if err != nil {
		return "", err
	}

	if len(rec.Nonce) != nonceSize {
		return "", fmt.Errorf("token row for page %s has malformed nonce", pageID)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], rec.Nonce)

	plain, ok := secretbox.Open(nil, rec.Ciphertext, &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("token row for page %s failed to decrypt", pageID)
	}

	return string(plain), nil
}

func (s *Store) Delete(ctx context.Context, pageID string) error {
	return s.tokens.Delete(ctx, pageID)
}
