package models

import (
	"time"

	"github.com/google/uuid"
)

// Token statuses a tracked page can be in.
// A page becomes 'expired' only when facebook definitively rejects its token;
// it returns to 'active' only through the oauth callback.
// 'invalid' is reserved for manual intervention and never set by the sync core.
const (
	TokenStatusActive  = "active"
	TokenStatusExpired = "expired"
	TokenStatusInvalid = "invalid"
)

type Page struct {
	PageID         string
	PageName       string
	TokenStatus    string
	TokenExpiresAt *time.Time
	TokenRef       *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Eligible reports whether the page may be synced or refreshed:
// its token must be active and a stored secret must exist.
func (p *Page) Eligible() bool {
	return p.TokenStatus == TokenStatusActive && p.TokenRef != nil
}
