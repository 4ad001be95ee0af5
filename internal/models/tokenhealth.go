package models

import (
	"time"
)

// PageTokenHealth is one page's classified expiry state.
type PageTokenHealth struct {
	PageID          string     `json:"page_id"`
	PageName        string     `json:"page_name"`
	DaysUntilExpiry int        `json:"days_until_expiry"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// TokenHealthReport groups all active pages by token state.
// ExpiringSoon is sorted ascending by DaysUntilExpiry; downstream alerting
// relies on that order.
type TokenHealthReport struct {
	TotalPages   int               `json:"total_pages"`
	Healthy      []PageTokenHealth `json:"healthy"`
	ExpiringSoon []PageTokenHealth `json:"expiring_soon"`
	Expired      []PageTokenHealth `json:"expired"`
	Unknown      []PageTokenHealth `json:"unknown"`
	Timestamp    time.Time         `json:"timestamp"`
}
