package models

import (
	"time"
)

// PageError records a single page's failure within a run.
type PageError struct {
	PageID string `json:"page_id"`
	Error  string `json:"error"`
}

// RefreshSummary reports one refresh run.
// Failed counts pages whose exchange failed for any reason, including a
// definitive invalid-token answer from facebook.
type RefreshSummary struct {
	PagesChecked int         `json:"pages_checked"`
	Refreshed    int         `json:"refreshed"`
	Skipped      int         `json:"skipped"`
	Failed       int         `json:"failed"`
	Errors       []PageError `json:"errors,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// SyncSummary reports one sync run. Success stays true even when individual
// pages failed; partial success is the expected outcome and Errors carries
// the per-page detail.
type SyncSummary struct {
	Success        bool        `json:"success"`
	PagesProcessed int         `json:"pages_processed"`
	EventsAdded    int         `json:"events_added"`
	EventsUpdated  int         `json:"events_updated"`
	Errors         []PageError `json:"errors,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}
