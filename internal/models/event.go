package models

import (
	"time"
)

// Event is a normalized facebook page event.
// (PageID, EventID) is the upsert key: repeated syncs overwrite in place.
type Event struct {
	PageID      string
	EventID     string
	Name        string
	Description string
	StartTime   time.Time
	EndTime     *time.Time
	PlaceName   string
	CoverURL    string
	UpdatedAt   time.Time
}
