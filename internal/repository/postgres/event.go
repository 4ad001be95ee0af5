package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/philippzhuravlev/event-aggregator/internal/models"
	"github.com/philippzhuravlev/event-aggregator/internal/repository"
)

type EventRepo struct {
	db DBTX
}

const upsertEvent = `-- name: UpsertEvent
INSERT INTO events (page_id, event_id, name, description, start_time, end_time, place_name, cover_url, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (page_id, event_id) DO UPDATE
SET name = EXCLUDED.name,
    description = EXCLUDED.description,
    start_time = EXCLUDED.start_time,
    end_time = EXCLUDED.end_time,
    place_name = EXCLUDED.place_name,
    cover_url = EXCLUDED.cover_url,
    updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted
`

// UpsertBatch writes all events in a single pgx batch. The whole batch runs on
// one connection and fails as a unit; (xmax = 0) tells inserted rows apart from
// updated ones.
func (r *EventRepo) UpsertBatch(ctx context.Context, events []models.Event) (repository.UpsertResult, error) {
	var res repository.UpsertResult
	if len(events) == 0 {
		return res, nil
	}

	now := time.Now()

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(upsertEvent,
			e.PageID, e.EventID, e.Name, e.Description,
			e.StartTime, e.EndTime, e.PlaceName, e.CoverURL, now,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close() // nolint:errcheck

	for range events {
		var inserted bool
		if err := results.QueryRow().Scan(&inserted); err != nil {
			return repository.UpsertResult{}, fmt.Errorf("db batch error: %w", err)
		}
		if inserted {
			res.Added++
		} else {
			res.Updated++
		}
	}

	return res, nil
}

const listEventsByPage = `-- name: ListEventsByPage
SELECT page_id, event_id, name, description, start_time, end_time, place_name, cover_url, updated_at
FROM events
WHERE page_id = $1
ORDER BY start_time
`

func (r *EventRepo) ListByPage(ctx context.Context, pageID string) ([]models.Event, error) {
	rows, _ := r.db.Query(ctx, listEventsByPage, pageID)
	events, err := pgx.CollectRows(rows, rowToEvent)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return events, nil
}

func rowToEvent(row pgx.CollectableRow) (models.Event, error) {
	var e models.Event
	err := row.Scan(&e.PageID, &e.EventID, &e.Name, &e.Description, &e.StartTime, &e.EndTime, &e.PlaceName, &e.CoverURL, &e.UpdatedAt)
	return e, err
}
