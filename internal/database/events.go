package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marketcalls/research-call-engine/internal/models"
)

// queryRower covers both *sql.DB and *sql.Tx so events can be appended inside
// a call-update transaction.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ListEventsForCall returns the append-only event history of a call, newest
// first.
func (db *DB) ListEventsForCall(ctx context.Context, callID int64) ([]*models.ResearchCallEvent, error) {
	query := `
		SELECT id, call_id, event_type, price_at_event, notes, triggered_by, created_at
		FROM research_call_events
		WHERE call_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := db.conn.QueryContext(ctx, query, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for call %d: %w", callID, err)
	}
	defer rows.Close()

	var events []*models.ResearchCallEvent
	for rows.Next() {
		var event models.ResearchCallEvent
		var notes sql.NullString
		var triggeredBy sql.NullInt64
		if err := rows.Scan(
			&event.ID, &event.CallID, &event.EventType, &event.PriceAtEvent,
			&notes, &triggeredBy, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Notes = notes.String
		event.TriggeredBy = triggeredBy.Int64
		events = append(events, &event)
	}
	return events, rows.Err()
}

// insertEvent appends one event row inside the given transaction. Events are
// insert-only; there is no update or delete path.
func insertEvent(ctx context.Context, tx queryRower, event *models.ResearchCallEvent) error {
	query := `
		INSERT INTO research_call_events (call_id, event_type, price_at_event, notes, triggered_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	now := time.Now()
	err := tx.QueryRowContext(ctx, query,
		event.CallID, event.EventType, event.PriceAtEvent,
		nullString(event.Notes), nullID(event.TriggeredBy), now,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert %s event for call %d: %w", event.EventType, event.CallID, err)
	}
	return nil
}
