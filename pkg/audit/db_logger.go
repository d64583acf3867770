package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBLogger implements audit logging to the audit_events table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log writes an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (occurred_at, event_type, status, resource_type, resource_id, actor, request_id, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		event.OccurredAt,
		string(event.EventType),
		string(event.Status),
		string(event.ResourceType),
		event.ResourceID,
		event.Actor,
		event.RequestID,
		event.Message,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// LogMutation records a data mutation event
func (l *DBLogger) LogMutation(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID *int64, status EventStatus, message string) error {
	return l.Log(ctx, buildMutationEvent(ctx, eventType, resourceType, resourceID, status, message))
}

// Close is a no-op; the database connection is owned by the caller
func (l *DBLogger) Close() error {
	return nil
}

// ListRecent returns the most recent audit events, newest first
func (l *DBLogger) ListRecent(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, occurred_at, event_type, status, resource_type, resource_id, actor, request_id, message
		FROM audit_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT $1
	`

	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var resourceType, actor, requestID, message sql.NullString
		var resourceID sql.NullInt64

		if err := rows.Scan(
			&event.ID,
			&event.OccurredAt,
			&event.EventType,
			&event.Status,
			&resourceType,
			&resourceID,
			&actor,
			&requestID,
			&message,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		event.ResourceType = ResourceType(resourceType.String)
		if resourceID.Valid {
			id := resourceID.Int64
			event.ResourceID = &id
		}
		event.Actor = actor.String
		event.RequestID = requestID.String
		event.Message = message.String

		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}

	return events, nil
}

// PurgeOlderThan deletes audit events older than the retention window and
// returns the number of rows removed.
func (l *DBLogger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	result, err := l.db.ExecContext(ctx, "DELETE FROM audit_events WHERE occurred_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged audit events: %w", err)
	}

	return deleted, nil
}
