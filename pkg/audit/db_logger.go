package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger stores audit events in the audit_events table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database audit logger. The table is created by the
// schema migrations.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log inserts event and sets its ID
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	enrich(ctx, event)

	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	var userID sql.NullInt64
	if event.UserID != nil {
		userID = sql.NullInt64{Int64: *event.UserID, Valid: true}
	}

	query := `
		INSERT INTO audit_events (
			timestamp, event_type, status, user_id, username,
			resource_type, resource_id, ip_address, request_id, message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp, string(event.Type), string(event.Status), userID, event.Username,
		string(event.ResourceType), event.ResourceID, event.IPAddress, event.RequestID,
		event.Message, metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events, newest first
func (l *DBLogger) Recent(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, status, user_id, username,
			resource_type, resource_id, ip_address, request_id, message, metadata
		FROM audit_events
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var (
			eventType, status, resourceType string
			userID                          sql.NullInt64
			metadata                        sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &status, &userID, &e.Username,
			&resourceType, &e.ResourceID, &e.IPAddress, &e.RequestID, &e.Message, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = EventType(eventType)
		e.Status = EventStatus(status)
		e.ResourceType = ResourceType(resourceType)
		if userID.Valid {
			e.UserID = Int64(userID.Int64)
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close implements Logger
func (l *DBLogger) Close() error {
	return nil
}
