package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"casevault/internal/core"
)

// AuditStore persists the audit ledger. The write path is insert-only: no
// update or delete statement exists anywhere in this file, and none may be
// added; the ledger is the canonical history for GDPR export and security
// review.
type AuditStore struct {
	store *Store
}

var _ core.AuditStore = (*AuditStore)(nil)

// NewAuditStore creates an AuditStore over the primary store.
func NewAuditStore(store *Store) *AuditStore {
	return &AuditStore{store: store}
}

// Append inserts one event row.
func (s *AuditStore) Append(ctx context.Context, event *core.AuditEvent) error {
	var details any
	if event.Details != nil {
		data, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshaling details: %w", err)
		}
		details = string(data)
	}

	var userID any
	if event.UserID != nil {
		userID = *event.UserID
	}

	_, err := s.store.DB().ExecContext(ctx, `
		INSERT INTO audit_events (id, event_type, user_id, resource_type, resource_id, action, success, details, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.EventType, userID, event.ResourceType, event.ResourceID,
		event.Action, event.Success, details, event.ErrorMessage, event.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: inserting audit event: %v", core.ErrStorage, err)
	}
	return nil
}

// List returns events matching the filter, newest first.
func (s *AuditStore) List(ctx context.Context, filter core.AuditFilter) ([]*core.AuditEvent, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.ResourceType != "" {
		where = append(where, "resource_type = ?")
		args = append(args, filter.ResourceType)
	}
	if filter.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		where = append(where, "created_at <= ?")
		args = append(args, *filter.Until)
	}

	query := "SELECT id, event_type, user_id, resource_type, resource_id, action, success, details, error_message, created_at FROM audit_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying audit events: %v", core.ErrStorage, err)
	}
	defer rows.Close()

	var events []*core.AuditEvent
	for rows.Next() {
		var (
			event     core.AuditEvent
			userID    sql.NullInt64
			details   sql.NullString
			errMsg    sql.NullString
			createdAt time.Time
		)
		if err := rows.Scan(&event.ID, &event.EventType, &userID, &event.ResourceType,
			&event.ResourceID, &event.Action, &event.Success, &details, &errMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scanning audit event: %v", core.ErrStorage, err)
		}
		if userID.Valid {
			id := userID.Int64
			event.UserID = &id
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &event.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling details for event %s: %w", event.ID, err)
			}
		}
		event.ErrorMessage = errMsg.String
		event.Timestamp = createdAt
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating audit events: %v", core.ErrStorage, err)
	}
	return events, nil
}
