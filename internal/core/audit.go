package core

import (
	"context"
	"fmt"
)

// Recorder appends immutable events to the audit ledger. A failure to append
// never aborts the business operation being documented: the error goes to
// the structured logger as a fallback diagnostic channel and Record returns
// nil to the caller.
type Recorder struct {
	store  AuditStore
	logger Logger
	clock  Clock
	idgen  IDGenerator
}

// NewRecorder creates a Recorder writing to the given store.
func NewRecorder(store AuditStore, logger Logger, clock Clock, idgen IDGenerator) *Recorder {
	return &Recorder{store: store, logger: logger, clock: clock, idgen: idgen}
}

// Record appends one event. The event's timestamp is assigned here, at write
// time; any timestamp supplied by the caller is ignored.
func (r *Recorder) Record(ctx context.Context, event AuditEvent) {
	if err := r.RecordStrict(ctx, event); err != nil {
		r.logger.Error("audit append failed",
			"action", event.Action,
			"resource_type", event.ResourceType,
			"resource_id", event.ResourceID,
			"error", err)
	}
}

// RecordStrict is Record for callers that must observe append failures, such
// as the ledger's own tests.
func (r *Recorder) RecordStrict(ctx context.Context, event AuditEvent) error {
	if event.Action == "" {
		return fmt.Errorf("recording audit event: action is required")
	}
	if event.EventType == "" {
		event.EventType = EventTypeSystem
	}

	event.ID = r.idgen.New()
	event.Timestamp = r.clock.Now().UTC()

	if err := r.store.Append(ctx, &event); err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

// Success records a terminal success event for a privileged operation.
func (r *Recorder) Success(ctx context.Context, eventType, action, resourceType, resourceID string, userID *int64, details map[string]any) {
	r.Record(ctx, AuditEvent{
		EventType:    eventType,
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		Success:      true,
		Details:      details,
	})
}

// Failure records a terminal failure event for a privileged operation.
func (r *Recorder) Failure(ctx context.Context, eventType, action, resourceType, resourceID string, userID *int64, opErr error) {
	msg := ""
	if opErr != nil {
		msg = opErr.Error()
	}
	r.Record(ctx, AuditEvent{
		EventType:    eventType,
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		Success:      false,
		ErrorMessage: msg,
	})
}

// List reads the ledger for GDPR export and security review.
func (r *Recorder) List(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error) {
	events, err := r.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	return events, nil
}
