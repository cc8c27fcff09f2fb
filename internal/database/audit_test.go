package database_test

import (
	"context"
	"testing"
	"time"

	"casevault/internal/core"
	"casevault/internal/database"
	"casevault/internal/testutil"
)

func appendEvent(t *testing.T, store *database.AuditStore, event core.AuditEvent) {
	t.Helper()
	if err := store.Append(context.Background(), &event); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
}

func TestAuditStore_AppendAndList(t *testing.T) {
	store := testutil.NewTestStore(t)
	audit := database.NewAuditStore(store)
	userA, userB := int64(1), int64(2)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	appendEvent(t, audit, core.AuditEvent{
		ID: "ev-1", EventType: core.EventTypeData, UserID: &userA,
		ResourceType: core.ResourceCase, ResourceID: "case-1",
		Action: core.ActionCaseCreate, Success: true,
		Details:   map[string]any{"title": "Theft"},
		Timestamp: base,
	})
	appendEvent(t, audit, core.AuditEvent{
		ID: "ev-2", EventType: core.EventTypeData, UserID: &userB,
		ResourceType: core.ResourceCase, ResourceID: "case-2",
		Action: core.ActionCaseRead, Success: false,
		ErrorMessage: "resource not found",
		Timestamp:    base.Add(time.Minute),
	})
	appendEvent(t, audit, core.AuditEvent{
		ID: "ev-3", EventType: core.EventTypeBackup,
		ResourceType: core.ResourceBackup, ResourceID: "backup_1.db",
		Action: core.ActionBackupCreate, Success: true,
		Timestamp: base.Add(2 * time.Minute),
	})

	t.Run("lists newest first", func(t *testing.T) {
		events, err := audit.List(context.Background(), core.AuditFilter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("got %d events, want 3", len(events))
		}
		if events[0].ID != "ev-3" || events[2].ID != "ev-1" {
			t.Errorf("order = [%s %s %s], want newest first", events[0].ID, events[1].ID, events[2].ID)
		}
	})

	t.Run("round-trips fields", func(t *testing.T) {
		events, err := audit.List(context.Background(), core.AuditFilter{ResourceID: "case-1"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
		e := events[0]
		if e.UserID == nil || *e.UserID != userA {
			t.Errorf("UserID = %v, want %d", e.UserID, userA)
		}
		if e.Details["title"] != "Theft" {
			t.Errorf("Details = %v, want title=Theft", e.Details)
		}
		if !e.Success {
			t.Error("Success = false, want true")
		}
	})

	t.Run("system events carry a nil user", func(t *testing.T) {
		events, err := audit.List(context.Background(), core.AuditFilter{Action: core.ActionBackupCreate})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
		if events[0].UserID != nil {
			t.Errorf("UserID = %v, want nil", events[0].UserID)
		}
	})

	t.Run("filters by user", func(t *testing.T) {
		events, err := audit.List(context.Background(), core.AuditFilter{UserID: &userB})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(events) != 1 || events[0].ID != "ev-2" {
			t.Errorf("events = %v, want [ev-2]", events)
		}
		if events[0].ErrorMessage != "resource not found" {
			t.Errorf("ErrorMessage = %q", events[0].ErrorMessage)
		}
	})

	t.Run("filters by time window", func(t *testing.T) {
		since := base.Add(30 * time.Second)
		until := base.Add(90 * time.Second)
		events, err := audit.List(context.Background(), core.AuditFilter{Since: &since, Until: &until})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(events) != 1 || events[0].ID != "ev-2" {
			t.Errorf("got %d events, want only ev-2", len(events))
		}
	})

	t.Run("limit caps the result", func(t *testing.T) {
		events, err := audit.List(context.Background(), core.AuditFilter{Limit: 2})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(events) != 2 {
			t.Errorf("got %d events, want 2", len(events))
		}
	})
}
