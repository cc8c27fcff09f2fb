package database_test

import (
	"context"
	"testing"
	"time"

	"casevault/internal/core"
	"casevault/internal/database"
	"casevault/internal/testutil"
)

func TestSessionStore_FindSession(t *testing.T) {
	store := testutil.NewTestStore(t)
	sessions := database.NewSessionStore(store)

	userID := testutil.CreateUser(t, store, "a@example.com")
	expiry := time.Now().Add(time.Hour).UTC()
	testutil.CreateSession(t, store, "tok-1", userID, expiry)

	t.Run("known token", func(t *testing.T) {
		session, err := sessions.FindSession(context.Background(), "tok-1")
		if err != nil {
			t.Fatalf("FindSession() error = %v", err)
		}
		if session == nil {
			t.Fatal("FindSession() = nil, want session")
		}
		if session.UserID != userID {
			t.Errorf("UserID = %d, want %d", session.UserID, userID)
		}
		if !session.ExpiresAt.Equal(expiry) {
			t.Errorf("ExpiresAt = %v, want %v", session.ExpiresAt, expiry)
		}
	})

	t.Run("unknown token returns nil without error", func(t *testing.T) {
		session, err := sessions.FindSession(context.Background(), "tok-unknown")
		if err != nil {
			t.Fatalf("FindSession() error = %v", err)
		}
		if session != nil {
			t.Errorf("FindSession() = %+v, want nil", session)
		}
	})
}

func TestOwnerStore_FindOwner(t *testing.T) {
	store := testutil.NewTestStore(t)
	owners := database.NewOwnerStore(store)

	userID := testutil.CreateUser(t, store, "a@example.com")
	now := time.Now().UTC()
	if _, err := store.DB().Exec(`INSERT INTO cases (id, user_id, title, notes, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"case-1", userID, "Theft", "", now, now); err != nil {
		t.Fatalf("inserting case: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO evidence (id, case_id, user_id, description, content, tags, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"ev-1", "case-1", userID, "photo", "", "", now); err != nil {
		t.Fatalf("inserting evidence: %v", err)
	}

	t.Run("case owner", func(t *testing.T) {
		owner, found, err := owners.FindOwner(context.Background(), core.ResourceCase, "case-1")
		if err != nil {
			t.Fatalf("FindOwner() error = %v", err)
		}
		if !found || owner != userID {
			t.Errorf("FindOwner() = (%d, %v), want (%d, true)", owner, found, userID)
		}
	})

	t.Run("evidence owner", func(t *testing.T) {
		owner, found, err := owners.FindOwner(context.Background(), core.ResourceEvidence, "ev-1")
		if err != nil {
			t.Fatalf("FindOwner() error = %v", err)
		}
		if !found || owner != userID {
			t.Errorf("FindOwner() = (%d, %v), want (%d, true)", owner, found, userID)
		}
	})

	t.Run("missing resource", func(t *testing.T) {
		_, found, err := owners.FindOwner(context.Background(), core.ResourceCase, "case-missing")
		if err != nil {
			t.Fatalf("FindOwner() error = %v", err)
		}
		if found {
			t.Error("FindOwner() found = true for a missing resource")
		}
	})

	t.Run("unknown resource type is an error", func(t *testing.T) {
		if _, _, err := owners.FindOwner(context.Background(), "widget", "w-1"); err == nil {
			t.Error("FindOwner() with unknown type succeeded, want error")
		}
	})
}
