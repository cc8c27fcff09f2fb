package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"casevault/internal/database"
	"casevault/internal/database/migrations"
)

// NewTestStore creates a file-backed SQLite store in a temp directory with
// the full schema applied. The store is closed when the test completes.
func NewTestStore(t *testing.T) *database.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "casevault.db")
	return NewTestStoreAt(t, path)
}

// NewTestStoreAt creates a migrated store at the given path.
func NewTestStoreAt(t *testing.T, path string) *database.Store {
	t.Helper()

	store, err := database.Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	if _, err := migrations.NewMigrator(store).Up(); err != nil {
		store.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// CreateUser inserts a user row and returns its id.
func CreateUser(t *testing.T, store *database.Store, email string) int64 {
	t.Helper()

	res, err := store.DB().Exec(`INSERT INTO users (email, created_at) VALUES (?, ?)`, email, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to insert user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("failed to read user id: %v", err)
	}
	return id
}

// CreateSession inserts a session row for a user.
func CreateSession(t *testing.T, store *database.Store, token string, userID int64, expiresAt time.Time) {
	t.Helper()

	_, err := store.DB().Exec(`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		token, userID, expiresAt, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to insert session: %v", err)
	}
}

// CreateConsent inserts a consent record for a user.
func CreateConsent(t *testing.T, store *database.Store, id string, userID int64, purpose string) {
	t.Helper()

	_, err := store.DB().Exec(`INSERT INTO consent_records (id, user_id, purpose, granted, recorded_at) VALUES (?, ?, ?, 1, ?)`,
		id, userID, purpose, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to insert consent record: %v", err)
	}
}

// CountRows returns the row count of a table.
func CountRows(t *testing.T, store *database.Store, table string) int64 {
	t.Helper()

	var n int64
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("failed to count rows in %s: %v", table, err)
	}
	return n
}
