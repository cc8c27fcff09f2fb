package core

import "time"

// StoreStats describes the contents of a store file, read without holding a
// lock on the live primary store.
type StoreStats struct {
	SchemaVersion uint
	RecordCount   int64
	Tables        []string
}

// BackupMetadata describes one snapshot file in the backup directory.
// Path is always resolved to lie inside the backup directory. A file that
// fails to open as a store is listed with Valid=false and nil Stats rather
// than being omitted.
type BackupMetadata struct {
	Filename  string
	Path      string
	Size      int64
	CreatedAt time.Time
	Valid     bool
	Stats     *StoreStats
}

// MigrationState reports schema migration status after a RunMigrations call.
type MigrationState struct {
	Version       uint
	Dirty         bool
	Applied       []uint
	PendingBefore []uint
	SnapshotName  string
}

// Session maps an opaque token to a user identity and an expiry. The core
// only reads sessions; login and revocation live elsewhere.
type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}
