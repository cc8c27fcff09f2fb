package core

import "context"

// SessionStore resolves opaque session tokens. The substrate only consumes
// sessions; it never creates or destroys them.
type SessionStore interface {
	// FindSession returns the session for a token, or nil if the token is
	// unknown. Expiry is checked by the guard, not here.
	FindSession(ctx context.Context, token string) (*Session, error)
}

// OwnerStore resolves the owning user of a resource.
type OwnerStore interface {
	// FindOwner returns the owner's user id for a resource, or (0, false)
	// if the resource does not exist.
	FindOwner(ctx context.Context, resourceType, resourceID string) (int64, bool, error)
}

// AuditStore is the insert-only persistence behind the audit ledger.
// No update or delete operation exists on this interface or its
// implementations; the ledger is the canonical history.
type AuditStore interface {
	// Append writes one event. The event's ID and Timestamp must already
	// be assigned by the recorder.
	Append(ctx context.Context, event *AuditEvent) error

	// List returns events matching the filter, newest first.
	List(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error)
}

// PrimaryStore is the handle the backup manager uses to swap the primary
// store file. The store is always Open or Closed; Close and Reopen bracket
// the critical section of a restore, and in-flight queries against a closed
// store fail fast rather than hang.
type PrimaryStore interface {
	// Path returns the absolute path of the store file, or "" for an
	// in-memory store.
	Path() string

	// Close releases the underlying connection. Queries issued afterwards
	// fail immediately.
	Close() error

	// Reopen re-establishes the connection after the file has been swapped.
	Reopen() error
}

// StoreInspector validates store files and reads their stats without going
// through the live primary connection.
type StoreInspector interface {
	// ReadStats opens the file at path read-only and returns its schema
	// version, record count and table names. A file that does not open as
	// a well-formed store yields an error wrapping ErrCorruptBackup.
	ReadStats(ctx context.Context, path string) (*StoreStats, error)
}

// Migrator applies schema migrations to the primary store.
type Migrator interface {
	// Pending returns migration versions not yet applied, ascending.
	Pending() ([]uint, error)

	// Up applies all pending migrations in ascending dependency order and
	// returns the versions it applied.
	Up() ([]uint, error)

	// Version returns the current schema version and dirty flag. A store
	// with no schema yet reports (0, false, nil).
	Version() (uint, bool, error)
}
