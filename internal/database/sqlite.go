package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"casevault/internal/core"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store wraps the primary SQLite store with the Open/Closed lifecycle the
// backup manager needs: Close and Reopen bracket a file swap, and queries
// issued against a closed store fail fast with the driver's closed-database
// error instead of hanging.
type Store struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

var _ core.PrimaryStore = (*Store)(nil)

// Open opens the primary store at path. path can be ":memory:" for tests,
// in which case backup operations refuse to run (no file to copy).
func Open(path string) (*Store, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, db: db}, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured
// SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", core.ErrStorage, err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enabling foreign keys: %v", core.ErrStorage, err)
	}
	// Wait for short-lived locks instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: setting busy timeout: %v", core.ErrStorage, err)
	}

	return db, nil
}

// Path returns the store file path, or "" for an in-memory store.
func (s *Store) Path() string {
	if s.path == ":memory:" {
		return ""
	}
	return s.path
}

// DB returns the current connection handle. Repositories call this per
// operation so they always see the post-restore connection.
func (s *Store) DB() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Close releases the connection. In-flight and later queries through a
// handle obtained before Close fail immediately.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: closing store: %v", core.ErrStorage, err)
	}
	return nil
}

// Reopen re-establishes the connection after the underlying file changed.
func (s *Store) Reopen() error {
	db, err := OpenConnection(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return nil
}

// Inspector opens store files read-only to validate them and read stats,
// so backup metadata never comes from the live primary connection.
type Inspector struct{}

var _ core.StoreInspector = (*Inspector)(nil)

// ReadStats opens the file at path in read-only immutable mode and reads its
// schema version, table names and total row count. Any file that fails to
// open or query as SQLite yields an error wrapping core.ErrCorruptBackup.
func (Inspector) ReadStats(ctx context.Context, path string) (*core.StoreStats, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&immutable=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptBackup, err)
	}
	defer db.Close()

	tables, err := listTables(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptBackup, err)
	}

	stats := &core.StoreStats{Tables: tables}

	for _, table := range tables {
		if table == "schema_migrations" {
			continue
		}
		var n int64
		// Table names come from sqlite_master, not caller input.
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("%w: counting %s: %v", core.ErrCorruptBackup, table, err)
		}
		stats.RecordCount += n
	}

	var version uint
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version)
	if err == nil {
		stats.SchemaVersion = version
	}

	return stats, nil
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
