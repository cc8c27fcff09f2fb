// Package migrations applies the embedded schema migrations to the primary
// store using golang-migrate. The backup manager always snapshots the store
// before calling into this package.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"sort"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"casevault/internal/core"
	"casevault/internal/database"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// Migrator implements core.Migrator over the primary store. A migrate
// instance is built per call so it always wraps the store's current
// connection, including the one established after a restore.
type Migrator struct {
	store *database.Store
}

var _ core.Migrator = (*Migrator)(nil)

// NewMigrator creates a Migrator for the given store.
func NewMigrator(store *database.Store) *Migrator {
	return &Migrator{store: store}
}

// Version returns the current schema version and dirty flag. A store with
// no schema yet reports (0, false, nil).
func (m *Migrator) Version() (uint, bool, error) {
	inst, cleanup, err := m.newMigrate()
	if err != nil {
		return 0, false, err
	}
	defer cleanup()

	version, dirty, err := inst.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("reading schema version: %w", err)
	}
	return version, dirty, nil
}

// Pending returns migration versions above the current schema version,
// ascending.
func (m *Migrator) Pending() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, err
	}

	all, err := allVersions()
	if err != nil {
		return nil, err
	}

	var pending []uint
	for _, v := range all {
		if v > current {
			pending = append(pending, v)
		}
	}
	return pending, nil
}

// Up applies all pending migrations in ascending dependency order and
// returns the versions applied. Each migration step is atomic; the batch is
// not.
func (m *Migrator) Up() ([]uint, error) {
	pending, err := m.Pending()
	if err != nil {
		return nil, err
	}

	inst, cleanup, err := m.newMigrate()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := inst.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil, nil
		}
		// Report what did land before the failure.
		version, _, verErr := m.Version()
		var applied []uint
		if verErr == nil {
			for _, v := range pending {
				if v <= version {
					applied = append(applied, v)
				}
			}
		}
		return applied, fmt.Errorf("migration failed: %w", err)
	}

	return pending, nil
}

// newMigrate creates a migrate instance over the store's current connection.
// The returned cleanup closes the source driver only; the store owns the
// database connection.
func (m *Migrator) newMigrate() (*migrate.Migrate, func(), error) {
	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, nil, fmt.Errorf("creating source driver: %w", err)
	}

	dbDriver, err := sqlite3.WithInstance(m.store.DB(), &sqlite3.Config{})
	if err != nil {
		sourceDriver.Close()
		return nil, nil, fmt.Errorf("creating database driver: %w", err)
	}

	inst, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, nil, fmt.Errorf("creating migrate instance: %w", err)
	}

	return inst, func() { sourceDriver.Close() }, nil
}

// allVersions returns every migration version in the embedded source,
// ascending.
func allVersions() ([]uint, error) {
	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("reading migration files: %w", err)
	}
	defer sourceDriver.Close()

	versions, err := collectVersions(sourceDriver)
	if err != nil {
		return nil, fmt.Errorf("listing migration versions: %w", err)
	}
	return versions, nil
}

// collectVersions walks the source driver from First through Next until
// exhausted.
func collectVersions(src source.Driver) ([]uint, error) {
	version, err := src.First()
	if err != nil {
		return nil, err
	}

	versions := []uint{version}
	for {
		next, err := src.Next(version)
		if err != nil {
			// Any error from Next() means we've reached the end.
			break
		}
		versions = append(versions, next)
		version = next
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}
