package core

import (
	"context"
	"fmt"
)

// RunMigrations applies all pending schema migrations in ascending
// dependency order, always preceded by an automatic pre-migration snapshot,
// even when nothing is pending, so every migration attempt has a recovery
// point. Each migration step is atomic, but the batch as a whole is not: a
// failure partway leaves the store as the partial application produced it,
// and operators restore from the pre-migration snapshot.
func (m *BackupManager) RunMigrations(ctx context.Context) (*MigrationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.runMigrationsLocked(ctx)
	if err != nil {
		m.recorder.Failure(ctx, EventTypeBackup, ActionMigrationsRun, ResourceDatabase, "", nil, err)
		return state, err
	}

	m.recorder.Success(ctx, EventTypeBackup, ActionMigrationsRun, ResourceDatabase, "", nil, map[string]any{
		"version":  state.Version,
		"applied":  len(state.Applied),
		"snapshot": state.SnapshotName,
	})
	return state, nil
}

func (m *BackupManager) runMigrationsLocked(ctx context.Context) (*MigrationState, error) {
	pending, err := m.migrator.Pending()
	if err != nil {
		return nil, fmt.Errorf("listing pending migrations: %w", err)
	}

	snapshot, err := m.createBackupLockedNoStats(preMigrationPrefix)
	if err != nil {
		return nil, fmt.Errorf("taking pre-migration snapshot: %w", err)
	}
	m.logger.Info("pre-migration snapshot taken", "filename", snapshot)

	applied, err := m.migrator.Up()
	if err != nil {
		version, dirty, _ := m.migrator.Version()
		return &MigrationState{
			Version:       version,
			Dirty:         dirty,
			Applied:       applied,
			PendingBefore: pending,
			SnapshotName:  snapshot,
		}, fmt.Errorf("applying migrations (restore %s to recover): %w", snapshot, err)
	}

	version, dirty, err := m.migrator.Version()
	if err != nil {
		return nil, fmt.Errorf("reading schema version: %w", err)
	}

	m.logger.Info("migrations complete", "version", version, "applied", len(applied))

	return &MigrationState{
		Version:       version,
		Dirty:         dirty,
		Applied:       applied,
		PendingBefore: pending,
		SnapshotName:  snapshot,
	}, nil
}
