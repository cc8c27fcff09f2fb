package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Restore replaces the primary store with the named backup.
//
// Order of operations: validate the filename, validate the backup opens as a
// store, snapshot the current primary (pre-restore), then close the primary
// handle, copy the backup over it, and reopen. If anything after the
// pre-restore snapshot fails the operation reports failure and leaves the
// snapshot in place for manual recovery; it never auto-rolls-back with
// another blind copy. The store handle is reopened even on failure so no
// code path leaves the store permanently closed.
func (m *BackupManager) Restore(ctx context.Context, filename string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.restoreLocked(ctx, filename); err != nil {
		m.recorder.Failure(ctx, EventTypeBackup, ActionBackupRestore, ResourceBackup, filename, &userID, err)
		return err
	}

	m.recorder.Success(ctx, EventTypeBackup, ActionBackupRestore, ResourceBackup, filename, &userID, nil)
	return nil
}

func (m *BackupManager) restoreLocked(ctx context.Context, filename string) error {
	backupPath, err := m.resolveBackupPath(filename)
	if err != nil {
		return err
	}
	if _, err := os.Stat(backupPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: backup %s", ErrResourceNotFound, filename)
		}
		return fmt.Errorf("%w: stat backup: %v", ErrStorage, err)
	}

	// A backup that does not open as a store must never be copied over the
	// primary.
	if _, err := m.inspector.ReadStats(ctx, backupPath); err != nil {
		return fmt.Errorf("validating backup %s: %w", filename, err)
	}

	primaryPath := m.store.Path()
	if primaryPath == "" {
		return fmt.Errorf("%w: store is not file-backed", ErrSourceMissing)
	}

	// Safety snapshot of the current state, whatever that state is.
	preRestore, err := m.createBackupLockedNoStats(preRestorePrefix)
	if err != nil {
		return fmt.Errorf("taking pre-restore snapshot: %w", err)
	}
	m.logger.Info("pre-restore snapshot taken", "filename", preRestore)

	// Critical section: the store is closed only for the file copy, and
	// in-flight queries fail fast instead of hanging.
	if err := m.store.Close(); err != nil {
		return fmt.Errorf("%w: closing primary store: %v", ErrStorage, err)
	}

	copyErr := copyFileAtomic(backupPath, primaryPath)

	if err := m.store.Reopen(); err != nil {
		if copyErr != nil {
			return fmt.Errorf("%w: reopening store after failed copy (%v): %v", ErrStorage, copyErr, err)
		}
		return fmt.Errorf("%w: reopening restored store: %v", ErrStorage, err)
	}
	if copyErr != nil {
		return fmt.Errorf("copying backup over primary: %w", copyErr)
	}

	m.logger.Info("store restored", "filename", filename)
	return nil
}

// createBackupLockedNoStats copies the primary store to a safety snapshot
// without opening the copy. Used for the pre-restore snapshot, which may
// capture an already-corrupt primary and must still succeed.
func (m *BackupManager) createBackupLockedNoStats(prefix string) (string, error) {
	srcPath := m.store.Path()
	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSourceMissing, srcPath)
		}
		return "", fmt.Errorf("%w: stat primary store: %v", ErrStorage, err)
	}
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("%w: creating backup directory: %v", ErrStorage, err)
	}

	filename := m.snapshotFilename(prefix, "")
	if err := copyFileAtomic(srcPath, filepath.Join(m.backupDir, filename)); err != nil {
		return "", err
	}
	return filename, nil
}

// FetchSnapshot downloads a replicated snapshot from the offsite vault into
// the backup directory, where Restore can then use it.
func (m *BackupManager) FetchSnapshot(ctx context.Context, filename string) (string, error) {
	if m.vault == nil {
		return "", fmt.Errorf("no replication vault configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	path, err := m.resolveBackupPath(filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("%w: creating backup directory: %v", ErrStorage, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("%w: creating snapshot file: %v", ErrStorage, err)
	}
	defer f.Close()

	if err := m.vault.GetSnapshot(filename, f); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("fetching snapshot from vault: %w", err)
	}

	m.logger.Info("snapshot fetched from vault", "filename", filename)
	return path, nil
}
