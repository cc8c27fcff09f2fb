package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Backup filename prefixes. Manual backups use backupPrefix; the safety
// snapshots taken before a restore or migration run use the other two and
// are exempt from retention pruning.
const (
	backupPrefix       = "backup_"
	preRestorePrefix   = "pre-restore_"
	preMigrationPrefix = "pre_migration_backup_"
	backupSuffix       = ".db"
)

// Nanosecond precision keeps snapshot filenames unique even when two
// backups land within the same second.
const timestampLayout = "20060102T150405.000000000Z"

// BackupManager creates, lists, validates, restores and retires snapshot
// files of the primary store, and runs schema migrations behind a safety
// snapshot. A single mutex serializes all file-swapping operations so at
// most one administrative backup/restore/migrate is in flight at a time.
type BackupManager struct {
	store     PrimaryStore
	inspector StoreInspector
	migrator  Migrator
	vault     Vault // optional offsite replication target
	recorder  *Recorder
	logger    Logger
	clock     Clock
	backupDir string

	mu sync.Mutex
}

// NewBackupManager creates a BackupManager. vault may be nil when no offsite
// replication is configured.
func NewBackupManager(store PrimaryStore, inspector StoreInspector, migrator Migrator, vault Vault, recorder *Recorder, logger Logger, clock Clock, backupDir string) *BackupManager {
	return &BackupManager{
		store:     store,
		inspector: inspector,
		migrator:  migrator,
		vault:     vault,
		recorder:  recorder,
		logger:    logger,
		clock:     clock,
		backupDir: backupDir,
	}
}

// CreateBackup copies the primary store to a timestamped file in the backup
// directory and reads stats from the copy, never from the live store.
// Fails with ErrSourceMissing when no primary store file exists.
func (m *BackupManager) CreateBackup(ctx context.Context, label string) (*BackupMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, err := m.createBackupLocked(ctx, backupPrefix, label)
	if err != nil {
		m.recorder.Failure(ctx, EventTypeBackup, ActionBackupCreate, ResourceDatabase, label, nil, err)
		return nil, err
	}

	details := map[string]any{
		"filename":     meta.Filename,
		"size":         meta.Size,
		"record_count": meta.Stats.RecordCount,
	}
	if m.vault != nil {
		details["replicated"] = m.replicate(meta)
	}

	m.recorder.Success(ctx, EventTypeBackup, ActionBackupCreate, ResourceBackup, meta.Filename, nil, details)
	return meta, nil
}

// createBackupLocked performs the copy and stats read. The caller holds mu.
func (m *BackupManager) createBackupLocked(ctx context.Context, prefix, label string) (*BackupMetadata, error) {
	srcPath := m.store.Path()
	if srcPath == "" {
		return nil, fmt.Errorf("%w: store is not file-backed", ErrSourceMissing)
	}
	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, srcPath)
		}
		return nil, fmt.Errorf("%w: stat primary store: %v", ErrStorage, err)
	}

	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating backup directory: %v", ErrStorage, err)
	}

	filename := m.snapshotFilename(prefix, label)
	destPath := filepath.Join(m.backupDir, filename)

	if err := copyFileAtomic(srcPath, destPath); err != nil {
		return nil, fmt.Errorf("copying store to %s: %w", filename, err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return nil, fmt.Errorf("%w: stat backup: %v", ErrStorage, err)
	}

	// Stats come from the copy so the live store holds no long lock.
	stats, err := m.inspector.ReadStats(ctx, destPath)
	if err != nil {
		return nil, fmt.Errorf("reading stats from backup copy: %w", err)
	}

	m.logger.Info("backup created", "filename", filename, "size", info.Size(), "records", stats.RecordCount)

	return &BackupMetadata{
		Filename:  filename,
		Path:      destPath,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
		Valid:     true,
		Stats:     stats,
	}, nil
}

// ListBackups enumerates the backup directory, newest first. Files that do
// not open as a store are listed with Valid=false so operators can see and
// investigate corrupt backups.
func (m *BackupManager) ListBackups(ctx context.Context) ([]*BackupMetadata, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading backup directory: %v", ErrStorage, err)
	}

	var backups []*BackupMetadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), backupSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %v", ErrStorage, entry.Name(), err)
		}

		meta := &BackupMetadata{
			Filename:  entry.Name(),
			Path:      filepath.Join(m.backupDir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		}
		if stats, err := m.inspector.ReadStats(ctx, meta.Path); err == nil {
			meta.Valid = true
			meta.Stats = stats
		}
		backups = append(backups, meta)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// DeleteBackup removes a backup file. Irreversible; role checks belong to
// the administrative caller.
func (m *BackupManager) DeleteBackup(ctx context.Context, filename string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.deleteBackupLocked(filename); err != nil {
		m.recorder.Failure(ctx, EventTypeBackup, ActionBackupDelete, ResourceBackup, filename, &userID, err)
		return err
	}

	m.recorder.Success(ctx, EventTypeBackup, ActionBackupDelete, ResourceBackup, filename, &userID, nil)
	return nil
}

func (m *BackupManager) deleteBackupLocked(filename string) error {
	path, err := m.resolveBackupPath(filename)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: backup %s", ErrResourceNotFound, filename)
		}
		return fmt.Errorf("%w: stat backup: %v", ErrStorage, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: removing backup: %v", ErrStorage, err)
	}
	m.logger.Info("backup deleted", "filename", filename)
	return nil
}

// ApplyRetention removes the oldest manual backups beyond keep. A keep of
// zero disables pruning entirely. Safety snapshots (pre-restore,
// pre-migration) are never pruned.
func (m *BackupManager) ApplyRetention(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("retention keep count must not be negative: %d", keep)
	}
	if keep == 0 {
		m.logger.Debug("retention pruning disabled")
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	backups, err := m.ListBackups(ctx)
	if err != nil {
		m.recorder.Failure(ctx, EventTypeBackup, ActionBackupPrune, ResourceDatabase, "", nil, err)
		return 0, err
	}

	// ListBackups returns newest first, so everything past keep goes.
	var manual []*BackupMetadata
	for _, b := range backups {
		if strings.HasPrefix(b.Filename, backupPrefix) {
			manual = append(manual, b)
		}
	}

	pruned := 0
	for _, b := range manual[min(keep, len(manual)):] {
		if err := os.Remove(b.Path); err != nil {
			err = fmt.Errorf("%w: pruning %s: %v", ErrStorage, b.Filename, err)
			m.recorder.Failure(ctx, EventTypeBackup, ActionBackupPrune, ResourceBackup, b.Filename, nil, err)
			return pruned, err
		}
		m.logger.Info("backup pruned", "filename", b.Filename)
		pruned++
	}

	m.recorder.Success(ctx, EventTypeBackup, ActionBackupPrune, ResourceDatabase, "", nil, map[string]any{
		"kept":   min(keep, len(manual)),
		"pruned": pruned,
	})
	return pruned, nil
}

// replicate uploads a snapshot to the configured vault. Replication failures
// are reported but never fail the local backup that already succeeded.
func (m *BackupManager) replicate(meta *BackupMetadata) bool {
	f, err := os.Open(meta.Path)
	if err != nil {
		m.logger.Warn("snapshot replication skipped", "filename", meta.Filename, "error", err)
		return false
	}
	defer f.Close()

	if err := m.vault.PutSnapshot(meta.Filename, f, meta.Size); err != nil {
		m.logger.Warn("snapshot replication failed", "filename", meta.Filename, "error", err)
		return false
	}

	m.logger.Info("snapshot replicated", "filename", meta.Filename)
	return true
}

// resolveBackupPath validates a backup filename and returns its absolute
// path inside the backup directory. The resolved-path prefix comparison is
// the authoritative check; the substring checks are an early, cheaper
// rejection of obviously hostile names.
func (m *BackupManager) resolveBackupPath(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("%w: empty filename", ErrPathTraversal)
	}
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, filename)
	}

	baseDir, err := filepath.Abs(m.backupDir)
	if err != nil {
		return "", fmt.Errorf("%w: resolving backup directory: %v", ErrStorage, err)
	}

	resolved, err := filepath.Abs(filepath.Join(baseDir, filename))
	if err != nil {
		return "", fmt.Errorf("%w: resolving %q: %v", ErrStorage, filename, err)
	}
	if resolved != filepath.Join(baseDir, filepath.Base(resolved)) ||
		!strings.HasPrefix(resolved, baseDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q resolves outside backup directory", ErrPathTraversal, filename)
	}

	return resolved, nil
}

// snapshotFilename builds a timestamped filename for a snapshot.
func (m *BackupManager) snapshotFilename(prefix, label string) string {
	ts := m.clock.Now().UTC().Format(timestampLayout)
	if label != "" {
		return prefix + ts + "_" + sanitizeLabel(label) + backupSuffix
	}
	return prefix + ts + backupSuffix
}

// sanitizeLabel strips anything that could alter the snapshot path.
func sanitizeLabel(label string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, label)
}

// copyFileAtomic copies src to dest via a temp file in the destination
// directory followed by a rename, so a partially written backup is never
// visible under its final name.
func copyFileAtomic(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: opening source: %v", ErrStorage, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-snapshot-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrStorage, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: copying data: %v", ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: syncing temp file: %v", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: closing temp file: %v", ErrStorage, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: renaming temp file: %v", ErrStorage, err)
	}
	return nil
}
