package core_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"casevault/internal/core"
	"casevault/internal/database"
	"casevault/internal/database/migrations"
	"casevault/internal/testutil"
)

// backupEnv wires a BackupManager over a real migrated store with a memory
// audit ledger, the way the application assembles it.
type backupEnv struct {
	store *database.Store
	audit *testutil.MemoryAuditStore
	clock *testutil.StubClock
	dir   string
	mgr   *core.BackupManager
}

func newBackupEnv(t *testing.T) *backupEnv {
	t.Helper()
	return newBackupEnvWithVault(t, nil)
}

func newBackupEnvWithVault(t *testing.T, vault core.Vault) *backupEnv {
	t.Helper()

	store := testutil.NewTestStore(t)
	audit := testutil.NewMemoryAuditStore()
	clock := testutil.FixedClock()
	recorder := core.NewRecorder(audit, core.NewNopLogger(), clock, testutil.NewStubIDGenerator())
	dir := filepath.Join(t.TempDir(), "backups")

	mgr := core.NewBackupManager(store, database.Inspector{}, migrations.NewMigrator(store), vault,
		recorder, core.NewNopLogger(), clock, dir)

	return &backupEnv{store: store, audit: audit, clock: clock, dir: dir, mgr: mgr}
}

// lastEvent returns the most recent audit event for an action.
func (e *backupEnv) lastEvent(t *testing.T, action string) *core.AuditEvent {
	t.Helper()
	events := e.audit.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Action == action {
			return events[i]
		}
	}
	t.Fatalf("no audit event for action %s", action)
	return nil
}

func TestBackupManager_CreateBackup(t *testing.T) {
	t.Run("copies the store and reads stats from the copy", func(t *testing.T) {
		env := newBackupEnv(t)
		testutil.CreateUser(t, env.store, "a@example.com")
		testutil.CreateUser(t, env.store, "b@example.com")

		meta, err := env.mgr.CreateBackup(context.Background(), "")
		if err != nil {
			t.Fatalf("CreateBackup() error = %v", err)
		}

		if !strings.HasPrefix(meta.Filename, "backup_") || !strings.HasSuffix(meta.Filename, ".db") {
			t.Errorf("filename = %q, want backup_*.db", meta.Filename)
		}
		if _, err := os.Stat(meta.Path); err != nil {
			t.Errorf("backup file missing: %v", err)
		}
		if !meta.Valid {
			t.Error("backup not marked valid")
		}
		if meta.Stats.RecordCount != 2 {
			t.Errorf("record count = %d, want 2", meta.Stats.RecordCount)
		}

		event := env.lastEvent(t, core.ActionBackupCreate)
		if !event.Success {
			t.Error("audit event not marked success")
		}
		if event.UserID != nil {
			t.Errorf("audit event UserID = %v, want nil for system action", event.UserID)
		}
	})

	t.Run("label is sanitized into the filename", func(t *testing.T) {
		env := newBackupEnv(t)

		meta, err := env.mgr.CreateBackup(context.Background(), "before upgrade/2")
		if err != nil {
			t.Fatalf("CreateBackup() error = %v", err)
		}
		if strings.ContainsAny(meta.Filename, `/\ `) {
			t.Errorf("filename %q contains unsanitized characters", meta.Filename)
		}
		if !strings.Contains(meta.Filename, "before-upgrade-2") {
			t.Errorf("filename %q does not carry the label", meta.Filename)
		}
	})

	t.Run("backups in the same second get distinct filenames", func(t *testing.T) {
		env := newBackupEnv(t)

		first, err := env.mgr.CreateBackup(context.Background(), "")
		if err != nil {
			t.Fatalf("CreateBackup() error = %v", err)
		}
		env.clock.Advance(time.Nanosecond)
		second, err := env.mgr.CreateBackup(context.Background(), "")
		if err != nil {
			t.Fatalf("CreateBackup() error = %v", err)
		}

		if first.Filename == second.Filename {
			t.Fatalf("both backups were written to %s", first.Filename)
		}
		for _, name := range []string{first.Filename, second.Filename} {
			if _, err := os.Stat(filepath.Join(env.dir, name)); err != nil {
				t.Errorf("backup %s missing: %v", name, err)
			}
		}
	})

	t.Run("in-memory store has no source file", func(t *testing.T) {
		store, err := database.Open(":memory:")
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer store.Close()

		audit := testutil.NewMemoryAuditStore()
		recorder := core.NewRecorder(audit, core.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator())
		mgr := core.NewBackupManager(store, database.Inspector{}, nil, nil, recorder, core.NewNopLogger(), testutil.FixedClock(), t.TempDir())

		_, err = mgr.CreateBackup(context.Background(), "")
		if !errors.Is(err, core.ErrSourceMissing) {
			t.Errorf("CreateBackup() error = %v, want ErrSourceMissing", err)
		}

		events := audit.Events()
		if len(events) != 1 || events[0].Success {
			t.Errorf("want one failure audit event, got %+v", events)
		}
	})

	t.Run("replicates to the vault when configured", func(t *testing.T) {
		vault := testutil.NewTestVault()
		env := newBackupEnvWithVault(t, vault)

		meta, err := env.mgr.CreateBackup(context.Background(), "")
		if err != nil {
			t.Fatalf("CreateBackup() error = %v", err)
		}

		names, err := vault.ListSnapshots()
		if err != nil {
			t.Fatalf("ListSnapshots() error = %v", err)
		}
		if len(names) != 1 || names[0] != meta.Filename {
			t.Errorf("vault snapshots = %v, want [%s]", names, meta.Filename)
		}

		event := env.lastEvent(t, core.ActionBackupCreate)
		if replicated, ok := event.Details["replicated"].(bool); !ok || !replicated {
			t.Errorf("audit details replicated = %v, want true", event.Details["replicated"])
		}
	})
}

func TestBackupManager_ListBackups(t *testing.T) {
	t.Run("missing directory lists nothing", func(t *testing.T) {
		env := newBackupEnv(t)

		backups, err := env.mgr.ListBackups(context.Background())
		if err != nil {
			t.Fatalf("ListBackups() error = %v", err)
		}
		if len(backups) != 0 {
			t.Errorf("got %d backups, want 0", len(backups))
		}
	})

	t.Run("corrupt files are listed as invalid", func(t *testing.T) {
		env := newBackupEnv(t)
		if _, err := env.mgr.CreateBackup(context.Background(), ""); err != nil {
			t.Fatalf("CreateBackup() error = %v", err)
		}

		corrupt := filepath.Join(env.dir, "backup_garbage.db")
		if err := os.WriteFile(corrupt, []byte("not a database"), 0600); err != nil {
			t.Fatalf("writing corrupt file: %v", err)
		}

		backups, err := env.mgr.ListBackups(context.Background())
		if err != nil {
			t.Fatalf("ListBackups() error = %v", err)
		}
		if len(backups) != 2 {
			t.Fatalf("got %d backups, want 2", len(backups))
		}

		for _, b := range backups {
			valid := b.Filename != "backup_garbage.db"
			if b.Valid != valid {
				t.Errorf("backup %s Valid = %v, want %v", b.Filename, b.Valid, valid)
			}
		}
	})

	t.Run("sorted newest first", func(t *testing.T) {
		env := newBackupEnv(t)
		for i := 0; i < 3; i++ {
			if _, err := env.mgr.CreateBackup(context.Background(), ""); err != nil {
				t.Fatalf("CreateBackup() error = %v", err)
			}
			env.clock.Advance(time.Minute)
			time.Sleep(10 * time.Millisecond)
		}

		backups, err := env.mgr.ListBackups(context.Background())
		if err != nil {
			t.Fatalf("ListBackups() error = %v", err)
		}
		if len(backups) != 3 {
			t.Fatalf("got %d backups, want 3", len(backups))
		}
		for i := 1; i < len(backups); i++ {
			if backups[i].CreatedAt.After(backups[i-1].CreatedAt) {
				t.Errorf("backups not sorted newest first: %s before %s", backups[i-1].Filename, backups[i].Filename)
			}
		}
	})
}

func TestBackupManager_DeleteBackup(t *testing.T) {
	t.Run("removes the file and audits the actor", func(t *testing.T) {
		env := newBackupEnv(t)
		meta, err := env.mgr.CreateBackup(context.Background(), "")
		if err != nil {
			t.Fatalf("CreateBackup() error = %v", err)
		}

		if err := env.mgr.DeleteBackup(context.Background(), meta.Filename, 3); err != nil {
			t.Fatalf("DeleteBackup() error = %v", err)
		}
		if _, err := os.Stat(meta.Path); !os.IsNotExist(err) {
			t.Errorf("backup file still exists after delete")
		}

		event := env.lastEvent(t, core.ActionBackupDelete)
		if !event.Success || event.UserID == nil || *event.UserID != 3 {
			t.Errorf("audit event = %+v, want success by user 3", event)
		}
	})

	t.Run("missing backup is not found", func(t *testing.T) {
		env := newBackupEnv(t)
		if _, err := env.mgr.CreateBackup(context.Background(), ""); err != nil {
			t.Fatalf("CreateBackup() error = %v", err)
		}

		err := env.mgr.DeleteBackup(context.Background(), "backup_nope.db", 3)
		if !errors.Is(err, core.ErrResourceNotFound) {
			t.Errorf("DeleteBackup() error = %v, want ErrResourceNotFound", err)
		}
	})

	t.Run("rejects traversal filenames", func(t *testing.T) {
		env := newBackupEnv(t)

		for _, name := range []string{"", "../casevault.db", "../../etc/passwd", `..\..\windows`, "a/b.db", "backup_..db"} {
			err := env.mgr.DeleteBackup(context.Background(), name, 3)
			if !errors.Is(err, core.ErrPathTraversal) {
				t.Errorf("DeleteBackup(%q) error = %v, want ErrPathTraversal", name, err)
			}
		}
	})
}

func TestBackupManager_ApplyRetention(t *testing.T) {
	t.Run("keeps the newest manual backups", func(t *testing.T) {
		env := newBackupEnv(t)
		var filenames []string
		for i := 0; i < 4; i++ {
			meta, err := env.mgr.CreateBackup(context.Background(), "")
			if err != nil {
				t.Fatalf("CreateBackup() error = %v", err)
			}
			filenames = append(filenames, meta.Filename)
			env.clock.Advance(time.Minute)
			time.Sleep(10 * time.Millisecond)
		}

		pruned, err := env.mgr.ApplyRetention(context.Background(), 2)
		if err != nil {
			t.Fatalf("ApplyRetention() error = %v", err)
		}
		if pruned != 2 {
			t.Errorf("pruned = %d, want 2", pruned)
		}

		// The two oldest are gone, the two newest remain.
		for i, name := range filenames {
			_, err := os.Stat(filepath.Join(env.dir, name))
			if i < 2 && !os.IsNotExist(err) {
				t.Errorf("old backup %s survived pruning", name)
			}
			if i >= 2 && err != nil {
				t.Errorf("recent backup %s was pruned: %v", name, err)
			}
		}
	})

	t.Run("never prunes safety snapshots", func(t *testing.T) {
		env := newBackupEnv(t)
		for i := 0; i < 2; i++ {
			if _, err := env.mgr.CreateBackup(context.Background(), ""); err != nil {
				t.Fatalf("CreateBackup() error = %v", err)
			}
			env.clock.Advance(time.Minute)
			time.Sleep(10 * time.Millisecond)
		}

		// Safety snapshots from a restore and a migration run.
		for _, name := range []string{"pre-restore_20250101T000000Z.db", "pre_migration_backup_20250101T000000Z.db"} {
			src := env.store.Path()
			data, err := os.ReadFile(src)
			if err != nil {
				t.Fatalf("reading store: %v", err)
			}
			if err := os.WriteFile(filepath.Join(env.dir, name), data, 0600); err != nil {
				t.Fatalf("writing snapshot: %v", err)
			}
		}

		pruned, err := env.mgr.ApplyRetention(context.Background(), 1)
		if err != nil {
			t.Fatalf("ApplyRetention() error = %v", err)
		}
		if pruned != 1 {
			t.Errorf("pruned = %d, want 1 (the oldest manual backup only)", pruned)
		}

		entries, err := os.ReadDir(env.dir)
		if err != nil {
			t.Fatalf("reading backup dir: %v", err)
		}
		if len(entries) != 3 {
			t.Errorf("got %d files after pruning, want 1 manual backup and 2 safety snapshots", len(entries))
		}
	})

	t.Run("zero keep disables pruning", func(t *testing.T) {
		env := newBackupEnv(t)
		for i := 0; i < 2; i++ {
			if _, err := env.mgr.CreateBackup(context.Background(), ""); err != nil {
				t.Fatalf("CreateBackup() error = %v", err)
			}
			env.clock.Advance(time.Minute)
		}

		pruned, err := env.mgr.ApplyRetention(context.Background(), 0)
		if err != nil {
			t.Fatalf("ApplyRetention() error = %v", err)
		}
		if pruned != 0 {
			t.Errorf("pruned = %d, want 0", pruned)
		}

		backups, err := env.mgr.ListBackups(context.Background())
		if err != nil {
			t.Fatalf("ListBackups() error = %v", err)
		}
		if len(backups) != 2 {
			t.Errorf("got %d backups, want both to survive", len(backups))
		}
	})

	t.Run("negative keep is rejected", func(t *testing.T) {
		env := newBackupEnv(t)

		if _, err := env.mgr.ApplyRetention(context.Background(), -1); err == nil {
			t.Error("ApplyRetention(-1) succeeded, want error")
		}
	})

	t.Run("keep larger than backlog prunes nothing", func(t *testing.T) {
		env := newBackupEnv(t)
		if _, err := env.mgr.CreateBackup(context.Background(), ""); err != nil {
			t.Fatalf("CreateBackup() error = %v", err)
		}

		pruned, err := env.mgr.ApplyRetention(context.Background(), 10)
		if err != nil {
			t.Fatalf("ApplyRetention() error = %v", err)
		}
		if pruned != 0 {
			t.Errorf("pruned = %d, want 0", pruned)
		}
	})
}
