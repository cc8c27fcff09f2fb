package vault_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"casevault/internal/vault"
)

func TestFileSystemVault(t *testing.T) {
	t.Run("put and get", func(t *testing.T) {
		v, err := vault.NewFileSystemVault("nas", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		data := []byte("snapshot bytes")
		if err := v.PutSnapshot("backup_1.db", bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutSnapshot() error = %v", err)
		}

		var out bytes.Buffer
		if err := v.GetSnapshot("backup_1.db", &out); err != nil {
			t.Fatalf("GetSnapshot() error = %v", err)
		}
		if !bytes.Equal(out.Bytes(), data) {
			t.Errorf("GetSnapshot() = %q, want %q", out.Bytes(), data)
		}
	})

	t.Run("snapshots land under the snapshots directory", func(t *testing.T) {
		root := t.TempDir()
		v, err := vault.NewFileSystemVault("nas", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		if err := v.PutSnapshot("backup_1.db", strings.NewReader("x"), 1); err != nil {
			t.Fatalf("PutSnapshot() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(root, "snapshots", "backup_1.db")); err != nil {
			t.Errorf("snapshot file missing: %v", err)
		}
	})

	t.Run("rejects hostile names", func(t *testing.T) {
		v, err := vault.NewFileSystemVault("nas", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		for _, name := range []string{"../escape.db", "a/b.db", `a\b.db`} {
			if err := v.PutSnapshot(name, strings.NewReader("x"), 1); err == nil {
				t.Errorf("PutSnapshot(%q) succeeded, want error", name)
			}
			var out bytes.Buffer
			if err := v.GetSnapshot(name, &out); err == nil {
				t.Errorf("GetSnapshot(%q) succeeded, want error", name)
			}
		}
	})

	t.Run("put rejects size mismatch and leaves no file", func(t *testing.T) {
		root := t.TempDir()
		v, err := vault.NewFileSystemVault("nas", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		if err := v.PutSnapshot("backup_1.db", strings.NewReader("abc"), 99); err == nil {
			t.Error("PutSnapshot() with wrong size succeeded, want error")
		}

		names, err := v.ListSnapshots()
		if err != nil {
			t.Fatalf("ListSnapshots() error = %v", err)
		}
		if len(names) != 0 {
			t.Errorf("ListSnapshots() = %v, want empty", names)
		}
	})

	t.Run("list skips temp files", func(t *testing.T) {
		root := t.TempDir()
		v, err := vault.NewFileSystemVault("nas", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		if err := v.PutSnapshot("backup_1.db", strings.NewReader("x"), 1); err != nil {
			t.Fatalf("PutSnapshot() error = %v", err)
		}
		if err := os.WriteFile(filepath.Join(root, "snapshots", ".tmp-put-123"), []byte("partial"), 0600); err != nil {
			t.Fatalf("writing temp file: %v", err)
		}

		names, err := v.ListSnapshots()
		if err != nil {
			t.Fatalf("ListSnapshots() error = %v", err)
		}
		if len(names) != 1 || names[0] != "backup_1.db" {
			t.Errorf("ListSnapshots() = %v, want [backup_1.db]", names)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		root := t.TempDir()
		v, err := vault.NewFileSystemVault("nas", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		if err := v.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}

		if err := os.RemoveAll(filepath.Join(root, "snapshots")); err != nil {
			t.Fatalf("removing snapshot dir: %v", err)
		}
		if err := v.ValidateSetup(); err == nil {
			t.Error("ValidateSetup() with missing snapshot dir succeeded, want error")
		}
	})
}
