package vault_test

import (
	"context"
	"testing"

	"casevault/internal/config"
	"casevault/internal/vault"
)

func TestNewVaultFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		v, err := vault.NewVaultFromConfig(ctx, config.VaultConfig{Type: "memory", Name: "test"})
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if _, ok := v.(*vault.MemoryVault); !ok {
			t.Errorf("NewVaultFromConfig() = %T, want *MemoryVault", v)
		}
	})

	t.Run("filesystem", func(t *testing.T) {
		v, err := vault.NewVaultFromConfig(ctx, config.VaultConfig{Type: "filesystem", Name: "nas", FSVaultRoot: t.TempDir()})
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if _, ok := v.(*vault.FileSystemVault); !ok {
			t.Errorf("NewVaultFromConfig() = %T, want *FileSystemVault", v)
		}
	})

	t.Run("filesystem requires a root", func(t *testing.T) {
		if _, err := vault.NewVaultFromConfig(ctx, config.VaultConfig{Type: "filesystem", Name: "nas"}); err == nil {
			t.Error("NewVaultFromConfig() without fs_vault_root succeeded, want error")
		}
	})

	t.Run("s3 requires a bucket", func(t *testing.T) {
		if _, err := vault.NewVaultFromConfig(ctx, config.VaultConfig{Type: "s3", Name: "offsite"}); err == nil {
			t.Error("NewVaultFromConfig() without s3_bucket succeeded, want error")
		}
	})

	t.Run("unknown type fails", func(t *testing.T) {
		if _, err := vault.NewVaultFromConfig(ctx, config.VaultConfig{Type: "tape"}); err == nil {
			t.Error("NewVaultFromConfig() with unknown type succeeded, want error")
		}
	})
}
