package testutil

import (
	"casevault/internal/core"
	"casevault/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() core.Vault {
	return vault.NewMemoryVault("test-vault")
}
