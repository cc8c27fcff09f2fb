package testutil

import (
	"casevault/internal/core"
	"casevault/internal/encryption"
)

// NewTestCipher creates a reversible test cipher that performs no real
// encryption.
func NewTestCipher() core.Cipher {
	return encryption.NewTestCipher()
}
