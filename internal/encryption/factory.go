package encryption

import (
	"fmt"

	"casevault/internal/config"
	"casevault/internal/core"
)

// NewCipherFromConfig creates a Cipher based on the configuration type.
// key is the unlocked field-encryption key from the key manager; the test
// cipher ignores it.
func NewCipherFromConfig(cfg config.EncryptionConfig, key []byte) (core.Cipher, error) {
	switch cfg.Type {
	case "aead", "":
		return NewAEADCipher(key)
	case "test":
		return NewTestCipher(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
