package encryption

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"casevault/internal/core"
)

// KeySize is the field-encryption key length in bytes.
const KeySize = chacha20poly1305.KeySize

// AEADCipher implements core.Cipher using XChaCha20-Poly1305. Each Encrypt
// call draws a fresh random 24-byte nonce, prepended to the sealed box, so
// encrypting the same plaintext twice yields different ciphertexts. The
// cipher holds only the active key reference and is safe for concurrent use.
type AEADCipher struct {
	key []byte
}

var _ core.Cipher = (*AEADCipher)(nil)

// NewAEADCipher creates a cipher over the given 32-byte key.
func NewAEADCipher(key []byte) (*AEADCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &AEADCipher{key: k}, nil
}

// Encrypt seals plaintext under a fresh nonce. Output layout: nonce || box.
func (c *AEADCipher) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("constructing cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce-prefixed box. Truncated input, a failed
// authentication tag, or a key mismatch all yield core.ErrDecryption,
// never silently corrupted plaintext.
func (c *AEADCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: ciphertext truncated", core.ErrDecryption)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("constructing cipher: %w", err)
	}

	nonce := ciphertext[:chacha20poly1305.NonceSizeX]
	box := ciphertext[chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", core.ErrDecryption)
	}
	return plaintext, nil
}

// EncryptString seals plaintext and encodes the result as base64 for TEXT
// column storage.
func (c *AEADCipher) EncryptString(plaintext string) (string, error) {
	box, err := c.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(box), nil
}

// DecryptString reverses EncryptString.
func (c *AEADCipher) DecryptString(ciphertext string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", core.ErrDecryption)
	}
	plaintext, err := c.Decrypt(box)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
