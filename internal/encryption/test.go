package encryption

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"casevault/internal/core"
)

// testHeader is prepended to data by TestCipher to make encrypted output
// clearly different from plaintext while requiring no key material.
var testHeader = []byte("CVENC\x00\x00\x00")

// TestCipher is a trivially reversible cipher for tests. It prepends a fixed
// header and an 8-byte random pad during encryption, keeping the
// non-determinism property without real crypto.
type TestCipher struct{}

var _ core.Cipher = (*TestCipher)(nil)

// NewTestCipher creates a new TestCipher.
func NewTestCipher() *TestCipher {
	return &TestCipher{}
}

func (*TestCipher) Encrypt(plaintext []byte) ([]byte, error) {
	pad := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, pad); err != nil {
		return nil, fmt.Errorf("generating pad: %w", err)
	}
	out := make([]byte, 0, len(testHeader)+len(pad)+len(plaintext))
	out = append(out, testHeader...)
	out = append(out, pad...)
	out = append(out, plaintext...)
	return out, nil
}

func (*TestCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < len(testHeader)+8 {
		return nil, fmt.Errorf("%w: ciphertext truncated", core.ErrDecryption)
	}
	if !bytes.Equal(ciphertext[:len(testHeader)], testHeader) {
		return nil, fmt.Errorf("%w: invalid test header", core.ErrDecryption)
	}
	return append([]byte(nil), ciphertext[len(testHeader)+8:]...), nil
}

func (c *TestCipher) EncryptString(plaintext string) (string, error) {
	box, err := c.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(box), nil
}

func (c *TestCipher) DecryptString(ciphertext string) (string, error) {
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
