// Package keys owns the field-encryption key and its protection at rest.
//
// The 32-byte field key never touches disk in the clear: Setup wraps it with
// the operator's passphrase using age's scrypt recipient before writing, and
// Unlock reverses that into process memory. One manager instance serves the
// whole process; construct it once and pass the reference down instead of
// reaching for a package-level singleton.
package keys

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"

	"casevault/internal/encryption"
)

// Manager holds the unlocked field-encryption key for the process lifetime.
type Manager struct {
	keyPath string

	mu  sync.Mutex
	key []byte // nil until Unlock
}

// NewManager creates a Manager for the wrapped key file at keyPath. The key
// stays locked until Unlock is called.
func NewManager(keyPath string) *Manager {
	return &Manager{keyPath: keyPath}
}

// IsConfigured returns true if the wrapped key file exists.
func (m *Manager) IsConfigured() bool {
	_, err := os.Stat(m.keyPath)
	return err == nil
}

// Setup performs one-time key generation: draws a random field key and
// writes it wrapped with the passphrase. Fails if a key file already exists.
func (m *Manager) Setup(passphrase string) error {
	if m.IsConfigured() {
		return fmt.Errorf("key file already exists at %s", m.keyPath)
	}

	key := make([]byte, encryption.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return fmt.Errorf("generating field key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.keyPath), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	f, err := os.OpenFile(m.keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating key file: %w", err)
	}
	defer f.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	w, err := age.Encrypt(f, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(key); err != nil {
		return fmt.Errorf("writing wrapped key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing wrapped key: %w", err)
	}

	return nil
}

// Unlock decrypts the wrapped key into memory using the passphrase.
// Calling Unlock on an already-unlocked manager is a no-op.
func (m *Manager) Unlock(passphrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil {
		return nil
	}

	data, err := os.ReadFile(m.keyPath)
	if err != nil {
		return fmt.Errorf("reading key file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return fmt.Errorf("unwrapping field key: %w", err)
	}

	key, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading unwrapped key: %w", err)
	}
	if len(key) != encryption.KeySize {
		return fmt.Errorf("unwrapped key has wrong length: %d", len(key))
	}

	m.key = key
	return nil
}

// Key returns the unlocked field key. Fails if Unlock has not run.
func (m *Manager) Key() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key == nil {
		return nil, fmt.Errorf("field key is locked")
	}
	return m.key, nil
}

// Shutdown zeroes the in-memory key. The manager can be unlocked again.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.key {
		m.key[i] = 0
	}
	m.key = nil
}
