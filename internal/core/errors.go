package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the security and durability substrate.
// Callers classify failures with errors.Is; lower layers wrap these with
// fmt.Errorf("%w: ...") context instead of matching on error text.
var (
	// ErrUnauthorized is returned when a session token is absent, unknown,
	// or expired.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrResourceNotFound is returned when a resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrForbidden is returned when a resource exists but belongs to a
	// different user. It wraps ErrResourceNotFound so that external callers
	// checking errors.Is(err, ErrResourceNotFound) cannot tell the two cases
	// apart; the audit layer may still record the real cause.
	ErrForbidden = fmt.Errorf("forbidden: %w", ErrResourceNotFound)

	// ErrDecryption is returned when ciphertext is truncated, its
	// authentication tag does not verify, or the active key does not match
	// the key used at encryption time.
	ErrDecryption = errors.New("decryption failed")

	// ErrPathTraversal is returned when a backup filename escapes the
	// backup directory.
	ErrPathTraversal = errors.New("path traversal")

	// ErrCorruptBackup is returned when a backup file does not open as a
	// well-formed store.
	ErrCorruptBackup = errors.New("corrupt backup")

	// ErrSourceMissing is returned when a backup is requested but the
	// primary store file does not exist.
	ErrSourceMissing = errors.New("primary store missing")

	// ErrStorage is returned for underlying file or database I/O failures.
	ErrStorage = errors.New("storage error")
)

// IsForbidden reports whether err is specifically an ownership failure, as
// opposed to a missing resource. Internal diagnostics only; externally the
// two are equivalent.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
