package core

import "io"

// Vault is an offsite replication target for snapshot files. All operations
// stream through io.Reader/io.Writer so large stores are never loaded into
// memory at once.
type Vault interface {
	// PutSnapshot stores a snapshot under its backup filename. Storing the
	// same name twice overwrites; size is the number of bytes read from r.
	PutSnapshot(name string, r io.Reader, size int64) error

	// GetSnapshot retrieves a snapshot by name and writes it to w.
	GetSnapshot(name string, w io.Writer) error

	// ListSnapshots returns the names of stored snapshots.
	ListSnapshots() ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly
	// configured.
	ValidateSetup() error
}
