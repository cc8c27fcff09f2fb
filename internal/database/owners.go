package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"casevault/internal/core"
)

// OwnerStore resolves resource ownership from the primary store. Each
// supported resource type maps to the table holding its owning user id; an
// unknown resource type is a programmer error, not a missing resource.
type OwnerStore struct {
	store *Store
}

var _ core.OwnerStore = (*OwnerStore)(nil)

// NewOwnerStore creates an OwnerStore over the primary store.
func NewOwnerStore(store *Store) *OwnerStore {
	return &OwnerStore{store: store}
}

// FindOwner returns the owning user id for a resource, or (0, false) when
// the resource does not exist.
func (s *OwnerStore) FindOwner(ctx context.Context, resourceType, resourceID string) (int64, bool, error) {
	var query string
	switch resourceType {
	case core.ResourceCase:
		query = "SELECT user_id FROM cases WHERE id = ?"
	case core.ResourceEvidence:
		query = "SELECT user_id FROM evidence WHERE id = ?"
	default:
		return 0, false, fmt.Errorf("unknown resource type: %q", resourceType)
	}

	var ownerID int64
	err := s.store.DB().QueryRowContext(ctx, query, resourceID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: finding %s owner: %v", core.ErrStorage, resourceType, err)
	}
	return ownerID, true, nil
}
