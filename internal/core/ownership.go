package core

import (
	"context"
	"fmt"
)

// Verifier confirms a resource belongs to a verified user before any read
// or mutation proceeds.
type Verifier struct {
	owners OwnerStore
}

// NewVerifier creates a Verifier backed by the given owner store.
func NewVerifier(owners OwnerStore) *Verifier {
	return &Verifier{owners: owners}
}

// VerifyOwnership fails with ErrResourceNotFound when the resource does not
// exist and with ErrForbidden when it belongs to a different user. Because
// ErrForbidden wraps ErrResourceNotFound, external callers cannot tell the
// two apart; use IsForbidden for internal diagnostics only.
func (v *Verifier) VerifyOwnership(ctx context.Context, resourceType, resourceID string, userID int64) error {
	ownerID, found, err := v.owners.FindOwner(ctx, resourceType, resourceID)
	if err != nil {
		return fmt.Errorf("looking up %s owner: %w", resourceType, err)
	}
	if !found {
		return fmt.Errorf("%w: %s %s", ErrResourceNotFound, resourceType, resourceID)
	}
	if ownerID != userID {
		return fmt.Errorf("%w: %s %s", ErrForbidden, resourceType, resourceID)
	}
	return nil
}

// VerifyOwnershipAll checks every resource in a batch, aborting on the first
// failure. Ownership-gated batch writes must not be partially applied, so
// callers run this before touching any item.
func (v *Verifier) VerifyOwnershipAll(ctx context.Context, resourceType string, resourceIDs []string, userID int64) error {
	for _, id := range resourceIDs {
		if err := v.VerifyOwnership(ctx, resourceType, id, userID); err != nil {
			return err
		}
	}
	return nil
}
