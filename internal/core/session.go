package core

import (
	"context"
	"fmt"
)

// Guard gates privileged work behind session authorization. It is purely a
// gate: it records nothing itself, and callers remain responsible for
// auditing outcomes.
type Guard struct {
	sessions SessionStore
	clock    Clock
}

// NewGuard creates a Guard backed by the given session store.
func NewGuard(sessions SessionStore, clock Clock) *Guard {
	return &Guard{sessions: sessions, clock: clock}
}

// Resolve maps a session token to its owning user id. It fails with
// ErrUnauthorized when the token is empty, unknown, or expired.
func (g *Guard) Resolve(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("%w: missing session", ErrUnauthorized)
	}

	session, err := g.sessions.FindSession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("looking up session: %w", err)
	}
	if session == nil {
		return 0, fmt.Errorf("%w: unknown session", ErrUnauthorized)
	}
	if !session.ExpiresAt.After(g.clock.Now()) {
		return 0, fmt.Errorf("%w: session expired", ErrUnauthorized)
	}

	return session.UserID, nil
}

// Run resolves the session and, only on success, invokes work with the
// resolved user id. The identity passed to work is authoritative; callers
// must never trust a user id supplied in an input payload. Errors raised
// inside work propagate unchanged.
func (g *Guard) Run(ctx context.Context, sessionID string, work func(ctx context.Context, userID int64) error) error {
	userID, err := g.Resolve(ctx, sessionID)
	if err != nil {
		return err
	}
	return work(ctx, userID)
}
