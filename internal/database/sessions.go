package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"casevault/internal/core"
)

// SessionStore reads the sessions table. The substrate never writes
// sessions; login and revocation belong to the (out of scope) account layer.
type SessionStore struct {
	store *Store
}

var _ core.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a SessionStore over the primary store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{store: store}
}

// FindSession returns the session for a token, or nil if unknown.
func (s *SessionStore) FindSession(ctx context.Context, token string) (*core.Session, error) {
	var session core.Session
	err := s.store.DB().QueryRowContext(ctx, `
		SELECT token, user_id, expires_at
		FROM sessions
		WHERE token = ?
	`, token).Scan(&session.Token, &session.UserID, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: finding session: %v", core.ErrStorage, err)
	}
	return &session, nil
}
