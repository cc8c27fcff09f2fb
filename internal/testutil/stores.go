package testutil

import (
	"context"
	"errors"
	"sync"

	"casevault/internal/core"
)

// MemorySessionStore is an in-memory core.SessionStore keyed by token.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*core.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*core.Session)}
}

// Add registers a session under its token.
func (s *MemorySessionStore) Add(session *core.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = session
}

func (s *MemorySessionStore) FindSession(ctx context.Context, token string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[token], nil
}

// MemoryOwnerStore is an in-memory core.OwnerStore keyed by resource type
// and id.
type MemoryOwnerStore struct {
	mu     sync.Mutex
	owners map[string]int64
}

func NewMemoryOwnerStore() *MemoryOwnerStore {
	return &MemoryOwnerStore{owners: make(map[string]int64)}
}

// Add registers a resource and its owning user.
func (s *MemoryOwnerStore) Add(resourceType, resourceID string, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[resourceType+"/"+resourceID] = userID
}

func (s *MemoryOwnerStore) FindOwner(ctx context.Context, resourceType, resourceID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.owners[resourceType+"/"+resourceID]
	return owner, ok, nil
}

// MemoryAuditStore is an in-memory core.AuditStore. It is append-only like
// the real one; Events returns a snapshot in insertion order.
type MemoryAuditStore struct {
	mu     sync.Mutex
	events []*core.AuditEvent

	// FailAppend makes Append return an error, for testing the recorder's
	// fallback path.
	FailAppend bool
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) Append(ctx context.Context, event *core.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend {
		return errors.New("append failed")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryAuditStore) List(ctx context.Context, filter core.AuditFilter) ([]*core.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*core.AuditEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if filter.UserID != nil && (e.UserID == nil || *e.UserID != *filter.UserID) {
			continue
		}
		if filter.ResourceType != "" && e.ResourceType != filter.ResourceType {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Events returns all appended events in insertion order.
func (s *MemoryAuditStore) Events() []*core.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}
