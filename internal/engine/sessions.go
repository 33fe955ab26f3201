package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	sitevcerrors "sitevc.dev/sitevc/internal/errors"
	"sitevc.dev/sitevc/internal/merge"
)

// SessionStore persists suspended merge sessions
type SessionStore interface {
	GetSession(id string) (*merge.Session, error)
	PersistSession(session *merge.Session) error
	ClearSession(id string) error
	ListSessions() ([]*merge.Session, error)
}

// MemorySessions keeps sessions in process. Sessions are stored in their JSON
// form so callers never share state with the store.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

// NewMemorySessions creates an empty in-memory session store
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string][]byte)}
}

// GetSession implements SessionStore
func (m *MemorySessions) GetSession(id string) (*merge.Session, error) {
	m.mu.Lock()
	data, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", sitevcerrors.ErrSessionNotFound, id)
	}
	var s merge.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse merge session %s: %w", id, err)
	}
	return &s, nil
}

// PersistSession implements SessionStore
func (m *MemorySessions) PersistSession(session *merge.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal merge session: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = data
	return nil
}

// ClearSession implements SessionStore
func (m *MemorySessions) ClearSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// ListSessions implements SessionStore
func (m *MemorySessions) ListSessions() ([]*merge.Session, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	out := make([]*merge.Session, 0, len(ids))
	for _, id := range ids {
		s, err := m.GetSession(id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
