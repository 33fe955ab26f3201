package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitevcerrors "sitevc.dev/sitevc/internal/errors"
	"sitevc.dev/sitevc/internal/merge"
)

func sessionsDir(repoRoot string) string {
	return filepath.Join(repoRoot, Dir, "sessions")
}

func sessionPath(repoRoot, id string) string {
	return filepath.Join(sessionsDir(repoRoot), id+".json")
}

// SessionStore keeps merge sessions as JSON files under .sitevc/sessions
type SessionStore struct {
	Root string
}

// GetSession reads a merge session from disk
func (s SessionStore) GetSession(id string) (*merge.Session, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: %q", sitevcerrors.ErrSessionNotFound, id)
	}
	data, err := os.ReadFile(sessionPath(s.Root, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", sitevcerrors.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to read merge session: %w", err)
	}

	var session merge.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse merge session %s: %w", id, err)
	}
	return &session, nil
}

// PersistSession writes a merge session to disk
func (s SessionStore) PersistSession(session *merge.Session) error {
	if err := os.MkdirAll(sessionsDir(s.Root), 0o755); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal merge session: %w", err)
	}
	return os.WriteFile(sessionPath(s.Root, session.ID), data, 0600)
}

// ClearSession removes a merge session file
func (s SessionStore) ClearSession(id string) error {
	err := os.Remove(sessionPath(s.Root, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear merge session: %w", err)
	}
	return nil
}

// ListSessions returns every persisted session, oldest first
func (s SessionStore) ListSessions() ([]*merge.Session, error) {
	entries, err := os.ReadDir(sessionsDir(s.Root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list merge sessions: %w", err)
	}
	var out []*merge.Session
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		session, err := s.GetSession(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
