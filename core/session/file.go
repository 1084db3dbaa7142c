package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileStore keeps every session in one JSON object on disk, keyed by
// user id. Each mutation rewrites the whole file through a temp file
// and rename. The format stays human-inspectable, which makes the
// backend a debugging aid rather than a scale play.
type fileStore struct {
	mu       sync.Mutex
	path     string
	sessions map[string]map[string]any
}

// NewFileStore opens (or creates) the single-file JSON store at path.
func NewFileStore(path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("session file path cannot be empty")
	}
	s := &fileStore{path: path, sessions: make(map[string]map[string]any)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.sessions[id]
	if !ok {
		return New(), nil
	}
	return FromMap(raw).Clone(), nil
}

func (s *fileStore) Set(_ context.Context, id string, sess *Session) error {
	if sess == nil {
		sess = New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sess.Clone().Map()
	return s.persist()
}

func (s *fileStore) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return nil
	}
	delete(s.sessions, id)
	return s.persist()
}

func (s *fileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var decoded map[string]map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("failed to parse session file: %w", err)
	}
	if decoded != nil {
		s.sessions = decoded
	}
	return nil
}

func (s *fileStore) persist() error {
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
