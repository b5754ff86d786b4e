// Package file persists game state snapshots to a local JSON file.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"trivia-live-service/internal/domain"
)

// SnapshotStore implements state.SnapshotRepository on one JSON file.
// Writes go to a temp file in the same directory and are renamed into place.
type SnapshotStore struct {
	path string
	mu   sync.Mutex
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// LoadSnapshot returns an empty map when the file is missing, empty or
// unreadable as JSON.
func (s *SnapshotStore) LoadSnapshot(_ context.Context) (map[string]domain.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]domain.GameState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]domain.GameState{}, nil
	}
	states := make(map[string]domain.GameState)
	if err := json.Unmarshal(data, &states); err != nil {
		log.Printf("snapshot: ignoring corrupt file %s: %v", s.path, err)
		return map[string]domain.GameState{}, nil
	}
	return states, nil
}

func (s *SnapshotStore) SaveSnapshot(_ context.Context, states map[string]domain.GameState) error {
	data, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
