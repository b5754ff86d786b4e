package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-live-service/internal/domain"
)

// DefaultSnapshotKey holds the JSON map of every competition's state.
const DefaultSnapshotKey = "trivia:snapshot"

// SnapshotStore implements state.SnapshotRepository on a single Redis key.
// A ttl of zero keeps the key forever.
type SnapshotStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, key string, ttl time.Duration) *SnapshotStore {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &SnapshotStore{client: client, key: key, ttl: ttl}
}

// LoadSnapshot returns an empty map when the key is missing or corrupt.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (map[string]domain.GameState, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]domain.GameState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	states := make(map[string]domain.GameState)
	if len(data) == 0 {
		return states, nil
	}
	if err := json.Unmarshal(data, &states); err != nil {
		log.Printf("snapshot: ignoring corrupt redis key %s: %v", s.key, err)
		return map[string]domain.GameState{}, nil
	}
	return states, nil
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, states map[string]domain.GameState) error {
	data, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
