// Package state keeps the live GameState of every competition and persists
// snapshots of them.
package state

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"trivia-live-service/internal/domain"
)

// SnapshotRepository persists the full map of game states. Load must return an
// empty map, not an error, when nothing has been saved yet.
type SnapshotRepository interface {
	LoadSnapshot(ctx context.Context) (map[string]domain.GameState, error)
	SaveSnapshot(ctx context.Context, states map[string]domain.GameState) error
}

// Option configures a Store.
type Option func(*Store)

// WithSaveFailureHook is called every time a snapshot save fails.
func WithSaveFailureHook(fn func(error)) Option {
	return func(s *Store) {
		s.onSaveFailure = fn
	}
}

// Store holds one GameState per competition. Every competition has its own
// lock; the map lock is only held for lookup and insertion.
type Store struct {
	snapshots     SnapshotRepository
	onSaveFailure func(error)
	dirty         atomic.Bool

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	mu    sync.Mutex
	state domain.GameState
}

// NewStore builds a store. snapshots may be nil for a purely in-memory store.
func NewStore(snapshots SnapshotRepository, opts ...Option) *Store {
	s := &Store{
		snapshots: snapshots,
		sessions:  make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) session(id string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess = &session{state: domain.NewGameState()}
	s.sessions[id] = sess
	return sess
}

// Get returns a copy of the competition's state, creating a WAITING state on
// first access.
func (s *Store) Get(id string) domain.GameState {
	sess := s.session(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state.Clone()
}

// Update runs fn with exclusive access to the competition's state and returns
// a copy of the result. Mutations made before fn returns an error are kept.
func (s *Store) Update(id string, fn func(*domain.GameState) error) (domain.GameState, error) {
	sess := s.session(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	err := fn(&sess.state)
	s.dirty.Store(true)
	return sess.state.Clone(), err
}

// IDs lists known competitions in a stable order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// SnapshotAll copies every state.
func (s *Store) SnapshotAll() map[string]domain.GameState {
	s.mu.RLock()
	sessions := make(map[string]*session, len(s.sessions))
	for id, sess := range s.sessions {
		sessions[id] = sess
	}
	s.mu.RUnlock()

	out := make(map[string]domain.GameState, len(sessions))
	for id, sess := range sessions {
		sess.mu.Lock()
		out[id] = sess.state.Clone()
		sess.mu.Unlock()
	}
	return out
}

// Restore replaces the states of the given competitions. States that break
// the phase/question invariant fall back to WAITING.
func (s *Store) Restore(states map[string]domain.GameState) {
	for id, st := range states {
		st = sanitize(st)
		sess := s.session(id)
		sess.mu.Lock()
		sess.state = st
		sess.mu.Unlock()
	}
}

func sanitize(st domain.GameState) domain.GameState {
	st = st.Clone()
	if !st.Phase.Valid() {
		st.Phase = domain.PhaseWaiting
	}
	if st.Phase.HasQuestion() && st.CurrentQuestion == nil {
		st.Phase = domain.PhaseWaiting
	}
	if st.TimeRemaining < 0 {
		st.TimeRemaining = 0
	}
	if st.Teams == nil {
		st.Teams = []domain.Team{}
	}
	return st
}

// Load reads the persisted snapshot into the store.
func (s *Store) Load(ctx context.Context) (map[string]domain.GameState, error) {
	if s.snapshots == nil {
		return map[string]domain.GameState{}, nil
	}
	states, err := s.snapshots.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.Restore(states)
	return states, nil
}

// Flush saves a snapshot when anything changed since the last save.
func (s *Store) Flush(ctx context.Context) error {
	if s.snapshots == nil || !s.dirty.Swap(false) {
		return nil
	}
	if err := s.snapshots.SaveSnapshot(ctx, s.SnapshotAll()); err != nil {
		s.dirty.Store(true)
		if s.onSaveFailure != nil {
			s.onSaveFailure(err)
		}
		return err
	}
	return nil
}

// Run flushes on every interval until ctx is done, then flushes once more.
// Save failures are logged and retried on the next interval.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				log.Printf("snapshot: save failed: %v", err)
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := s.Flush(flushCtx)
			cancel()
			if err != nil {
				log.Printf("snapshot: final save failed: %v", err)
			}
			return nil
		}
	}
}
