package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"trivia-live-service/internal/domain"
)

type recordingSnapshots struct {
	mu     sync.Mutex
	saved  map[string]domain.GameState
	saves  int
	failOn error
}

func (r *recordingSnapshots) LoadSnapshot(context.Context) (map[string]domain.GameState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		return map[string]domain.GameState{}, nil
	}
	return r.saved, nil
}

func (r *recordingSnapshots) SaveSnapshot(_ context.Context, states map[string]domain.GameState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		return r.failOn
	}
	r.saves++
	r.saved = states
	return nil
}

func TestGetCreatesWaitingState(t *testing.T) {
	store := NewStore(nil)
	st := store.Get("comp-1")
	if st.Phase != domain.PhaseWaiting {
		t.Fatalf("expected WAITING, got %s", st.Phase)
	}
	if st.Teams == nil {
		t.Fatalf("expected non-nil teams")
	}
	if ids := store.IDs(); len(ids) != 1 || ids[0] != "comp-1" {
		t.Fatalf("expected comp-1 registered, got %v", ids)
	}
}

func TestUpdateSerializesPerCompetition(t *testing.T) {
	store := NewStore(nil)
	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		id := fmt.Sprintf("comp-%d", c)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.Update(id, func(s *domain.GameState) error {
					s.RevealStep++
					return nil
				})
			}()
		}
	}
	wg.Wait()

	for c := 0; c < 4; c++ {
		if got := store.Get(fmt.Sprintf("comp-%d", c)).RevealStep; got != 50 {
			t.Fatalf("comp-%d: expected 50 increments, got %d", c, got)
		}
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := NewStore(nil)
	_, _ = store.Update("comp-1", func(s *domain.GameState) error {
		s.Teams = append(s.Teams, domain.Team{ID: "t1", Name: "Red"})
		return nil
	})
	st := store.Get("comp-1")
	st.Teams[0].Score = 99
	if store.Get("comp-1").Teams[0].Score != 0 {
		t.Fatalf("mutating a copy leaked into the store")
	}
}

func TestFlushRoundTripsThroughSnapshots(t *testing.T) {
	snaps := &recordingSnapshots{}
	store := NewStore(snaps)
	answer := `"Paris"`
	correct := true
	_, _ = store.Update("comp-1", func(s *domain.GameState) error {
		s.Phase = domain.PhaseQuestionActive
		s.CurrentQuestion = &domain.Question{
			ID:      "q1",
			Type:    domain.TypeClosed,
			Grading: domain.GradingAuto,
			Content: domain.ClosedContent{Answers: []string{"Paris"}},
		}
		s.TimeRemaining = 12
		s.Teams = append(s.Teams, domain.Team{ID: "t1", Name: "Red", LastAnswer: &answer, LastAnswerCorrect: &correct})
		return nil
	})

	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if snaps.saves != 1 {
		t.Fatalf("expected a single save for a single change, got %d", snaps.saves)
	}

	restored := NewStore(snaps)
	if _, err := restored.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(store.SnapshotAll(), restored.SnapshotAll()); diff != "" {
		t.Fatalf("restored state mismatch (-want +got):\n%s", diff)
	}
}

func TestFlushFailureKeepsDirty(t *testing.T) {
	boom := errors.New("disk full")
	snaps := &recordingSnapshots{failOn: boom}
	var hooked error
	store := NewStore(snaps, WithSaveFailureHook(func(err error) { hooked = err }))
	_ = store.Get("comp-1")
	_, _ = store.Update("comp-1", func(s *domain.GameState) error { return nil })

	if err := store.Flush(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected save error, got %v", err)
	}
	if !errors.Is(hooked, boom) {
		t.Fatalf("expected hook to see failure, got %v", hooked)
	}

	snaps.failOn = nil
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if snaps.saves != 1 {
		t.Fatalf("expected retry to save, got %d saves", snaps.saves)
	}
}

func TestRestoreRepairsBrokenInvariant(t *testing.T) {
	store := NewStore(nil)
	store.Restore(map[string]domain.GameState{
		"comp-1": {Phase: domain.PhaseGrading, TimeRemaining: -3},
		"comp-2": {Phase: "BOGUS"},
	})
	if st := store.Get("comp-1"); st.Phase != domain.PhaseWaiting || st.TimeRemaining != 0 || st.Teams == nil {
		t.Fatalf("expected repaired comp-1, got %+v", st)
	}
	if st := store.Get("comp-2"); st.Phase != domain.PhaseWaiting {
		t.Fatalf("expected WAITING for unknown phase, got %s", st.Phase)
	}
}
