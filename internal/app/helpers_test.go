package app_test

import (
	"context"
	"sync"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/content"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
	"trivia-live-service/internal/state"
)

// manualTimer is an app.Timer whose seconds pass only when Advance is called.
type manualTimer struct {
	mu   sync.Mutex
	gens map[string]uint64
	runs map[string]*manualRun
}

type manualRun struct {
	remaining int
	paused    bool
	onTick    func(int)
	onEnd     func()
}

func newManualTimer() *manualTimer {
	return &manualTimer{gens: make(map[string]uint64), runs: make(map[string]*manualRun)}
}

func (m *manualTimer) Start(id string, seconds int, onTick func(int), onEnd func()) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[id]++
	m.runs[id] = &manualRun{remaining: seconds, onTick: onTick, onEnd: onEnd}
	return m.gens[id]
}

func (m *manualTimer) Pause(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		r.paused = true
	}
}

func (m *manualTimer) Resume(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		r.paused = false
	}
}

func (m *manualTimer) Stop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
}

func (m *manualTimer) IsRunning(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runs[id]
	return ok
}

func (m *manualTimer) Generation(id string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[id]
}

func (m *manualTimer) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = make(map[string]*manualRun)
}

// Advance lets n seconds pass on the timer of id.
func (m *manualTimer) Advance(id string, n int) {
	for i := 0; i < n; i++ {
		m.mu.Lock()
		run, ok := m.runs[id]
		if !ok || run.paused {
			m.mu.Unlock()
			continue
		}
		run.remaining--
		remaining := run.remaining
		if remaining <= 0 {
			remaining = 0
			delete(m.runs, id)
		}
		m.mu.Unlock()

		if run.onTick != nil {
			run.onTick(remaining)
		}
		if remaining == 0 {
			if run.onEnd != nil {
				run.onEnd()
			}
			return
		}
	}
}

// Fire delivers a tick for id without letting time pass, the way a ticker
// goroutine that raced a pause would.
func (m *manualTimer) Fire(id string) {
	m.mu.Lock()
	run, ok := m.runs[id]
	m.mu.Unlock()
	if ok && run.onTick != nil {
		run.onTick(run.remaining - 1)
	}
}

// Expire delivers the end callback for id as if the countdown had reached zero.
func (m *manualTimer) Expire(id string) {
	m.mu.Lock()
	run, ok := m.runs[id]
	m.mu.Unlock()
	if ok && run.onEnd != nil {
		run.onEnd()
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	states []domain.GameState
	ticks  []int
	scores int
}

func (r *recordingNotifier) StateChanged(_ string, s domain.GameState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingNotifier) TimerTick(_ string, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, remaining)
}

func (r *recordingNotifier) ScoresChanged(string, []domain.Team) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores++
}

type fixture struct {
	engine   *app.Engine
	repo     app.Repository
	store    *state.Store
	timer    *manualTimer
	notifier *recordingNotifier
}

func newFixture(f content.File) *fixture {
	repo := memory.NewRepository()
	repo.Seed(f)
	return newFixtureWithRepo(repo, state.NewStore(nil))
}

func newFixtureWithRepo(repo app.Repository, store *state.Store) *fixture {
	timer := newManualTimer()
	notifier := &recordingNotifier{}
	engine := app.NewEngine(repo, store, timer, app.WithNotifier(notifier))
	return &fixture{engine: engine, repo: repo, store: store, timer: timer, notifier: notifier}
}

func intPtr(v int) *int { return &v }

func singleQuestion(q domain.Question) content.File {
	return content.File{Competitions: []content.Competition{{
		ID:     "comp-1",
		Rounds: []content.Round{{ID: "r1", Questions: []domain.Question{q}}},
	}}}
}

func mcq() domain.Question {
	return domain.Question{
		ID:               "mcq-1",
		Type:             domain.TypeMultipleChoice,
		Points:           10,
		TimeLimitSeconds: 30,
		Grading:          domain.GradingAuto,
		Content:          domain.MultipleChoiceContent{Options: []string{"A", "B"}, CorrectIndex: intPtr(1)},
	}
}

func closed() domain.Question {
	return domain.Question{
		ID:               "closed-1",
		Type:             domain.TypeClosed,
		Points:           5,
		TimeLimitSeconds: 10,
		Grading:          domain.GradingAuto,
		Content:          domain.ClosedContent{Answers: []string{"Paris"}},
	}
}

func manual() domain.Question {
	return domain.Question{
		ID:               "manual-1",
		Type:             domain.TypeOpenWord,
		Points:           8,
		TimeLimitSeconds: 10,
		Grading:          domain.GradingManual,
		Content:          domain.OpenWordContent{Answer: "anything"},
	}
}

func memoryRepo(f content.File) *memory.Repository {
	repo := memory.NewRepository()
	repo.Seed(f)
	return repo
}

// failingRepository wraps a working repository and fails the writes that have
// an error configured.
type failingRepository struct {
	app.Repository
	saveErr  error
	teamErr  error
	gradeErr error
}

func (r *failingRepository) SaveAnswer(ctx context.Context, in domain.AnswerInput) (domain.Answer, error) {
	if r.saveErr != nil {
		return domain.Answer{}, r.saveErr
	}
	return r.Repository.SaveAnswer(ctx, in)
}

func (r *failingRepository) GetOrCreateTeam(ctx context.Context, competitionID, name, color string) (domain.Team, error) {
	if r.teamErr != nil {
		return domain.Team{}, r.teamErr
	}
	return r.Repository.GetOrCreateTeam(ctx, competitionID, name, color)
}

func (r *failingRepository) UpdateAnswerGrading(ctx context.Context, answerID string, isCorrect bool, score int) error {
	if r.gradeErr != nil {
		return r.gradeErr
	}
	return r.Repository.UpdateAnswerGrading(ctx, answerID, isCorrect, score)
}
