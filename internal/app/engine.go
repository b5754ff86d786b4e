package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/grading"
	"trivia-live-service/internal/state"
)

// ErrEmptyTeamName is returned when a team tries to join without a name.
var ErrEmptyTeamName = errors.New("team name is required")

// Engine drives the game state machine of every competition. All operations
// on one competition are serialized through the state store; operations on
// different competitions run in parallel.
//
// In-memory state is authoritative for live play. Snapshots are flushed on an
// interval, so a crash can lose the last interval; scores are rebuilt from the
// ledger on recovery and reconnect.
type Engine struct {
	repo     Repository
	store    *state.Store
	timer    Timer
	notifier Notifier
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets where state and timer events go.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithObserver sets the metrics sink.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

func NewEngine(repo Repository, store *state.Store, timer Timer, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		store:    store,
		timer:    timer,
		notifier: nopNotifier{},
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SubmitResult acknowledges a submission. Accepted is false for stale,
// duplicate or unknown-team submissions, which are dropped silently.
type SubmitResult struct {
	Accepted bool   `json:"accepted"`
	AnswerID string `json:"answerId,omitempty"`
	Pending  bool   `json:"pending"`
	Correct  bool   `json:"-"`
	Score    int    `json:"-"`
}

// State returns a copy of the competition's current state.
func (e *Engine) State(competitionID string) domain.GameState {
	return e.store.Get(competitionID)
}

// AddTeam joins a team by name. Joining twice with the same name returns the
// existing team.
func (e *Engine) AddTeam(ctx context.Context, competitionID, name, color string) (domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Team{}, ErrEmptyTeamName
	}

	var team domain.Team
	_, err := e.store.Update(competitionID, func(s *domain.GameState) error {
		if existing := s.TeamByName(name); existing != nil {
			team = existing.Clone()
			return nil
		}
		created, err := e.repo.GetOrCreateTeam(ctx, competitionID, name, color)
		if err != nil {
			return fmt.Errorf("create team: %w", err)
		}
		if existing := s.Team(created.ID); existing != nil {
			team = existing.Clone()
			return nil
		}
		score, err := e.repo.GetTeamScore(ctx, competitionID, created.ID)
		if err != nil {
			return fmt.Errorf("team score: %w", err)
		}
		created.Score = score
		created.ResetAnswer()
		s.Teams = append(s.Teams, created)
		team = created.Clone()
		e.publishState(competitionID, s)
		return nil
	})
	return team, err
}

// ReconnectTeam re-attaches a known team. It returns nil when the team id is
// unknown so the caller can prompt for a fresh join.
func (e *Engine) ReconnectTeam(ctx context.Context, competitionID, teamID string) (*domain.Team, error) {
	var team *domain.Team
	_, err := e.store.Update(competitionID, func(s *domain.GameState) error {
		if existing := s.Team(teamID); existing != nil {
			t := existing.Clone()
			team = &t
			return nil
		}
		stored, err := e.repo.ReconnectTeam(ctx, competitionID, teamID)
		if err != nil {
			return fmt.Errorf("reconnect team: %w", err)
		}
		if stored == nil {
			return nil
		}
		score, err := e.repo.GetTeamScore(ctx, competitionID, teamID)
		if err != nil {
			return fmt.Errorf("team score: %w", err)
		}
		joined := *stored
		joined.Score = score
		joined.ResetAnswer()
		s.Teams = append(s.Teams, joined)
		t := joined.Clone()
		team = &t
		e.publishState(competitionID, s)
		return nil
	})
	return team, err
}

// DetachTeam drops a disconnected team from the live list. Its ledger rows and
// durable record stay, so ReconnectTeam can bring it back with its score. If
// the remaining teams have all answered the active question, it ends early.
func (e *Engine) DetachTeam(competitionID, teamID string) {
	_, _ = e.store.Update(competitionID, func(s *domain.GameState) error {
		idx := -1
		for i := range s.Teams {
			if s.Teams[i].ID == teamID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}
		s.Teams = append(s.Teams[:idx], s.Teams[idx+1:]...)
		if s.Phase == domain.PhaseQuestionActive && s.CurrentQuestion != nil && everyoneAnswered(s) {
			e.endQuestionLocked(competitionID, s)
			return nil
		}
		e.publishState(competitionID, s)
		return nil
	})
}

// StartQuestion loads a question into preview. Unknown ids are ignored.
func (e *Engine) StartQuestion(ctx context.Context, competitionID, questionID string) error {
	q, err := e.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return fmt.Errorf("load question: %w", err)
	}
	if q == nil {
		log.Printf("engine: competition %s: question %s not found", competitionID, questionID)
		return nil
	}
	_, err = e.store.Update(competitionID, func(s *domain.GameState) error {
		e.loadQuestion(competitionID, s, *q, domain.PhaseQuestionPreview)
		e.publishState(competitionID, s)
		return nil
	})
	return err
}

// StartTimer moves a previewed question to active and starts the countdown.
// seconds <= 0 uses the remaining time of the question. onTick may be nil.
func (e *Engine) StartTimer(competitionID string, seconds int, onTick func(remaining int)) {
	_, _ = e.store.Update(competitionID, func(s *domain.GameState) error {
		if e.startTimerLocked(competitionID, s, seconds, onTick) {
			e.publishState(competitionID, s)
		}
		return nil
	})
}

// PauseTimer freezes the countdown of the active question.
func (e *Engine) PauseTimer(competitionID string) {
	_, _ = e.store.Update(competitionID, func(s *domain.GameState) error {
		if s.Phase != domain.PhaseQuestionActive || s.TimerPaused {
			return nil
		}
		s.TimerPaused = true
		e.timer.Pause(competitionID)
		e.publishState(competitionID, s)
		return nil
	})
}

// ResumeTimer continues a paused countdown. A question recovered after a
// restart has no running timer; it restarts from the persisted time.
func (e *Engine) ResumeTimer(competitionID string) {
	_, _ = e.store.Update(competitionID, func(s *domain.GameState) error {
		if s.Phase != domain.PhaseQuestionActive || !s.TimerPaused {
			return nil
		}
		s.TimerPaused = false
		switch {
		case e.timer.IsRunning(competitionID):
			e.timer.Resume(competitionID)
		case s.TimeRemaining > 0:
			e.runTimer(competitionID, s.TimeRemaining, nil)
		default:
			e.endQuestionLocked(competitionID, s)
		}
		e.publishState(competitionID, s)
		return nil
	})
}

// RevealAnswer shows the answer, ending the question early if still active.
func (e *Engine) RevealAnswer(competitionID string) {
	_, _ = e.store.Update(competitionID, func(s *domain.GameState) error {
		if s.Phase != domain.PhaseGrading && s.Phase != domain.PhaseQuestionActive {
			return nil
		}
		e.timer.Stop(competitionID)
		s.TimerPaused = false
		e.setPhase(s, domain.PhaseRevealAnswer)
		e.publishState(competitionID, s)
		return nil
	})
}

// SubmitAnswer grades and records a team's answer to the active question.
// Late, stale and repeated submissions are dropped without error. When every
// live team has answered the question ends early.
func (e *Engine) SubmitAnswer(ctx context.Context, competitionID, teamID, questionID string, answer json.RawMessage) (SubmitResult, error) {
	var res SubmitResult
	_, err := e.store.Update(competitionID, func(s *domain.GameState) error {
		if s.Phase != domain.PhaseQuestionActive || s.CurrentQuestion == nil || s.CurrentQuestion.ID != questionID {
			e.observer.ObserveAnswer(OutcomeDropped)
			return nil
		}
		team := s.Team(teamID)
		if team == nil || team.LastAnswer != nil {
			e.observer.ObserveAnswer(OutcomeDropped)
			return nil
		}

		q := *s.CurrentQuestion
		graded := grading.Grade(q, answer)
		content := string(answer)
		in := domain.AnswerInput{
			CompetitionID: competitionID,
			TeamID:        teamID,
			QuestionID:    q.ID,
			RoundID:       q.RoundID,
			Content:       content,
			Score:         graded.Score,
		}
		if !graded.Pending {
			correct := graded.Correct
			in.IsCorrect = &correct
		}
		record, err := e.repo.SaveAnswer(ctx, in)
		if errors.Is(err, domain.ErrDuplicateAnswer) {
			e.observer.ObserveAnswer(OutcomeDropped)
			return nil
		}
		if err != nil {
			return fmt.Errorf("save answer: %w", err)
		}

		team.LastAnswer = &content
		if !graded.Pending {
			correct := graded.Correct
			team.Score += graded.Score
			team.LastAnswerCorrect = &correct
		}
		res = SubmitResult{
			Accepted: true,
			AnswerID: record.ID,
			Pending:  graded.Pending,
			Correct:  graded.Correct,
			Score:    graded.Score,
		}
		e.observer.ObserveAnswer(outcome(graded))
		e.publishScores(competitionID, s)

		if everyoneAnswered(s) {
			e.endQuestionLocked(competitionID, s)
		}
		return nil
	})
	return res, err
}

func outcome(r grading.Result) string {
	switch {
	case r.Pending:
		return OutcomePending
	case r.Correct:
		return OutcomeCorrect
	}
	return OutcomeIncorrect
}

// everyoneAnswered counts only teams in the live list. Ledger rows left by an
// earlier run of the same question, or by teams that have since left, do not
// count towards early completion.
func everyoneAnswered(s *domain.GameState) bool {
	total := len(s.Teams)
	return total > 0 && s.AnsweredCount() >= total
}

// HandleGradeDecision settles a pending manual answer. Answers that are
// unknown or already graded are ignored.
func (e *Engine) HandleGradeDecision(ctx context.Context, competitionID, answerID string, correct bool) error {
	_, err := e.store.Update(competitionID, func(s *domain.GameState) error {
		answer, err := e.repo.GetAnswer(ctx, answerID)
		if err != nil {
			return fmt.Errorf("load answer: %w", err)
		}
		if answer == nil || !answer.Pending() {
			return nil
		}
		if answer.CompetitionID != "" && answer.CompetitionID != competitionID {
			return nil
		}
		q, err := e.repo.GetQuestion(ctx, answer.QuestionID)
		if err != nil {
			return fmt.Errorf("load question: %w", err)
		}
		if q == nil {
			return nil
		}

		score := 0
		if correct {
			score = max(q.Points, 0)
		}
		if err := e.repo.UpdateAnswerGrading(ctx, answerID, correct, score); err != nil {
			return fmt.Errorf("update grading: %w", err)
		}
		e.observer.ObserveAnswer(OutcomeGraded)

		team := s.Team(answer.TeamID)
		if team == nil {
			return nil
		}
		total, err := e.repo.GetTeamScore(ctx, competitionID, answer.TeamID)
		if err != nil {
			return fmt.Errorf("team score: %w", err)
		}
		team.Score = total
		if s.CurrentQuestion != nil && s.CurrentQuestion.ID == answer.QuestionID {
			c := correct
			team.LastAnswerCorrect = &c
		}
		e.publishScores(competitionID, s)
		return nil
	})
	return err
}

// PendingAnswers lists answers waiting for a host decision.
func (e *Engine) PendingAnswers(ctx context.Context, competitionID string) ([]domain.Answer, error) {
	return e.repo.GetPendingAnswers(ctx, competitionID)
}

// SetPhase is the host override. Only the phase field changes; the override is
// refused when the target phase needs a question and none is loaded.
func (e *Engine) SetPhase(competitionID string, phase domain.Phase) error {
	if !phase.Valid() {
		return domain.ErrInvalidPhase
	}
	_, err := e.store.Update(competitionID, func(s *domain.GameState) error {
		if phase.HasQuestion() && s.CurrentQuestion == nil {
			log.Printf("engine: competition %s: ignoring %s without a question", competitionID, phase)
			return nil
		}
		e.setPhase(s, phase)
		e.publishState(competitionID, s)
		return nil
	})
	return err
}

// Next advances the competition one step. onTick is handed to the countdown
// when this step starts the timer.
func (e *Engine) Next(ctx context.Context, competitionID string, onTick func(remaining int)) error {
	_, err := e.store.Update(competitionID, func(s *domain.GameState) error {
		changed, err := e.advance(ctx, competitionID, s, onTick)
		if err != nil {
			return err
		}
		if changed {
			e.publishState(competitionID, s)
		}
		return nil
	})
	return err
}

func (e *Engine) advance(ctx context.Context, id string, s *domain.GameState, onTick func(int)) (bool, error) {
	switch s.Phase {
	case domain.PhaseWaiting:
		e.setPhase(s, domain.PhaseWelcome)
		return true, nil

	case domain.PhaseWelcome:
		questions, err := e.questions(ctx, id)
		if err != nil {
			return false, err
		}
		if len(questions) == 0 {
			e.setPhase(s, domain.PhaseLeaderboard)
			return true, nil
		}
		e.loadQuestion(id, s, questions[0], domain.PhaseRoundStart)
		return true, nil

	case domain.PhaseRoundStart:
		if s.CurrentQuestion == nil {
			return false, nil
		}
		e.setPhase(s, domain.PhaseQuestionPreview)
		return true, nil

	case domain.PhaseQuestionPreview:
		q := s.CurrentQuestion
		if q == nil {
			return false, nil
		}
		if q.Type == domain.TypeMultipleChoice && s.RevealStep < q.OptionCount() {
			s.RevealStep++
			return true, nil
		}
		return e.startTimerLocked(id, s, 0, onTick), nil

	case domain.PhaseQuestionActive:
		e.endQuestionLocked(id, s)
		return false, nil

	case domain.PhaseGrading:
		e.timer.Stop(id)
		e.setPhase(s, domain.PhaseRevealAnswer)
		return true, nil

	case domain.PhaseRevealAnswer:
		if s.CurrentQuestion == nil {
			e.setPhase(s, domain.PhaseRoundEnd)
			return true, nil
		}
		questions, err := e.questions(ctx, id)
		if err != nil {
			return false, err
		}
		idx := indexOf(questions, s.CurrentQuestion.ID)
		if idx >= 0 && idx+1 < len(questions) && questions[idx+1].RoundID == s.CurrentQuestion.RoundID {
			e.loadQuestion(id, s, questions[idx+1], domain.PhaseRoundStart)
			return true, nil
		}
		e.setPhase(s, domain.PhaseRoundEnd)
		return true, nil

	case domain.PhaseRoundEnd:
		if s.CurrentQuestion == nil {
			e.setPhase(s, domain.PhaseLeaderboard)
			return true, nil
		}
		questions, err := e.questions(ctx, id)
		if err != nil {
			return false, err
		}
		if next, ok := firstOfNextRound(questions, *s.CurrentQuestion); ok {
			e.loadQuestion(id, s, next, domain.PhaseRoundStart)
			return true, nil
		}
		e.setPhase(s, domain.PhaseLeaderboard)
		return true, nil
	}
	return false, nil
}

func (e *Engine) questions(ctx context.Context, competitionID string) ([]domain.Question, error) {
	questions, err := e.repo.GetQuestionsForCompetition(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}

func indexOf(questions []domain.Question, id string) int {
	for i := range questions {
		if questions[i].ID == id {
			return i
		}
	}
	return -1
}

func firstOfNextRound(questions []domain.Question, current domain.Question) (domain.Question, bool) {
	idx := indexOf(questions, current.ID)
	if idx < 0 {
		return domain.Question{}, false
	}
	for _, q := range questions[idx+1:] {
		if q.RoundID != current.RoundID {
			return q, true
		}
	}
	return domain.Question{}, false
}

// Recover loads the last snapshot and rebuilds every team's score from the
// ledger. Competitions caught mid-question come back paused.
func (e *Engine) Recover(ctx context.Context) error {
	states, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	for id := range states {
		_, err := e.store.Update(id, func(s *domain.GameState) error {
			for i := range s.Teams {
				score, err := e.repo.GetTeamScore(ctx, id, s.Teams[i].ID)
				if err != nil {
					return fmt.Errorf("team score: %w", err)
				}
				s.Teams[i].Score = score
			}
			if s.Phase == domain.PhaseQuestionActive {
				s.TimerPaused = true
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("recover %s: %w", id, err)
		}
	}
	log.Printf("engine: recovered %d competitions", len(states))
	return nil
}

// Shutdown stops every countdown.
func (e *Engine) Shutdown() {
	e.timer.StopAll()
}

func (e *Engine) loadQuestion(id string, s *domain.GameState, q domain.Question, phase domain.Phase) {
	e.timer.Stop(id)
	s.CurrentQuestion = &q
	s.TimeRemaining = q.TimeLimit()
	s.TimerPaused = false
	s.RevealStep = 0
	s.ResetAnswers()
	e.setPhase(s, phase)
}

func (e *Engine) startTimerLocked(id string, s *domain.GameState, seconds int, onTick func(int)) bool {
	if s.Phase != domain.PhaseQuestionPreview || s.CurrentQuestion == nil {
		return false
	}
	if seconds <= 0 {
		seconds = s.TimeRemaining
	}
	if seconds <= 0 {
		seconds = s.CurrentQuestion.TimeLimit()
	}
	s.TimeRemaining = seconds
	s.TimerPaused = false
	e.setPhase(s, domain.PhaseQuestionActive)
	e.runTimer(id, seconds, onTick)
	return true
}

// runTimer must be called with the competition locked. The generation guards
// against callbacks of a timer that was replaced while they were in flight.
func (e *Engine) runTimer(id string, seconds int, onTick func(int)) {
	gen := e.timer.Generation(id) + 1
	e.timer.Start(id, seconds,
		func(remaining int) { e.handleTick(id, gen, remaining, onTick) },
		func() { e.handleTimerEnd(id, gen) },
	)
}

func (e *Engine) handleTick(id string, gen uint64, remaining int, onTick func(int)) {
	applied := false
	_, _ = e.store.Update(id, func(s *domain.GameState) error {
		if gen != e.timer.Generation(id) || s.Phase != domain.PhaseQuestionActive || s.TimerPaused {
			return nil
		}
		s.TimeRemaining = remaining
		applied = true
		e.notifier.TimerTick(id, remaining)
		return nil
	})
	if applied && onTick != nil {
		onTick(remaining)
	}
}

func (e *Engine) handleTimerEnd(id string, gen uint64) {
	_, _ = e.store.Update(id, func(s *domain.GameState) error {
		if gen != e.timer.Generation(id) || s.Phase != domain.PhaseQuestionActive || s.TimerPaused {
			return nil
		}
		e.endQuestionLocked(id, s)
		return nil
	})
}

func (e *Engine) endQuestionLocked(id string, s *domain.GameState) {
	e.timer.Stop(id)
	s.TimerPaused = false
	e.setPhase(s, domain.PhaseGrading)
	e.publishState(id, s)
}

func (e *Engine) setPhase(s *domain.GameState, phase domain.Phase) {
	s.Phase = phase
	e.observer.ObservePhase(phase)
}

func (e *Engine) publishState(id string, s *domain.GameState) {
	e.notifier.StateChanged(id, s.Clone())
}

func (e *Engine) publishScores(id string, s *domain.GameState) {
	e.notifier.ScoresChanged(id, s.TeamsSnapshot())
}
