package app

import (
	"context"

	"trivia-live-service/internal/domain"
)

// Repository is the durable side of the engine: teams, questions and the
// answer ledger. The ledger is the source of truth for scores.
type Repository interface {
	GetOrCreateTeam(ctx context.Context, competitionID, name, color string) (domain.Team, error)
	// GetTeamScore sums score_awarded over the team's correct answers.
	GetTeamScore(ctx context.Context, competitionID, teamID string) (int, error)
	// ReconnectTeam returns nil when the team does not exist.
	ReconnectTeam(ctx context.Context, competitionID, teamID string) (*domain.Team, error)
	GetQuestion(ctx context.Context, questionID string) (*domain.Question, error)
	// GetQuestionsForCompetition orders by round, then creation.
	GetQuestionsForCompetition(ctx context.Context, competitionID string) ([]domain.Question, error)
	// SaveAnswer returns domain.ErrDuplicateAnswer when the team already
	// answered the question.
	SaveAnswer(ctx context.Context, in domain.AnswerInput) (domain.Answer, error)
	GetAnswer(ctx context.Context, answerID string) (*domain.Answer, error)
	// UpdateAnswerGrading only writes pending answers; settling an already
	// graded answer is a no-op.
	UpdateAnswerGrading(ctx context.Context, answerID string, isCorrect bool, score int) error
	GetSubmissionCount(ctx context.Context, questionID string) (int, error)
	// GetPendingAnswers lists answers waiting for a host decision; an empty
	// competitionID lists every competition.
	GetPendingAnswers(ctx context.Context, competitionID string) ([]domain.Answer, error)
}

// Notifier fans engine events out to whoever listens on a competition.
// Calls happen while the competition is locked and must not block.
type Notifier interface {
	StateChanged(competitionID string, state domain.GameState)
	TimerTick(competitionID string, remaining int)
	ScoresChanged(competitionID string, teams []domain.Team)
}

// Timer is the countdown registry the engine drives.
type Timer interface {
	Start(id string, seconds int, onTick func(remaining int), onEnd func()) uint64
	Pause(id string)
	Resume(id string)
	Stop(id string)
	IsRunning(id string) bool
	Generation(id string) uint64
	StopAll()
}

// Observer receives engine measurements.
type Observer interface {
	ObserveAnswer(outcome string)
	ObservePhase(phase domain.Phase)
}

// Answer outcomes reported to the Observer.
const (
	OutcomeCorrect   = "correct"
	OutcomeIncorrect = "incorrect"
	OutcomePending   = "pending"
	OutcomeDropped   = "dropped"
	OutcomeGraded    = "graded"
)

type nopNotifier struct{}

func (nopNotifier) StateChanged(string, domain.GameState) {}
func (nopNotifier) TimerTick(string, int)                 {}
func (nopNotifier) ScoresChanged(string, []domain.Team)   {}

type nopObserver struct{}

func (nopObserver) ObserveAnswer(string)       {}
func (nopObserver) ObservePhase(domain.Phase) {}
