package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"trivia-live-service/internal/content"
	"trivia-live-service/internal/domain"
)

// Repository is an in-process implementation of app.Repository. It backs demo
// mode and tests.
type Repository struct {
	now   func() time.Time
	newID func() string

	mu           sync.RWMutex
	competitions map[string]domain.Competition
	questions    map[string]domain.Question
	ordered      map[string][]string // competition id -> question ids in play order
	teams        map[string]domain.Team
	answers      map[string]domain.Answer
	answerOrder  []string
	answered     map[string]string // team id + question id -> answer id
}

func NewRepository() *Repository {
	return &Repository{
		now:          time.Now,
		newID:        uuid.NewString,
		competitions: make(map[string]domain.Competition),
		questions:    make(map[string]domain.Question),
		ordered:      make(map[string][]string),
		teams:        make(map[string]domain.Team),
		answers:      make(map[string]domain.Answer),
		answered:     make(map[string]string),
	}
}

// Seed loads competitions, rounds and questions. Seeding a competition twice
// replaces its question order.
func (r *Repository) Seed(f content.File) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range f.Competitions {
		r.competitions[c.ID] = domain.Competition{ID: c.ID, Name: c.Name, Pin: c.Pin}
		ids := make([]string, 0)
		for _, round := range c.Rounds {
			for _, q := range round.Questions {
				q.RoundID = round.ID
				r.questions[q.ID] = q
				ids = append(ids, q.ID)
			}
		}
		r.ordered[c.ID] = ids
	}
}

func (r *Repository) GetOrCreateTeam(_ context.Context, competitionID, name, color string) (domain.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.teams {
		if t.CompetitionID == competitionID && t.Name == name {
			return t, nil
		}
	}
	t := domain.Team{
		ID:            r.newID(),
		CompetitionID: competitionID,
		Name:          name,
		Color:         color,
	}
	r.teams[t.ID] = t
	return t, nil
}

func (r *Repository) GetTeamScore(_ context.Context, competitionID, teamID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, a := range r.answers {
		if a.TeamID != teamID || a.IsCorrect == nil || !*a.IsCorrect {
			continue
		}
		if a.CompetitionID != "" && a.CompetitionID != competitionID {
			continue
		}
		total += a.ScoreAwarded
	}
	return total, nil
}

func (r *Repository) ReconnectTeam(_ context.Context, competitionID, teamID string) (*domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.teams[teamID]
	if !ok || t.CompetitionID != competitionID {
		return nil, nil
	}
	return &t, nil
}

func (r *Repository) GetQuestion(_ context.Context, questionID string) (*domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.questions[questionID]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (r *Repository) GetQuestionsForCompetition(_ context.Context, competitionID string) ([]domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.ordered[competitionID]
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.questions[id])
	}
	return out, nil
}

func (r *Repository) SaveAnswer(_ context.Context, in domain.AnswerInput) (domain.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := in.TeamID + "\x00" + in.QuestionID
	if _, dup := r.answered[key]; dup {
		return domain.Answer{}, domain.ErrDuplicateAnswer
	}
	a := domain.Answer{
		ID:            r.newID(),
		CompetitionID: in.CompetitionID,
		TeamID:        in.TeamID,
		QuestionID:    in.QuestionID,
		RoundID:       in.RoundID,
		Content:       in.Content,
		IsCorrect:     in.IsCorrect,
		ScoreAwarded:  in.Score,
		CreatedAt:     r.now(),
	}
	r.answers[a.ID] = a
	r.answerOrder = append(r.answerOrder, a.ID)
	r.answered[key] = a.ID
	return a, nil
}

func (r *Repository) GetAnswer(_ context.Context, answerID string) (*domain.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.answers[answerID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *Repository) UpdateAnswerGrading(_ context.Context, answerID string, isCorrect bool, score int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.answers[answerID]
	if !ok {
		return domain.ErrAnswerNotFound
	}
	if !a.Pending() {
		return nil
	}
	a.IsCorrect = &isCorrect
	a.ScoreAwarded = score
	r.answers[answerID] = a
	return nil
}

func (r *Repository) GetSubmissionCount(_ context.Context, questionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.answers {
		if a.QuestionID == questionID {
			n++
		}
	}
	return n, nil
}

func (r *Repository) GetPendingAnswers(_ context.Context, competitionID string) ([]domain.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Answer, 0)
	for _, id := range r.answerOrder {
		a := r.answers[id]
		if !a.Pending() {
			continue
		}
		if competitionID != "" && a.CompetitionID != competitionID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
