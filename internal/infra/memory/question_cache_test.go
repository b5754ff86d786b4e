package memory

import (
	"context"
	"testing"
	"time"

	"trivia-live-service/internal/content"
	"trivia-live-service/internal/domain"
)

func TestCachedRepositoryCachesQuestionList(t *testing.T) {
	repo := &countingRepository{Repository: seededRepository()}
	cached := NewCachedRepository(repo, time.Minute)

	first, err := cached.GetQuestionsForCompetition(context.Background(), "comp-1")
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(first) != 2 || repo.calls != 1 {
		t.Fatalf("expected 2 questions from one load, got %d questions and %d loads", len(first), repo.calls)
	}

	if _, err := cached.GetQuestionsForCompetition(context.Background(), "comp-1"); err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", repo.calls)
	}

	cached.Invalidate("comp-1")
	if _, err := cached.GetQuestionsForCompetition(context.Background(), "comp-1"); err != nil {
		t.Fatalf("get questions 3: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", repo.calls)
	}
}

func TestCachedRepositoryExpires(t *testing.T) {
	repo := &countingRepository{Repository: seededRepository()}
	cached := NewCachedRepository(repo, time.Minute)
	now := time.Now()
	cached.clock = func() time.Time { return now }

	_, _ = cached.GetQuestionsForCompetition(context.Background(), "comp-1")
	now = now.Add(2 * time.Minute)
	_, _ = cached.GetQuestionsForCompetition(context.Background(), "comp-1")
	if repo.calls != 2 {
		t.Fatalf("expected expired entry to reload, loader calls %d", repo.calls)
	}
}

type countingRepository struct {
	*Repository
	calls int
}

func (c *countingRepository) GetQuestionsForCompetition(ctx context.Context, competitionID string) ([]domain.Question, error) {
	c.calls++
	return c.Repository.GetQuestionsForCompetition(ctx, competitionID)
}

func seededRepository() *Repository {
	repo := NewRepository()
	repo.Seed(content.File{Competitions: []content.Competition{{
		ID: "comp-1",
		Rounds: []content.Round{{
			ID: "r1",
			Questions: []domain.Question{
				{ID: "q1", Type: domain.TypeClosed, Points: 5, Content: domain.ClosedContent{Answers: []string{"Paris"}}},
				{ID: "q2", Type: domain.TypeOpenWord, Points: 5, Content: domain.OpenWordContent{Answer: "gopher"}},
			},
		}},
	}}})
	return repo
}
