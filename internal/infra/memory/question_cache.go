package memory

import (
	"context"
	"math/rand"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
)

// CachedRepository caches the ordered question list of each competition with
// a TTL, so the engine's Next does not hit the backing store on every step.
// Every other call goes straight to the wrapped repository.
type CachedRepository struct {
	app.Repository

	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewCachedRepository(repo app.Repository, ttl time.Duration) *CachedRepository {
	return &CachedRepository{
		Repository: repo,
		ttl:        ttl,
		clock:      time.Now,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:      make(map[string]cachedQuestions),
	}
}

func (r *CachedRepository) GetQuestionsForCompetition(ctx context.Context, competitionID string) ([]domain.Question, error) {
	if questions, ok := r.lookup(competitionID); ok {
		return questions, nil
	}

	result, err, _ := r.sf.Do(competitionID, func() (interface{}, error) {
		if questions, ok := r.lookup(competitionID); ok {
			return questions, nil
		}
		questions, err := r.Repository.GetQuestionsForCompetition(ctx, competitionID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[competitionID] = cachedQuestions{
			questions: questions,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(result.([]domain.Question)), nil
}

// Invalidate drops the cached list of a competition.
func (r *CachedRepository) Invalidate(competitionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, competitionID)
}

func (r *CachedRepository) lookup(competitionID string) ([]domain.Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[competitionID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return nil, false
	}
	return slices.Clone(entry.questions), true
}

func (r *CachedRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
