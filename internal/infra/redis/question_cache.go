package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
)

// QuestionCache caches the ordered question list of a competition in Redis
// and falls back to the wrapped repository on a miss. Every other call goes
// straight to the wrapped repository.
//
// The list is stored as JSON: SET trivia:competition:{id}:questions [...]
type QuestionCache struct {
	app.Repository

	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewQuestionCache(client *redis.Client, repo app.Repository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		Repository: repo,
		client:     client,
		ttl:        ttl,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) GetQuestionsForCompetition(ctx context.Context, competitionID string) ([]domain.Question, error) {
	if questions, ok := c.lookup(ctx, competitionID); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(competitionID, func() (interface{}, error) {
		// another caller may have filled the cache meanwhile
		if questions, ok := c.lookup(ctx, competitionID); ok {
			return questions, nil
		}
		questions, err := c.Repository.GetQuestionsForCompetition(ctx, competitionID)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(questions)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, questionsKey(competitionID), data, c.ttlWithJitter()).Err(); err != nil {
			log.Printf("redis: cache questions of %s: %v", competitionID, err)
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	src := result.([]domain.Question)
	out := make([]domain.Question, len(src))
	copy(out, src)
	return out, nil
}

// Invalidate drops the cached list of a competition.
func (c *QuestionCache) Invalidate(ctx context.Context, competitionID string) error {
	return c.client.Del(ctx, questionsKey(competitionID)).Err()
}

func (c *QuestionCache) lookup(ctx context.Context, competitionID string) ([]domain.Question, bool) {
	data, err := c.client.Get(ctx, questionsKey(competitionID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("redis: read questions of %s: %v", competitionID, err)
		}
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		log.Printf("redis: decode questions of %s: %v", competitionID, err)
		return nil, false
	}
	return questions, true
}

func questionsKey(competitionID string) string {
	return "trivia:competition:" + competitionID + ":questions"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
