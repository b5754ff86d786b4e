package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"

	"trivia-live-service/internal/content"
	"trivia-live-service/internal/domain"
)

// Seed upserts competitions, rounds and questions from a content file in one
// transaction. Teams and answers are left alone.
func (r *Repository) Seed(ctx context.Context, f content.File) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range f.Competitions {
		_, err := tx.Exec(ctx, `
INSERT INTO competitions (id, name, pin) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, pin = EXCLUDED.pin`, c.ID, c.Name, c.Pin)
		if err != nil {
			return fmt.Errorf("seed competition %s: %w", c.ID, err)
		}
		for ri, round := range c.Rounds {
			roundType := round.Type
			if roundType == "" {
				roundType = domain.RoundStandard
			}
			_, err := tx.Exec(ctx, `
INSERT INTO rounds (id, competition_id, order_index, type, title) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET competition_id = EXCLUDED.competition_id, order_index = EXCLUDED.order_index,
    type = EXCLUDED.type, title = EXCLUDED.title`, round.ID, c.ID, ri, string(roundType), round.Title)
			if err != nil {
				return fmt.Errorf("seed round %s: %w", round.ID, err)
			}
			for qi, q := range round.Questions {
				if err := seedQuestion(ctx, tx, round.ID, qi, q); err != nil {
					return err
				}
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

func seedQuestion(ctx context.Context, tx pgx.Tx, roundID string, index int, q domain.Question) error {
	raw := []byte("{}")
	if q.Content != nil {
		data, err := json.Marshal(q.Content)
		if err != nil {
			return fmt.Errorf("encode question %s: %w", q.ID, err)
		}
		raw = data
	}
	grading := q.Grading
	if grading == "" {
		grading = domain.GradingAuto
	}
	_, err := tx.Exec(ctx, `
INSERT INTO questions (id, round_id, order_index, text, type, points, time_limit_seconds, grading, content)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET round_id = EXCLUDED.round_id, order_index = EXCLUDED.order_index,
    text = EXCLUDED.text, type = EXCLUDED.type, points = EXCLUDED.points,
    time_limit_seconds = EXCLUDED.time_limit_seconds, grading = EXCLUDED.grading, content = EXCLUDED.content`,
		q.ID, roundID, index, q.Text, string(q.Type), q.Points, q.TimeLimitSeconds, string(grading), string(raw))
	if err != nil {
		return fmt.Errorf("seed question %s: %w", q.ID, err)
	}
	return nil
}
