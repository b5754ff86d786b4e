// Package postgres stores teams, questions and the answer ledger in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-live-service/internal/domain"
)

const uniqueViolation = "23505"

// Repository implements app.Repository on a pgx pool.
type Repository struct {
	pool  *pgxpool.Pool
	newID func() string
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, newID: uuid.NewString}
}

func (r *Repository) GetOrCreateTeam(ctx context.Context, competitionID, name, color string) (domain.Team, error) {
	// the no-op update makes RETURNING yield the existing row on conflict
	const q = `
INSERT INTO teams (id, competition_id, name, color)
VALUES ($1, $2, $3, $4)
ON CONFLICT (competition_id, name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, competition_id, name, color`
	var t domain.Team
	err := r.pool.QueryRow(ctx, q, r.newID(), competitionID, name, color).
		Scan(&t.ID, &t.CompetitionID, &t.Name, &t.Color)
	if err != nil {
		return domain.Team{}, fmt.Errorf("upsert team: %w", err)
	}
	return t, nil
}

func (r *Repository) GetTeamScore(ctx context.Context, competitionID, teamID string) (int, error) {
	const q = `
SELECT COALESCE(SUM(score_awarded), 0)
FROM answers
WHERE competition_id = $1 AND team_id = $2 AND is_correct = true`
	var total int64
	if err := r.pool.QueryRow(ctx, q, competitionID, teamID).Scan(&total); err != nil {
		return 0, fmt.Errorf("team score: %w", err)
	}
	return int(total), nil
}

func (r *Repository) ReconnectTeam(ctx context.Context, competitionID, teamID string) (*domain.Team, error) {
	const q = `SELECT id, competition_id, name, color FROM teams WHERE id = $1 AND competition_id = $2`
	var t domain.Team
	err := r.pool.QueryRow(ctx, q, teamID, competitionID).Scan(&t.ID, &t.CompetitionID, &t.Name, &t.Color)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load team: %w", err)
	}
	return &t, nil
}

const questionColumns = `q.id, q.round_id, q.text, q.type, q.points, q.time_limit_seconds, q.grading, q.content`

func (r *Repository) GetQuestion(ctx context.Context, questionID string) (*domain.Question, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions q WHERE q.id = $1`, questionID)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *Repository) GetQuestionsForCompetition(ctx context.Context, competitionID string) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+questionColumns+`
FROM questions q
JOIN rounds r ON r.id = q.round_id
WHERE r.competition_id = $1
ORDER BY r.order_index, q.order_index, q.created_at`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return questions, nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q       domain.Question
		qType   string
		grading string
		raw     []byte
	)
	if err := row.Scan(&q.ID, &q.RoundID, &q.Text, &qType, &q.Points, &q.TimeLimitSeconds, &grading, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Question{}, err
		}
		return domain.Question{}, fmt.Errorf("scan question: %w", err)
	}
	q.Type = domain.QuestionType(qType)
	q.Grading = domain.GradingMode(grading)
	content, err := domain.DecodeContent(q.Type, raw)
	if err != nil {
		return domain.Question{}, fmt.Errorf("question %s: %w", q.ID, err)
	}
	q.Content = content
	return q, nil
}

func (r *Repository) SaveAnswer(ctx context.Context, in domain.AnswerInput) (domain.Answer, error) {
	const q = `
INSERT INTO answers (id, competition_id, team_id, question_id, round_id, content, is_correct, score_awarded)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at`
	a := domain.Answer{
		ID:            r.newID(),
		CompetitionID: in.CompetitionID,
		TeamID:        in.TeamID,
		QuestionID:    in.QuestionID,
		RoundID:       in.RoundID,
		Content:       in.Content,
		IsCorrect:     in.IsCorrect,
		ScoreAwarded:  in.Score,
	}
	err := r.pool.QueryRow(ctx, q, a.ID, a.CompetitionID, a.TeamID, a.QuestionID, a.RoundID, a.Content, a.IsCorrect, a.ScoreAwarded).
		Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Answer{}, domain.ErrDuplicateAnswer
	}
	if err != nil {
		return domain.Answer{}, fmt.Errorf("insert answer: %w", err)
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const answerColumns = `id, competition_id, team_id, question_id, round_id, content, is_correct, score_awarded, created_at`

func scanAnswer(row pgx.Row) (domain.Answer, error) {
	var (
		a         domain.Answer
		isCorrect *bool
		createdAt time.Time
	)
	err := row.Scan(&a.ID, &a.CompetitionID, &a.TeamID, &a.QuestionID, &a.RoundID, &a.Content, &isCorrect, &a.ScoreAwarded, &createdAt)
	if err != nil {
		return domain.Answer{}, err
	}
	a.IsCorrect = isCorrect
	a.CreatedAt = createdAt
	return a, nil
}

func (r *Repository) GetAnswer(ctx context.Context, answerID string) (*domain.Answer, error) {
	a, err := scanAnswer(r.pool.QueryRow(ctx, `SELECT `+answerColumns+` FROM answers WHERE id = $1`, answerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load answer: %w", err)
	}
	return &a, nil
}

// UpdateAnswerGrading settles a pending answer. An answer that is already
// graded is left as it is.
func (r *Repository) UpdateAnswerGrading(ctx context.Context, answerID string, isCorrect bool, score int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE answers SET is_correct = $2, score_awarded = $3 WHERE id = $1 AND is_correct IS NULL`,
		answerID, isCorrect, score)
	if err != nil {
		return fmt.Errorf("update answer: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM answers WHERE id = $1)`, answerID).Scan(&exists); err != nil {
		return fmt.Errorf("check answer: %w", err)
	}
	if !exists {
		return domain.ErrAnswerNotFound
	}
	return nil
}

func (r *Repository) GetSubmissionCount(ctx context.Context, questionID string) (int, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM answers WHERE question_id = $1`, questionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return int(n), nil
}

func (r *Repository) GetPendingAnswers(ctx context.Context, competitionID string) ([]domain.Answer, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+answerColumns+`
FROM answers
WHERE is_correct IS NULL AND ($1 = '' OR competition_id = $1)
ORDER BY created_at, id`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("query pending answers: %w", err)
	}
	defer rows.Close()

	answers := make([]domain.Answer, 0)
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pending answers: %w", err)
	}
	return answers, nil
}
