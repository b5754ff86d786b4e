package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/content"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/postgres"
	pgmigrations "trivia-live-service/internal/infra/postgres/migrations"
	infraredis "trivia-live-service/internal/infra/redis"
	"trivia-live-service/internal/state"
	"trivia-live-service/internal/timer"
)

func TestRecoveryAfterRestart(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	pg := postgres.NewRepository(pool)
	if err := pg.Seed(ctx, sampleContent()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	newEngine := func() (*app.Engine, *state.Store) {
		repo := infraredis.NewQuestionCache(redisClient, pg, 5*time.Minute)
		store := state.NewStore(infraredis.NewSnapshotStore(redisClient, "", 0))
		return app.NewEngine(repo, store, timer.New()), store
	}

	engine, store := newEngine()
	alice, err := engine.AddTeam(ctx, "comp-1", "Alice", "#f00")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, err := engine.AddTeam(ctx, "comp-1", "Bob", "#00f")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := engine.Next(ctx, "comp-1", nil); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}
	if st := engine.State("comp-1"); st.Phase != domain.PhaseQuestionPreview || st.CurrentQuestion.ID != "q1" {
		t.Fatalf("expected preview of q1, got %s", st.Phase)
	}
	// reveal both options, then start the countdown
	for i := 0; i < 3; i++ {
		if err := engine.Next(ctx, "comp-1", nil); err != nil {
			t.Fatalf("reveal %d: %v", i, err)
		}
	}
	if got := engine.State("comp-1").Phase; got != domain.PhaseQuestionActive {
		t.Fatalf("expected QUESTION_ACTIVE, got %s", got)
	}

	res, err := engine.SubmitAnswer(ctx, "comp-1", alice.ID, "q1", json.RawMessage(`1`))
	if err != nil || !res.Accepted || !res.Correct {
		t.Fatalf("expected correct answer, got %+v, %v", res, err)
	}
	_, err = pg.SaveAnswer(ctx, domain.AnswerInput{CompetitionID: "comp-1", TeamID: alice.ID, QuestionID: "q1", Content: "0"})
	if !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate answer from the ledger, got %v", err)
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	engine.Shutdown()

	restarted, _ := newEngine()
	defer restarted.Shutdown()
	if err := restarted.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	st := restarted.State("comp-1")
	if st.Phase != domain.PhaseQuestionActive || !st.TimerPaused {
		t.Fatalf("expected paused active question, got %s paused=%v", st.Phase, st.TimerPaused)
	}
	if got := st.Team(alice.ID).Score; got != 10 {
		t.Fatalf("expected alice to keep 10 points, got %d", got)
	}

	res, err = restarted.SubmitAnswer(ctx, "comp-1", bob.ID, "q1", json.RawMessage(`0`))
	if err != nil || !res.Accepted || res.Correct {
		t.Fatalf("expected bob's wrong answer accepted, got %+v, %v", res, err)
	}
	if got := restarted.State("comp-1").Phase; got != domain.PhaseGrading {
		t.Fatalf("expected GRADING once both teams answered, got %s", got)
	}

	team, err := restarted.ReconnectTeam(ctx, "comp-1", alice.ID)
	if err != nil || team == nil || team.Score != 10 {
		t.Fatalf("expected reconnect with 10 points, got %+v, %v", team, err)
	}
}

func TestManualGradingAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	pg := postgres.NewRepository(pool)
	if err := pg.Seed(ctx, sampleContent()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	engine := app.NewEngine(pg, state.NewStore(nil), timer.New())
	defer engine.Shutdown()
	team, err := engine.AddTeam(ctx, "comp-1", "Carol", "#0f0")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := engine.AddTeam(ctx, "comp-1", "Dave", "#ff0"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := engine.StartQuestion(ctx, "comp-1", "q2"); err != nil {
		t.Fatalf("start question: %v", err)
	}
	engine.StartTimer("comp-1", 0, nil)

	res, err := engine.SubmitAnswer(ctx, "comp-1", team.ID, "q2", json.RawMessage(`"bold"`))
	if err != nil || !res.Pending {
		t.Fatalf("expected pending answer, got %+v, %v", res, err)
	}
	pending, err := engine.PendingAnswers(ctx, "comp-1")
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending answer, got %d, %v", len(pending), err)
	}
	if err := engine.HandleGradeDecision(ctx, "comp-1", res.AnswerID, true); err != nil {
		t.Fatalf("grade: %v", err)
	}
	st := engine.State("comp-1")
	if got := st.Team(team.ID).Score; got != 7 {
		t.Fatalf("expected 7 points after decision, got %d", got)
	}

	// a second decision reaching the ledger directly must not overwrite the first
	if err := pg.UpdateAnswerGrading(ctx, res.AnswerID, false, 0); err != nil {
		t.Fatalf("regrade: %v", err)
	}
	if score, err := pg.GetTeamScore(ctx, "comp-1", team.ID); err != nil || score != 7 {
		t.Fatalf("expected settled answer to keep 7 points, got %d, %v", score, err)
	}
	if err := pg.UpdateAnswerGrading(ctx, "missing", true, 1); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected ErrAnswerNotFound, got %v", err)
	}
	questions, err := pg.GetQuestionsForCompetition(ctx, "comp-1")
	if err != nil || len(questions) != 2 || questions[0].ID != "q1" {
		t.Fatalf("expected ordered questions, got %+v, %v", questions, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleContent() content.File {
	correct := 1
	return content.File{Competitions: []content.Competition{{
		ID:   "comp-1",
		Name: "Integration",
		Rounds: []content.Round{
			{ID: "r1", Questions: []domain.Question{{
				ID:               "q1",
				Text:             "What is 2 + 2?",
				Type:             domain.TypeMultipleChoice,
				Points:           10,
				TimeLimitSeconds: 30,
				Grading:          domain.GradingAuto,
				Content:          domain.MultipleChoiceContent{Options: []string{"3", "4"}, CorrectIndex: &correct},
			}}},
			{ID: "r2", Questions: []domain.Question{{
				ID:               "q2",
				Text:             "Describe the quiz in one word.",
				Type:             domain.TypeOpenWord,
				Points:           7,
				TimeLimitSeconds: 30,
				Grading:          domain.GradingManual,
				Content:          domain.OpenWordContent{},
			}}},
		},
	}}}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
