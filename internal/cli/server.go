package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/config"
	"trivia-live-service/internal/content"
	"trivia-live-service/internal/infra/file"
	"trivia-live-service/internal/infra/memory"
	"trivia-live-service/internal/infra/postgres"
	redisinfra "trivia-live-service/internal/infra/redis"
	"trivia-live-service/internal/metrics"
	"trivia-live-service/internal/notify"
	"trivia-live-service/internal/state"
	"trivia-live-service/internal/timer"
	transport "trivia-live-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 0)

	var repo app.Repository
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool)
	} else {
		mem := memory.NewRepository()
		if cfg.Quiz.Content != "" {
			f, err := content.Load(cfg.Quiz.Content)
			if err != nil {
				return err
			}
			mem.Seed(f)
			log.Printf("loaded %d competitions from %s", len(f.Competitions), cfg.Quiz.Content)
		}
		repo = mem
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		repo = redisinfra.NewQuestionCache(redisClient, repo, quizTTL)
	} else {
		repo = memory.NewCachedRepository(repo, quizTTL)
	}

	var snapshots state.SnapshotRepository
	switch {
	case redisClient != nil:
		snapshots = redisinfra.NewSnapshotStore(redisClient, redisinfra.DefaultSnapshotKey, redisTTL)
	case cfg.Snapshot.Path != "":
		snapshots = file.NewSnapshotStore(cfg.Snapshot.Path)
	}

	countdown := timer.New()
	collectors := metrics.New(countdown.Running)
	store := state.NewStore(snapshots, state.WithSaveFailureHook(collectors.SnapshotFailed))

	hub := notify.NewHub()
	var notifier app.Notifier = hub
	var publisher *redisinfra.Publisher
	if redisClient != nil && cfg.Redis.PubSub {
		publisher = redisinfra.NewPublisher(redisClient, "")
		notifier = notify.Fanout{hub, publisher}
	}

	engine := app.NewEngine(repo, store, countdown,
		app.WithNotifier(notifier),
		app.WithObserver(collectors),
	)
	if err := engine.Recover(ctx); err != nil {
		return err
	}

	wsHandler := transport.NewWSHandler(engine, hub, cfg.Host.Secret)
	if cfg.Host.Secret == "" {
		log.Printf("host.secret is empty; host sockets are unauthenticated")
	}
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewMux(wsHandler, collectors.Handler()),
		ReadHeaderTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("starting trivia service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return store.Run(gctx, config.TTLDuration(cfg.Snapshot.Interval, 2*time.Second))
	})
	if publisher != nil {
		g.Go(func() error {
			return publisher.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		engine.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
