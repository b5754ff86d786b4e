package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"trivia-live-service/internal/config"
	"trivia-live-service/internal/content"
	"trivia-live-service/internal/infra/postgres"
)

// NewSeedCmd loads a YAML content file into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load competitions and questions from a YAML file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "content file (defaults to quiz.content)")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if file == "" {
		file = cfg.Quiz.Content
	}
	if file == "" {
		return fmt.Errorf("no content file: pass --file or set quiz.content")
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	f, err := content.Load(file)
	if err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.NewRepository(pool).Seed(ctx, f); err != nil {
		return err
	}
	log.Printf("seeded %d competitions from %s", len(f.Competitions), file)
	return nil
}
