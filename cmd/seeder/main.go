package main

import (
	"context"
	"os"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/db"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
)

func main() {
	cfg, err := config.Load()
	log := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("migrations applied")

	seedFiles := []string{
		"seed/recipients.sql",
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("failed to read seed file")
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("failed to execute seed file")
		}
		log.Info().Str("file", file).Msg("seeded")
	}

	log.Info().Msg("database seeding completed successfully")
}
