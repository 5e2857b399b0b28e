package main

import (
	"context"
	"database/sql"
	"dispatch-map-service/internal/adapters/repositories"
	"dispatch-map-service/internal/config"
	"dispatch-map-service/internal/platform/db"
	"dispatch-map-service/internal/platform/obs"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	log := obs.NewLogger(config.Get(config.KeyLogLevel, "info"))

	databaseURL := config.Get(config.KeyDatabaseURL, "")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal().Msgf("%s is required", config.KeyDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(log.WithContext(context.Background()), 2*time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	seedPath := config.Get(config.KeySeedPath, "data/seeds/orders.json")
	if err := initAndSeed(ctx, conn, seedPath, log); err != nil {
		log.Error().Err(err).Msg("dbtool failed")
		_ = conn.Close()
		os.Exit(1)
	}
}

func initAndSeed(ctx context.Context, conn *sql.DB, seedPath string, log zerolog.Logger) error {
	log.Info().Msg("initializing database schema")
	if err := repositories.InitSchema(ctx, conn); err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}
	log.Info().Msg("schema ready")

	log.Info().Str("path", seedPath).Msg("seeding database")
	if err := repositories.SeedFromJSON(ctx, conn, seedPath); err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}
	log.Info().Msg("seeding complete")

	return nil
}
