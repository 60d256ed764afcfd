// One-shot deadline sweep, for cron or manual operations use. The API server
// runs its own periodic sweeper; this binary exists so an operator can force
// a pass without touching the server.
package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"

	"skinmarket/internal/db"
	"skinmarket/internal/escrow"
	"skinmarket/internal/observability"
	"skinmarket/internal/steam"
	"skinmarket/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()
	log := observability.NewLogger("sweep")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	store := postgres.New(pool)
	verifier := steam.NewVerifier(steam.NewClient(), store, log)
	svc := escrow.NewService(store, verifier, nil, log)
	sweeper := escrow.NewSweeper(svc, escrow.DefaultSweepInterval, log)

	expired, err := sweeper.RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sweep failed")
		os.Exit(1)
	}
	log.Info().Int("expired", expired).Msg("sweep complete")
}
