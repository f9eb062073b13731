package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"clinicrx/m/internal/api"
	"clinicrx/m/internal/config"
	"clinicrx/m/internal/database"
	"clinicrx/m/internal/logger"
	"clinicrx/m/internal/migrations"
	"clinicrx/m/internal/seed"
	"clinicrx/m/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	db := database.Connect(cfg.DBDriver, cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)

	stores := store.New(db, store.WithLogger(log.With().Str("component", "store").Logger()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := seed.NewLoader(stores, log).LoadFile(ctx, cfg.SeedCSV); err != nil {
		log.Error().Err(err).Str("path", cfg.SeedCSV).Msg("catalog seed failed")
	}

	handler := api.New(stores, cfg.Secret, log)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().Str("port", cfg.HTTPPort).Str("driver", cfg.DBDriver).Msg("clinic server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
