package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcall12/xctimer/internal/config"
	"github.com/mcall12/xctimer/internal/gateway"
	"github.com/mcall12/xctimer/internal/race"
	"github.com/mcall12/xctimer/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(getEnv("XCTIMER_CONFIG", "xctimer.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	opts := badger.DefaultOptions(cfg.DataDir).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("failed to open session database")
	}

	app := race.NewApp(race.Config{
		Store:         session.NewBadgerStore(db),
		TickInterval:  cfg.TickInterval(),
		Debounce:      cfg.Debounce(),
		AutosaveQuiet: cfg.AutosaveQuiet(),
		Staleness:     cfg.Staleness(),
		SizeCap:       cfg.SnapshotCapBytes(),
	})

	// Pick up where the last run left off, if the saved session is usable.
	app.Restore()

	svc := gateway.NewService(app)
	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: svc.Router(cfg.AllowedOrigins),
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("xctimer listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown failed")
	}

	// Final flush so a restart resumes from the latest state.
	app.Flush()
	app.Close()

	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close session database")
	}
	log.Info().Msg("xctimer stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
