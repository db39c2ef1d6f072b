package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebook/booking-engine/internal/agenda"
	"github.com/carebook/booking-engine/internal/booking"
	"github.com/carebook/booking-engine/internal/config"
	"github.com/carebook/booking-engine/internal/db"
	"github.com/carebook/booking-engine/internal/schedule"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "slot-generator").Logger()
	logger.Info().Msg("slot-generator starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.GeneratorInterval).
		Int("horizon_days", cfg.HorizonDays).
		Msg("running slot generator")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	store := booking.NewPgStore(pgPool)
	scheduleSource := schedule.NewPgSource(pgPool)
	agendaSource := agenda.NewPgAgenda(pgPool)

	gen := booking.NewGenerator(store, scheduleSource, scheduleSource, agendaSource,
		logger, cfg.Horizon(), cfg.DefaultDuration)

	// Run once at startup
	runOnce(rootCtx, gen, logger)

	ticker := time.NewTicker(cfg.GeneratorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping slot generator")
			return
		case <-ticker.C:
			runOnce(rootCtx, gen, logger)
		}
	}
}

func runOnce(ctx context.Context, gen *booking.Generator, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	if err := gen.Run(runCtx); err != nil {
		logger.Error().Err(err).Msg("generation run error")
		return
	}
	logger.Info().Dur("elapsed", time.Since(start)).Msg("generation run complete")
}
