package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebook/booking-engine/internal/abuse"
	"github.com/carebook/booking-engine/internal/agenda"
	"github.com/carebook/booking-engine/internal/api"
	"github.com/carebook/booking-engine/internal/booking"
	"github.com/carebook/booking-engine/internal/config"
	"github.com/carebook/booking-engine/internal/db"
	"github.com/carebook/booking-engine/internal/notify"
	"github.com/carebook/booking-engine/internal/ratelimit"
	redisclient "github.com/carebook/booking-engine/internal/redis"
)

const version = "1.2.0"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()
	logger.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("configuration loaded")

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

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	store := booking.NewPgStore(pgPool)
	agendaSource := agenda.NewPgAgenda(pgPool)
	taskStore := notify.NewPgTaskStore(pgPool)
	scheduler := notify.NewScheduler(taskStore, logger)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)

	svc := booking.NewService(store, agendaSource, scheduler, locker, logger, cfg.HoldTTL)

	var verifier abuse.Verifier = abuse.AllowAll{}
	if cfg.BotCheckEndpoint != "" {
		verifier = abuse.NewHTTPVerifier(cfg.BotCheckEndpoint, cfg.BotCheckSecret)
	} else {
		logger.Warn().Msg("no bot-check endpoint configured, challenge verification disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Service:         svc,
		Store:           store,
		Limiter:         ratelimit.NewRedisLimiter(rdb),
		Verifier:        verifier,
		Logger:          logger,
		PgPool:          pgPool,
		Redis:           rdb,
		PublicBaseURL:   cfg.PublicBaseURL,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		Env:             cfg.Env,
		Version:         version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
