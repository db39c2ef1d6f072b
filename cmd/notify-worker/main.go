package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebook/booking-engine/internal/config"
	"github.com/carebook/booking-engine/internal/db"
	"github.com/carebook/booking-engine/internal/notify"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "notify-worker").Logger()
	logger.Info().Msg("notify-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.NotifyInterval).Msg("running notify worker")

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

	sender := buildSender(cfg, logger)
	dispatcher := notify.NewDispatcher(notify.NewPgTaskStore(pgPool), sender, logger, cfg.NotifyBatch)

	// Run once at startup
	runOnce(rootCtx, dispatcher, logger)

	ticker := time.NewTicker(cfg.NotifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping notify worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, dispatcher, logger)
		}
	}
}

func buildSender(cfg config.Config, logger zerolog.Logger) notify.Sender {
	router := notify.NewChannelRouter(notify.NewConsoleSender(logger))

	if cfg.SMTPHost != "" {
		router.Register(notify.ChannelEmail,
			notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom))
	} else {
		logger.Warn().Msg("no SMTP host configured, email falls back to console")
	}

	if cfg.SMSWebhookURL != "" {
		router.Register(notify.ChannelSMS, notify.NewWebhookSMSSender(cfg.SMSWebhookURL))
	} else {
		logger.Warn().Msg("no SMS webhook configured, sms falls back to console")
	}

	return router
}

func runOnce(ctx context.Context, d *notify.Dispatcher, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := d.RunOnce(runCtx); err != nil {
		logger.Error().Err(err).Msg("dispatch run error")
	}
}
