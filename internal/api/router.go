package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carebook/booking-engine/internal/abuse"
	"github.com/carebook/booking-engine/internal/booking"
	"github.com/carebook/booking-engine/internal/ratelimit"
)

type RouterConfig struct {
	Service  *booking.Service
	Store    booking.Store
	Limiter  ratelimit.Limiter
	Verifier abuse.Verifier
	Logger   zerolog.Logger

	PgPool *pgxpool.Pool
	Redis  *redis.Client

	PublicBaseURL   string
	RateLimitMax    int
	RateLimitWindow time.Duration
	Env             string
	Version         string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := &handlers{
		svc:           cfg.Service,
		store:         cfg.Store,
		verifier:      cfg.Verifier,
		publicBaseURL: cfg.PublicBaseURL,
	}

	r.Route("/api/v1", func(r chi.Router) {
		// The self-service endpoints that touch slot state share one
		// per-client budget; listing and calendar reads stay unmetered.
		limited := RateLimitMiddleware(cfg.Limiter, cfg.RateLimitMax, cfg.RateLimitWindow, cfg.Logger)

		r.With(limited).Post("/slots/{slotID}/hold", h.holdSlot)
		r.With(limited).Post("/bookings", h.createBooking)
		r.With(limited).Post("/appointments/{id}/cancel", h.cancelAppointment)

		r.Get("/practitioners/{id}/slots", h.listSlots)
		r.Get("/appointments/{id}/calendar.ics", h.calendarFile)
	})

	return r
}
