// Package router wires the HTTP surface: health, metrics, slot search and
// the booking lifecycle endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Anushkasethi/pharmacy-booking/internal/http/handlers"
	httpmiddleware "github.com/Anushkasethi/pharmacy-booking/internal/http/middleware"
	"github.com/Anushkasethi/pharmacy-booking/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Scheduling         *handlers.SchedulingHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// RateLimitPerSecond, when > 0, throttles booking submissions per IP.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.Scheduling.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Post("/slots/search", cfg.Scheduling.FindSlots)

	r.Route("/bookings", func(b chi.Router) {
		if cfg.RateLimitPerSecond > 0 {
			b.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
		}
		b.Post("/", cfg.Scheduling.CreateBooking)
		b.Get("/{reference}", cfg.Scheduling.GetBooking)
		b.Post("/reschedule", cfg.Scheduling.RescheduleBooking)
		b.Post("/cancel", cfg.Scheduling.CancelBooking)
	})

	return r
}
