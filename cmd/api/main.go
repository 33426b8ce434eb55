package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Anushkasethi/pharmacy-booking/cmd/mainconfig"
	"github.com/Anushkasethi/pharmacy-booking/internal/api/router"
	"github.com/Anushkasethi/pharmacy-booking/internal/availability"
	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
	"github.com/Anushkasethi/pharmacy-booking/internal/calendar"
	appconfig "github.com/Anushkasethi/pharmacy-booking/internal/config"
	"github.com/Anushkasethi/pharmacy-booking/internal/eventstore"
	"github.com/Anushkasethi/pharmacy-booking/internal/http/handlers"
	"github.com/Anushkasethi/pharmacy-booking/internal/ledger"
	"github.com/Anushkasethi/pharmacy-booking/internal/observability/metrics"
	"github.com/Anushkasethi/pharmacy-booking/pkg/logging"
)

func main() {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting pharmacy-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	registry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(registry)

	store, closeStore, err := buildEventStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize event store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	source, err := buildAvailabilitySource(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize availability source", "error", err)
		os.Exit(1)
	}

	bookingLedger, err := buildLedger(ctx, cfg, loc, logger)
	if err != nil {
		logger.Error("failed to initialize ledger", "error", err)
		os.Exit(1)
	}

	coordinator := booking.NewCoordinator(store, source, bookingLedger, loc, logger, bookingMetrics)
	slots := availability.NewResolver(cfg.AppointmentTypes, cfg.SlotGranularity, cfg.MaxCandidates, availability.BusinessHours{
		StartHour: cfg.BusinessDayStart,
		EndHour:   cfg.BusinessDayEnd,
		Location:  loc,
	})
	scheduling := handlers.NewSchedulingHandler(coordinator, slots, source, store, loc, logger, bookingMetrics)

	r := router.New(&router.Config{
		Logger:             logger,
		Scheduling:         scheduling,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: nil,
		RateLimitPerSecond: 5,
		RateLimitBurst:     10,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildEventStore returns the Postgres store when DATABASE_URL is set and the
// in-memory one otherwise. The in-memory store loses bookings on restart; it
// exists for local development only.
func buildEventStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (booking.EventStore, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory event store")
		return eventstore.NewMemory(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to postgres event store")
	return eventstore.NewPostgres(pool), pool.Close, nil
}

// buildAvailabilitySource wires Google Calendar freebusy when configured,
// optionally fronted by the Redis busy cache.
func buildAvailabilitySource(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (booking.AvailabilitySource, error) {
	var source booking.AvailabilitySource
	if cfg.CalendarID != "" && cfg.GoogleCredentialsFile != "" {
		svc, err := gcal.NewService(ctx,
			option.WithCredentialsFile(cfg.GoogleCredentialsFile),
			option.WithScopes(gcal.CalendarReadonlyScope),
		)
		if err != nil {
			return nil, fmt.Errorf("calendar service: %w", err)
		}
		source = calendar.NewGoogle(svc, cfg.CalendarID)
		logger.Info("using google calendar availability source", "calendar_id", cfg.CalendarID)
	} else {
		logger.Warn("calendar not configured; using empty static availability source")
		source = calendar.NewStatic()
	}

	if cfg.RedisAddr != "" {
		rdb := buildRedisClient(cfg)
		source = calendar.NewCache(source, rdb, cfg.BusyCacheTTL, logger)
		logger.Info("busy cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.BusyCacheTTL)
	}
	return source, nil
}

func buildRedisClient(cfg *appconfig.Config) redis.UniversalClient {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// buildLedger wires the Sheets ledger when configured, fronted by the SQS
// spool when a queue URL is set.
func buildLedger(ctx context.Context, cfg *appconfig.Config, loc *time.Location, logger *logging.Logger) (booking.Ledger, error) {
	var primary booking.Ledger
	if cfg.SpreadsheetID != "" && cfg.GoogleCredentialsFile != "" {
		svc, err := sheets.NewService(ctx,
			option.WithCredentialsFile(cfg.GoogleCredentialsFile),
			option.WithScopes(sheets.SpreadsheetsScope),
		)
		if err != nil {
			return nil, fmt.Errorf("sheets service: %w", err)
		}
		primary = ledger.NewSheets(svc, cfg.SpreadsheetID, cfg.LedgerSheetRange, loc)
		logger.Info("using google sheets ledger", "spreadsheet_id", cfg.SpreadsheetID)
	} else {
		logger.Warn("spreadsheet not configured; using in-memory ledger")
		primary = ledger.NewMemory()
	}

	var spool ledger.Spool
	if cfg.LedgerSpoolQueueURL != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		spool = ledger.NewSQSSpool(sqs.NewFromConfig(awsCfg), cfg.LedgerSpoolQueueURL)
		logger.Info("ledger spool enabled", "queue", cfg.LedgerSpoolQueueURL)
	}

	return ledger.NewRecorder(primary, spool, logger), nil
}
