/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the booking engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Wire fee resolver, notifier, metrics, and lifecycle service
  4. Configure HTTP router
  5. Start API and metrics servers with graceful shutdown

CONFIGURATION:
  Flags override environment variables; .env fills the environment for
  local development (joho/godotenv).

  PORT              HTTP server port (default: 8080)
  METRICS_PORT      Prometheus /metrics port (default: 9090, 0 disables)
  DB_PATH           SQLite database path (default: booking.db)
                    Use ":memory:" for an in-memory database
  LOG_LEVEL         zerolog level (default: info)
  SENDGRID_API_KEY  Enables real mail delivery; unset logs instead
  MAIL_FROM         Sender address for outbound mail
  APPROVER_EMAIL    Where new-booking notifications go

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/booking.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - booking/service.go: Lifecycle state machine
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/warp/booking-engine/api"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/fees"
	"github.com/warp/booking-engine/metrics"
	"github.com/warp/booking-engine/notify"
	"github.com/warp/booking-engine/store/sqlite"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	metricsPort := flag.Int("metrics-port", envInt("METRICS_PORT", 9090), "Prometheus metrics port (0 disables)")
	dbPath := flag.String("db", envStr("DB_PATH", "booking.db"), "SQLite database path")
	logLevel := flag.String("log-level", envStr("LOG_LEVEL", "info"), "zerolog level")
	flag.Parse()

	logger := newLogger(*logLevel)

	// Store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Str("db", *dbPath).Msg("failed to initialize database")
	}
	defer store.Close()

	// Metrics
	m := metrics.New("booking_engine", prometheus.DefaultRegisterer)

	// Fees
	defaultCfg := fees.DefaultConfig()
	resolver := &fees.Resolver{Store: store, Default: &defaultCfg}

	// Notifications
	var sender notify.Sender = notify.LogSender{Logger: logger}
	if key := os.Getenv("SENDGRID_API_KEY"); key != "" {
		sender = notify.NewSendGridSender(key, "Holiday House", envStr("MAIL_FROM", "bookings@example.com"))
	}
	dispatcher := notify.NewDispatcher(sender, logger, os.Getenv("APPROVER_EMAIL"))
	dispatcher.Metrics = m

	// Lifecycle service
	svc := booking.NewService(store, resolver, dispatcher, logger)
	svc.Metrics = m

	// HTTP
	handler := api.NewHandler(svc, resolver, store, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	var metricsServer *http.Server
	if *metricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", *metricsPort), Handler: mux}
		go func() {
			logger.Info().Int("port", *metricsPort).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("forced shutdown")
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}

	logger.Info().Msg("server stopped")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)
	if os.Getenv("LOG_PRETTY") != "" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
