// Command ratingworker consumes rating events from Kafka and applies them to
// the Redis-backed engine, recording each applied event in the PostgreSQL
// event log when it is enabled.
//
// A failed event is retried with backoff and then redelivered; the worker
// does not move past it until the store accepts it.
//
// Usage:
//
//	go run ./cmd/ratingworker [-config configs/development.yaml]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/eventlog"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/events"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting rating worker", "class", cfg.Engine.ClassName)

	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	m := metrics.New(nil)
	eng, err := engine.New(rdb.Store(), cfg.Engine, m)
	if err != nil {
		slog.Error("invalid engine config", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("redis", health.PingCheck(rdb, false))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		appender events.Appender
		evlog    *eventlog.Log
	)
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		evlog = eventlog.New(db)
		if err := evlog.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare event log", "error", err)
			os.Exit(1)
		}
		appender = evlog
		checker.Register("postgres", health.PingCheck(db, true))
		slog.Info("event log enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	handler := events.NewHandler(eng, appender, cfg.Worker, m)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RatingEvents, handler.MessageHandler())
	defer consumer.Close()

	// The worker has no API; probes, metrics and the event log listing share
	// the metrics port.
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if evlog != nil {
		mux.HandleFunc("GET /events/recent", recentHandler(evlog))
	}
	probes := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}
	go func() {
		if err := probes.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("probe server error", "error", err)
		}
	}()

	slog.Info("rating worker ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.RatingEvents,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := probes.Shutdown(shutdownCtx); err != nil {
		slog.Error("probe server shutdown error", "error", err)
	}
	slog.Info("rating worker stopped")
}

// recentHandler lists the newest logged events, ?limit=N (default 50).
func recentHandler(evlog *eventlog.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = min(v, 1000)
		}
		records, err := evlog.Recent(r.Context(), limit)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			slog.Error("reading recent events", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": "event log unavailable"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"events": records})
	}
}
