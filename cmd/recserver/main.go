// Command recserver serves recommendations over HTTP and enqueues rating
// events on Kafka for the rating worker.
//
// Queries are answered straight from Redis; POST /api/v1/events only
// validates and publishes. Health probes live at /health/live and
// /health/ready, Prometheus metrics on the metrics port.
//
// Usage:
//
//	go run ./cmd/recserver [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/api"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/events"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/metrics"
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
	slog.Info("starting recommendation server", "port", cfg.Server.Port, "class", cfg.Engine.ClassName)

	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	slog.Info("connected to redis", "addr", cfg.Redis.Addr)

	m := metrics.New(nil)
	eng, err := engine.New(rdb.Store(), cfg.Engine, m)
	if err != nil {
		slog.Error("invalid engine config", "error", err)
		os.Exit(1)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RatingEvents)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.RatingEvents)

	checker := health.NewChecker()
	checker.Register("redis", health.PingCheck(rdb, false))

	h := api.New(eng, events.NewPublisher(producer))
	router := api.NewRouter(h, api.RouterConfig{
		Health:         checker,
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,
		ServeMetrics:   !cfg.Metrics.Enabled,
	})

	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if stopMetrics != nil {
			if err := stopMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()
	slog.Info("recommendation server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("recommendation server stopped")
}
