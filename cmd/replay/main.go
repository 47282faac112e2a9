// Command replay rebuilds the engine's Redis state from the PostgreSQL event
// log.
//
// It deletes every key under the configured class name, re-applies the
// logged events in order without per-event recomputation, then runs the
// similarity and recommendation update once for every user that rated
// something. Stop the rating worker first.
//
// Usage:
//
//	go run ./cmd/replay [-config configs/development.yaml] [-flush=false]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/eventlog"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/events"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flush := flag.Bool("flush", true, "delete the class's keys before replaying")
	parallel := flag.Int("parallel", 4, "users recomputed concurrently after the replay")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	eng, err := engine.New(rdb.Store(), cfg.Engine, nil)
	if err != nil {
		slog.Error("invalid engine config", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	if *flush {
		pattern := cfg.Engine.ClassName + ":*"
		deleted, err := rdb.FlushByPattern(ctx, pattern)
		if err != nil {
			slog.Error("failed to flush keys", "pattern", pattern, "error", err)
			os.Exit(1)
		}
		slog.Info("flushed keys", "pattern", pattern, "deleted", deleted)
	}

	raters := make(map[string]struct{})
	n, err := eventlog.New(db).Replay(ctx, func(rec eventlog.Record) error {
		ev := rec.Event
		switch ev.Type {
		case events.Like, events.Dislike, events.Unlike, events.Undislike:
			raters[string(ev.UserID)] = struct{}{}
		}
		return events.Apply(ctx, eng, ev, engine.WithUpdateRecs(false))
	})
	if err != nil {
		slog.Error("replay failed", "replayed", n, "error", err)
		os.Exit(1)
	}
	slog.Info("events replayed", "events", n, "users", len(raters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*parallel, 1))
	for user := range raters {
		g.Go(func() error {
			return eng.UpdateSequence(gctx, user)
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("recompute failed", "error", err)
		os.Exit(1)
	}
	slog.Info("replay complete", "events", n, "users", len(raters), "duration", time.Since(start).Round(time.Millisecond))
}
