// Package recommend rebuilds a user's recommendation set from the ratings
// of their nearest (and optionally farthest) neighbours.
package recommend

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/keys"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/metrics"
)

// Predictor scores one (user, item) pair.
type Predictor interface {
	Predict(ctx context.Context, user, item string) (float64, error)
}

// Config tunes candidate selection and the stored set size.
type Config struct {
	NearestNeighbors   int
	FactorLeastSimilar bool
	// Cap is the number of recommendations kept; the lowest scored are
	// trimmed.
	Cap         int
	Concurrency int
}

// Builder writes recommendation sets.
type Builder struct {
	store     store.Store
	keys      keys.Keys
	predictor Predictor
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewBuilder creates a Builder. m may be nil.
func NewBuilder(s store.Store, k keys.Keys, p Predictor, cfg Config, m *metrics.Metrics) *Builder {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Builder{
		store:     s,
		keys:      k,
		predictor: p,
		cfg:       cfg,
		metrics:   m,
		logger:    slog.Default().With("component", "recommendation-builder"),
	}
}

// Build replaces the user's recommendation set with predictions for every
// item liked by the top-K neighbours (plus disliked by the bottom-K when
// enabled) that the user has not liked, disliked or passed. It returns the
// number of candidates scored. With no candidates the existing set is left
// untouched.
func (b *Builder) Build(ctx context.Context, user string) (int, error) {
	start := time.Now()
	defer b.metrics.ObserveRecompute("recommendations", start)

	poolKeys, err := b.neighbourSets(ctx, user)
	if err != nil {
		return 0, err
	}
	if len(poolKeys) == 0 {
		return 0, nil
	}

	temp := b.keys.TempAllLikedSet(user)
	defer func() {
		// runs even when ctx was cancelled mid-build
		if _, err := b.store.Del(context.WithoutCancel(ctx), temp); err != nil {
			b.logger.Warn("failed to release candidate pool", "user", user, "error", err)
		}
	}()
	pooled, err := b.store.SUnionStore(ctx, temp, poolKeys...)
	if err != nil {
		return 0, apperrors.Store("candidate pool", err)
	}
	if pooled == 0 {
		return 0, nil
	}

	candidates, err := b.store.SDiff(ctx, temp,
		b.keys.UserLikedSet(user),
		b.keys.UserDislikedSet(user),
		b.keys.UserPassedSet(user),
	)
	if err != nil {
		return 0, apperrors.Store("unrated candidates", err)
	}

	scored := make([]store.Z, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i, item := range candidates {
		g.Go(func() error {
			score, err := b.predictor.Predict(gctx, user, item)
			if err != nil {
				return err
			}
			scored[i] = store.Z{Member: item, Score: score}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := b.replace(ctx, user, scored); err != nil {
		return 0, err
	}
	b.logger.Debug("recommendations rebuilt", "user", user, "candidates", len(scored))
	return len(scored), nil
}

func (b *Builder) neighbourSets(ctx context.Context, user string) ([]string, error) {
	row := b.keys.SimilarityZSet(user)
	k := int64(b.cfg.NearestNeighbors)

	tx := b.store.TxPipeline()
	nearest := tx.ZRevRange(row, 0, k-1)
	var farthest *store.Reply[[]string]
	if b.cfg.FactorLeastSimilar {
		farthest = tx.ZRange(row, 0, k-1)
	}
	if err := tx.Exec(ctx); err != nil {
		return nil, apperrors.Store("neighbours", err)
	}

	var sets []string
	for _, n := range nearest.Val() {
		sets = append(sets, b.keys.UserLikedSet(n))
	}
	if farthest != nil {
		for _, n := range farthest.Val() {
			sets = append(sets, b.keys.UserDislikedSet(n))
		}
	}
	return sets, nil
}

// replace swaps in the new set and trims it to the cap in one transaction.
func (b *Builder) replace(ctx context.Context, user string, scored []store.Z) error {
	key := b.keys.RecommendedZSet(user)
	tx := b.store.TxPipeline()
	tx.Del(key)
	if len(scored) > 0 {
		tx.ZAdd(key, scored...)
		tx.ZRemRangeByRank(key, 0, -int64(b.cfg.Cap)-1)
	}
	if err := tx.Exec(ctx); err != nil {
		return apperrors.Store("write recommendations", err)
	}
	return nil
}
