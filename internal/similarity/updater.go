package similarity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/keys"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/metrics"
)

// UpdaterConfig tunes row recomputation.
type UpdaterConfig struct {
	// TTL is set on the row after every recompute; zero leaves it unset.
	TTL time.Duration
	// Concurrency bounds the comparisons in flight.
	Concurrency int
}

// Updater recomputes a user's similarity row against every co-rater.
type Updater struct {
	store   store.Store
	keys    keys.Keys
	engine  *Engine
	cfg     UpdaterConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewUpdater creates an Updater. m may be nil.
func NewUpdater(s store.Store, k keys.Keys, e *Engine, cfg UpdaterConfig, m *metrics.Metrics) *Updater {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Updater{
		store:   s,
		keys:    k,
		engine:  e,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "similarity-updater"),
	}
}

// CoRaters returns every user who liked or disliked an item that user
// rated, including user itself.
func (u *Updater) CoRaters(ctx context.Context, user string) ([]string, error) {
	rated, err := u.store.SUnion(ctx, u.keys.UserLikedSet(user), u.keys.UserDislikedSet(user))
	if err != nil {
		return nil, apperrors.Store("rated items", err)
	}
	if len(rated) == 0 {
		return nil, nil
	}
	raterKeys := make([]string, 0, 2*len(rated))
	for _, item := range rated {
		raterKeys = append(raterKeys, u.keys.ItemLikedBySet(item), u.keys.ItemDislikedBySet(item))
	}
	users, err := u.store.SUnion(ctx, raterKeys...)
	if err != nil {
		return nil, apperrors.Store("co-raters", err)
	}
	return users, nil
}

// Update upserts similarity(user, other) for every co-rater and returns how
// many entries were written. All scores land in one transaction
// together with the row expiry.
func (u *Updater) Update(ctx context.Context, user string) (int, error) {
	start := time.Now()
	defer u.metrics.ObserveRecompute("similarity", start)

	candidates, err := u.CoRaters(ctx, user)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 || (len(candidates) == 1 && candidates[0] == user) {
		return 0, nil
	}

	others := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != user {
			others = append(others, c)
		}
	}
	row := make([]store.Z, len(others))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.Concurrency)
	for i, other := range others {
		g.Go(func() error {
			score, err := u.engine.Similarity(gctx, user, other)
			if errors.Is(err, apperrors.ErrDivisionUndefined) {
				u.logger.Debug("no co-rated items, using neutral similarity", "user", user, "other", other)
				u.metrics.Fallback("similarity")
				score, err = 0, nil
			}
			if err != nil {
				return err
			}
			row[i] = store.Z{Member: other, Score: score}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	key := u.keys.SimilarityZSet(user)
	tx := u.store.TxPipeline()
	tx.ZAdd(key, row...)
	if u.cfg.TTL > 0 {
		tx.Expire(key, u.cfg.TTL)
	}
	if err := tx.Exec(ctx); err != nil {
		return 0, apperrors.Store("write similarity row", err)
	}
	u.logger.Debug("similarity row updated", "user", user, "entries", len(row))
	return len(row), nil
}
