// Package engine is the collaborative-filtering facade: rating ingestion,
// item lifecycle, recommendation retrieval and statistic queries over one
// store.
//
// Ingestion methods return ErrStoreUnavailable-wrapped errors and may be
// retried. Recommend never fails.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/keys"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/prediction"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/recommend"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/scoring"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/tracing"
)

// Engine wires the scorers together over one store.
type Engine struct {
	store store.Store
	keys  keys.Keys
	cfg   config.EngineConfig

	similarity *similarity.Engine
	updater    *similarity.Updater
	predictor  *prediction.Engine
	builder    *recommend.Builder
	popularity *scoring.Popularity
	active     *scoring.Active
	retrieval  *retrieval.Policy

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New validates cfg and builds an Engine. m may be nil.
func New(s store.Store, cfg config.EngineConfig, m *metrics.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	k := keys.New(cfg.ClassName)
	sim := similarity.NewEngine(s, k, cfg.SimilarityJitter)
	pred := prediction.NewEngine(s, k, m)
	return &Engine{
		store:      s,
		keys:       k,
		cfg:        cfg,
		similarity: sim,
		updater: similarity.NewUpdater(s, k, sim, similarity.UpdaterConfig{
			TTL:         cfg.SimilarityTTL,
			Concurrency: cfg.Concurrency,
		}, m),
		predictor: pred,
		builder: recommend.NewBuilder(s, k, pred, recommend.Config{
			NearestNeighbors:   cfg.NearestNeighbors,
			FactorLeastSimilar: cfg.FactorLeastSimilar,
			Cap:                cfg.NumOfRecsStore,
			Concurrency:        cfg.Concurrency,
		}, m),
		popularity: scoring.NewPopularity(s, k, m),
		active:     scoring.NewActive(s, k),
		retrieval:  retrieval.NewPolicy(s, k, cfg.TempSetTTL, m),
		metrics:    m,
		logger:     slog.Default().With("component", "engine"),
	}, nil
}

// Keys exposes the key namespace, for tooling that wipes or inspects it.
func (e *Engine) Keys() keys.Keys { return e.keys }

// RecordLike stores that user liked item.
func (e *Engine) RecordLike(ctx context.Context, user, item string, opts ...RatingOption) error {
	return e.changeRating(ctx, user, item, true, false, opts)
}

// RecordDislike stores that user disliked item.
func (e *Engine) RecordDislike(ctx context.Context, user, item string, opts ...RatingOption) error {
	return e.changeRating(ctx, user, item, false, false, opts)
}

// UndoLike removes a like. Undo never triggers a recommendation update.
func (e *Engine) UndoLike(ctx context.Context, user, item string) error {
	return e.changeRating(ctx, user, item, true, true, nil)
}

// UndoDislike removes a dislike.
func (e *Engine) UndoDislike(ctx context.Context, user, item string) error {
	return e.changeRating(ctx, user, item, false, true, nil)
}

// ratingScript clears the pass, updates both sides of the rating index and,
// when the item-side membership actually changed, moves the item's counter.
//
// KEYS: passed, user set, item set, counter
// ARGV: item, user, delta (1 to add, -1 to remove)
var ratingScript = store.NewScript("rating", `
redis.call('SREM', KEYS[1], ARGV[1])
local changed
if tonumber(ARGV[3]) > 0 then
  redis.call('SADD', KEYS[2], ARGV[1])
  changed = redis.call('SADD', KEYS[3], ARGV[2])
else
  redis.call('SREM', KEYS[2], ARGV[1])
  changed = redis.call('SREM', KEYS[3], ARGV[2])
end
if changed > 0 then
  redis.call('ZINCRBY', KEYS[4], ARGV[3], ARGV[1])
end
return {changed}
`)

// changeRating mutates both sides of the rating index, the passed set and
// the like/dislike counter in one atomic step, then runs the scorers.
func (e *Engine) changeRating(ctx context.Context, user, item string, liked, remove bool, opts []RatingOption) error {
	o := e.ratingOptions(opts)

	userKey, itemKey, counter := e.keys.UserDislikedSet(user), e.keys.ItemDislikedBySet(item), e.keys.MostDisliked()
	if liked {
		userKey, itemKey, counter = e.keys.UserLikedSet(user), e.keys.ItemLikedBySet(item), e.keys.MostLiked()
	}
	delta := 1
	if remove {
		delta = -1
	}

	if _, err := e.store.Eval(ctx, ratingScript,
		[]string{e.keys.UserPassedSet(user), userKey, itemKey, counter},
		item, user, delta,
	); err != nil {
		return apperrors.Store("rating update", err)
	}

	if err := e.popularity.Update(ctx, item); err != nil {
		return err
	}
	if remove {
		return nil
	}

	if o.updateRecs {
		if err := e.UpdateSequence(ctx, user); err != nil {
			return err
		}
	}
	if o.hotness != nil {
		if err := e.active.Refresh(ctx, item, o.hotness.likes, o.hotness.dislikes, o.hotness.date); err != nil {
			return err
		}
	}
	return nil
}

// UpdateSequence recomputes the user's similarity row and then rebuilds
// their recommendations from it.
func (e *Engine) UpdateSequence(ctx context.Context, user string) error {
	ctx, span := tracing.StartSpan(ctx, "update_sequence", logger.RequestID(ctx))
	span.SetAttr("user", user)
	err := e.updateSequence(ctx, user)
	span.End(err)
	span.Log(e.logger)
	return err
}

func (e *Engine) updateSequence(ctx context.Context, user string) error {
	simCtx, simSpan := tracing.StartChildSpan(ctx, "similarity")
	compared, err := e.updater.Update(simCtx, user)
	simSpan.SetAttr("compared", compared)
	simSpan.End(err)
	if err != nil {
		return fmt.Errorf("similarity update for %s: %w", user, err)
	}

	recCtx, recSpan := tracing.StartChildSpan(ctx, "recommendations")
	scored, err := e.builder.Build(recCtx, user)
	recSpan.SetAttr("candidates", scored)
	recSpan.End(err)
	if err != nil {
		return fmt.Errorf("recommendation update for %s: %w", user, err)
	}
	return nil
}

// RecordPass marks item as skipped by user and rebuilds their
// recommendations without it.
func (e *Engine) RecordPass(ctx context.Context, user, item string) error {
	if _, err := e.store.SAdd(ctx, e.keys.UserPassedSet(user), item); err != nil {
		return apperrors.Store("record pass", err)
	}
	if _, err := e.builder.Build(ctx, user); err != nil {
		return fmt.Errorf("recommendation update for %s: %w", user, err)
	}
	return nil
}

// ActivateItem makes item eligible for hotness-ranked discovery.
func (e *Engine) ActivateItem(ctx context.Context, item string, activated time.Time) error {
	return e.active.Activate(ctx, item, activated)
}

// DeactivateItem removes item from discovery and discards its ratings.
func (e *Engine) DeactivateItem(ctx context.Context, item string) error {
	return e.active.Deactivate(ctx, item)
}

// FlagForViewDebt marks users for one corrective retrieval pass each.
func (e *Engine) FlagForViewDebt(ctx context.Context, users []string) error {
	if len(users) == 0 {
		return nil
	}
	if _, err := e.store.SAdd(ctx, e.keys.ViewDebtSet(), users...); err != nil {
		return apperrors.Store("flag view debt", err)
	}
	return nil
}

// Recommend returns up to n items for user, possibly none.
func (e *Engine) Recommend(ctx context.Context, user string, n int) []string {
	return e.retrieval.Recommend(ctx, user, n)
}

// PredictedScore returns the predicted score of item for user.
func (e *Engine) PredictedScore(ctx context.Context, user, item string) (float64, error) {
	return e.predictor.Predict(ctx, user, item)
}

// Similarity returns the stored-set similarity of two users, 0 when they
// share no rated item.
func (e *Engine) Similarity(ctx context.Context, a, b string) (float64, error) {
	s, err := e.similarity.Similarity(ctx, a, b)
	if apperrors.IsFormula(err) {
		return 0, nil
	}
	return s, err
}
