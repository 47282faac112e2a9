// Package prediction estimates how much a user would like an item from the
// similarity of the item's raters to that user.
package prediction

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/keys"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/metrics"
)

// Engine scores (user, item) pairs.
type Engine struct {
	store   store.Store
	keys    keys.Keys
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine returns an Engine. m may be nil.
func NewEngine(s store.Store, k keys.Keys, m *metrics.Metrics) *Engine {
	return &Engine{
		store:   s,
		keys:    k,
		metrics: m,
		logger:  slog.Default().With("component", "prediction"),
	}
}

// Score divides the net similarity of likers over dislikers by the total
// rater count. It fails with ErrDivisionUndefined for an unrated item and
// ErrNumericDomain for a non-finite result.
func Score(likedSum, dislikedSum float64, likedCount, dislikedCount int) (float64, error) {
	n := likedCount + dislikedCount
	if n == 0 {
		return 0, apperrors.ErrDivisionUndefined
	}
	p := (likedSum - dislikedSum) / float64(n)
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, apperrors.ErrNumericDomain
	}
	return p, nil
}

// Predict returns the predicted score of item for user. Formula failures
// resolve to 0.0; only store failures are returned.
func (e *Engine) Predict(ctx context.Context, user, item string) (float64, error) {
	tx := e.store.TxPipeline()
	likedBy := tx.SMembers(e.keys.ItemLikedBySet(item))
	dislikedBy := tx.SMembers(e.keys.ItemDislikedBySet(item))
	if err := tx.Exec(ctx); err != nil {
		return 0, apperrors.Store("item raters", err)
	}
	likers, dislikers := likedBy.Val(), dislikedBy.Val()
	if len(likers)+len(dislikers) == 0 {
		return 0, nil
	}

	likedSum, dislikedSum, err := e.similaritySums(ctx, user, likers, dislikers)
	if err != nil {
		return 0, err
	}
	p, err := Score(likedSum, dislikedSum, len(likers), len(dislikers))
	if err != nil {
		e.logger.Debug("prediction undefined, using neutral score", "user", user, "item", item, "error", err)
		e.metrics.Fallback("prediction")
		return 0, nil
	}
	return p, nil
}

// similaritySums adds up the similarity-row scores of each rater group.
// Raters missing from the row contribute nothing.
func (e *Engine) similaritySums(ctx context.Context, user string, likers, dislikers []string) (float64, float64, error) {
	row := e.keys.SimilarityZSet(user)
	tx := e.store.TxPipeline()
	queue := func(raters []string) []*store.Reply[float64] {
		replies := make([]*store.Reply[float64], len(raters))
		for i, r := range raters {
			replies[i] = tx.ZScore(row, r)
		}
		return replies
	}
	liked, disliked := queue(likers), queue(dislikers)
	if err := tx.Exec(ctx); err != nil {
		return 0, 0, apperrors.Store("similarity scores", err)
	}
	sum := func(replies []*store.Reply[float64]) (float64, error) {
		var total float64
		for _, r := range replies {
			v, err := r.Result()
			if errors.Is(err, store.ErrNil) {
				continue
			}
			if err != nil {
				return 0, apperrors.Store("similarity score", err)
			}
			total += v
		}
		return total, nil
	}
	likedSum, err := sum(liked)
	if err != nil {
		return 0, 0, err
	}
	dislikedSum, err := sum(disliked)
	if err != nil {
		return 0, 0, err
	}
	return likedSum, dislikedSum, nil
}
