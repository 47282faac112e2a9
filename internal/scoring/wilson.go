// Package scoring keeps the two global item rankings: the popularity
// scoreboard (Wilson lower bound of the like ratio) and the active-items
// index ranked by time-decayed hotness.
package scoring

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/keys"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/metrics"
)

// z is the normal quantile for 95% confidence.
const z = 1.96

// Wilson returns the lower bound of the Wilson score interval for liked
// successes out of liked+disliked trials. It fails with
// ErrDivisionUndefined when there are no trials and ErrNumericDomain when
// the result is not finite.
func Wilson(liked, disliked int64) (float64, error) {
	n := float64(liked + disliked)
	if n <= 0 {
		return 0, apperrors.ErrDivisionUndefined
	}
	p := float64(liked) / n
	radicand := (p*(1-p) + z*z/(4*n)) / n
	if radicand < 0 {
		radicand = 0
	}
	score := (p + z*z/(2*n) - z*math.Sqrt(radicand)) / (1 + z*z/n)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, apperrors.ErrNumericDomain
	}
	// rounding can leave p == 0 a hair below zero
	return math.Min(math.Max(score, 0), 1), nil
}

// Popularity maintains the scoreboard.
type Popularity struct {
	store   store.Store
	keys    keys.Keys
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPopularity creates a Popularity scorer. m may be nil.
func NewPopularity(s store.Store, k keys.Keys, m *metrics.Metrics) *Popularity {
	return &Popularity{
		store:   s,
		keys:    k,
		metrics: m,
		logger:  slog.Default().With("component", "popularity"),
	}
}

// Update recomputes the item's Wilson score from its rater counts and
// upserts it. An item nobody rated leaves the scoreboard unchanged.
func (p *Popularity) Update(ctx context.Context, item string) error {
	start := time.Now()
	defer p.metrics.ObserveRecompute("popularity", start)

	tx := p.store.TxPipeline()
	liked := tx.SCard(p.keys.ItemLikedBySet(item))
	disliked := tx.SCard(p.keys.ItemDislikedBySet(item))
	if err := tx.Exec(ctx); err != nil {
		return apperrors.Store("rater counts", err)
	}

	score, err := Wilson(liked.Val(), disliked.Val())
	switch {
	case errors.Is(err, apperrors.ErrDivisionUndefined):
		return nil
	case err != nil:
		p.logger.Debug("wilson score failed, using 0", "item", item, "error", err)
		p.metrics.Fallback("wilson")
		score = 0
	}
	if _, err := p.store.ZAdd(ctx, p.keys.ScoreboardZSet(), store.Z{Member: item, Score: score}); err != nil {
		return apperrors.Store("scoreboard upsert", err)
	}
	return nil
}
