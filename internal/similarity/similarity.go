// Package similarity computes user-to-user agreement from rating-set
// overlaps and maintains each user's similarity row.
//
// A similarity row is a sorted set other user -> [-1, 1]. It is rebuilt by
// upserting one score per co-rater; users who stopped being co-raters keep
// their stale entry until the row expires.
package similarity

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/keys"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
)

// jitterMax bounds the nudge applied to an exact ±1 score.
const jitterMax = 1e-13

// Engine scores pairs of users.
type Engine struct {
	store  store.Store
	keys   keys.Keys
	jitter bool
	rand   func() float64
}

// NewEngine returns an Engine. With jitter set, exact ±1 results move
// toward zero by less than 1e-13 so perfectly aligned users do not tie.
func NewEngine(s store.Store, k keys.Keys, jitter bool) *Engine {
	return &Engine{store: s, keys: k, jitter: jitter, rand: rand.Float64}
}

// Counts are the four rating-set intersections of a user pair.
type Counts struct {
	BothLiked     int
	BothDisliked  int
	LikedDisliked int
	DislikedLiked int
}

func (c Counts) agreements() int    { return c.BothLiked + c.BothDisliked }
func (c Counts) disagreements() int { return c.LikedDisliked + c.DislikedLiked }

// Coefficient returns (agreements - disagreements) / (agreements +
// disagreements). It fails with ErrDivisionUndefined when the pair shares
// no rated item.
func Coefficient(c Counts) (float64, error) {
	total := c.agreements() + c.disagreements()
	if total == 0 {
		return 0, apperrors.ErrDivisionUndefined
	}
	return float64(c.agreements()-c.disagreements()) / float64(total), nil
}

// Similarity reads the four intersections of a and b in one transaction
// and returns their coefficient. A pair with nothing in common yields
// ErrDivisionUndefined; store failures yield ErrStoreUnavailable.
func (e *Engine) Similarity(ctx context.Context, a, b string) (float64, error) {
	c, err := e.counts(ctx, a, b)
	if err != nil {
		return 0, err
	}
	score, err := Coefficient(c)
	if err != nil {
		return 0, fmt.Errorf("similarity %s/%s: %w", a, b, err)
	}
	if e.jitter {
		switch score {
		case 1:
			score -= e.rand() * jitterMax
		case -1:
			score += e.rand() * jitterMax
		}
	}
	return score, nil
}

func (e *Engine) counts(ctx context.Context, a, b string) (Counts, error) {
	aLiked, aDisliked := e.keys.UserLikedSet(a), e.keys.UserDislikedSet(a)
	bLiked, bDisliked := e.keys.UserLikedSet(b), e.keys.UserDislikedSet(b)

	tx := e.store.TxPipeline()
	bothLiked := tx.SInter(aLiked, bLiked)
	bothDisliked := tx.SInter(aDisliked, bDisliked)
	likedDisliked := tx.SInter(aLiked, bDisliked)
	dislikedLiked := tx.SInter(aDisliked, bLiked)
	if err := tx.Exec(ctx); err != nil {
		return Counts{}, apperrors.Store("similarity intersections", err)
	}
	return Counts{
		BothLiked:     len(bothLiked.Val()),
		BothDisliked:  len(bothDisliked.Val()),
		LikedDisliked: len(likedDisliked.Val()),
		DislikedLiked: len(dislikedLiked.Val()),
	}, nil
}
