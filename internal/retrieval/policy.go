// Package retrieval answers "give me N items for this user" by blending the
// user's recommendation set, the active-items index and the view-debt
// correction.
//
// States:
//
//	view debt      user was flagged; the flag is consumed and the hottest
//	               half of the filtered active ranking is skipped
//	intersection   recommended items that are still active, by prediction
//	active         filtered active ranking, when the intersection is empty
//	               or the user has no recommendations
//	recommended    recommendation set alone, when nothing is active
//	empty          neither set has members
//
// The filtered active ranking excludes items the user liked, disliked or
// passed.
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/keys"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/metrics"
)

// Branch names the state that produced a result.
type Branch string

const (
	BranchViewDebt     Branch = "view_debt"
	BranchIntersection Branch = "intersection"
	BranchActive       Branch = "active"
	BranchRecommended  Branch = "recommended"
	BranchEmpty        Branch = "empty"
	BranchFailed       Branch = "failed"
)

// minActiveScore separates active items (hotness >= 1) from the items the
// weight-0 exclusion sets pulled down to 0.
const minActiveScore = "1"

// Policy runs the retrieval state machine.
type Policy struct {
	store   store.Store
	keys    keys.Keys
	tempTTL time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPolicy creates a Policy. Scratch sets expire after tempTTL. m may be
// nil.
func NewPolicy(s store.Store, k keys.Keys, tempTTL time.Duration, m *metrics.Metrics) *Policy {
	return &Policy{
		store:   s,
		keys:    k,
		tempTTL: tempTTL,
		metrics: m,
		logger:  slog.Default().With("component", "retrieval"),
	}
}

// Recommend returns up to n items for user. It never fails: any store
// error is logged and yields an empty list.
func (p *Policy) Recommend(ctx context.Context, user string, n int) []string {
	items, branch, err := p.Retrieve(ctx, user, n)
	if err != nil {
		logger.FromContext(ctx).Error("recommendation retrieval failed",
			"component", "retrieval", "user", user, "branch", string(branch), "error", err)
		p.metrics.Served(string(BranchFailed))
		return []string{}
	}
	p.metrics.Served(string(branch))
	if items == nil {
		items = []string{}
	}
	return items
}

// Retrieve runs the state machine and reports the branch taken. On error
// the branch is the one that failed.
func (p *Policy) Retrieve(ctx context.Context, user string, n int) ([]string, Branch, error) {
	if n <= 0 {
		return []string{}, BranchEmpty, nil
	}

	consumed, err := p.store.SRem(ctx, p.keys.ViewDebtSet(), user)
	if err != nil {
		return nil, BranchViewDebt, apperrors.Store("view debt", err)
	}
	if consumed == 1 {
		items, err := p.filteredActive(ctx, user, n, true)
		return items, BranchViewDebt, err
	}
	return p.normal(ctx, user, n)
}

func (p *Policy) normal(ctx context.Context, user string, n int) ([]string, Branch, error) {
	recKey, activeKey := p.keys.RecommendedZSet(user), p.keys.ActiveItemsZSet()

	tx := p.store.TxPipeline()
	recCount := tx.ZCard(recKey)
	activeCount := tx.ZCard(activeKey)
	if err := tx.Exec(ctx); err != nil {
		return nil, BranchEmpty, apperrors.Store("retrieval cardinalities", err)
	}

	hasRecs, hasActive := recCount.Val() > 0, activeCount.Val() > 0
	switch {
	case hasRecs && hasActive:
		items, err := p.intersection(ctx, user, n)
		if err != nil {
			return nil, BranchIntersection, err
		}
		if len(items) > 0 {
			return items, BranchIntersection, nil
		}
		items, err = p.filteredActive(ctx, user, n, false)
		return items, BranchActive, err
	case hasRecs:
		items, err := p.store.ZRevRange(ctx, recKey, 0, int64(n)-1)
		if err != nil {
			return nil, BranchRecommended, apperrors.Store("recommended range", err)
		}
		return items, BranchRecommended, nil
	case hasActive:
		items, err := p.filteredActive(ctx, user, n, false)
		return items, BranchActive, err
	default:
		return []string{}, BranchEmpty, nil
	}
}

// intersection ranks the user's still-active recommendations by predicted
// score.
func (p *Policy) intersection(ctx context.Context, user string, n int) ([]string, error) {
	tmp := p.keys.UserIntersectionZSet(user)
	if _, err := p.store.ZInterStore(ctx, tmp, store.ZStore{
		Keys:      []string{p.keys.RecommendedZSet(user), p.keys.ActiveItemsZSet()},
		Weights:   []float64{1, 0},
		Aggregate: store.AggregateSum,
	}); err != nil {
		return nil, apperrors.Store("intersection", err)
	}
	p.expire(ctx, tmp)
	items, err := p.store.ZRevRange(ctx, tmp, 0, int64(n)-1)
	if err != nil {
		return nil, apperrors.Store("intersection range", err)
	}
	return items, nil
}

// filteredActive ranks active items the user has not touched by hotness.
// With skipHottest the first ceil(count/2) entries are skipped.
func (p *Policy) filteredActive(ctx context.Context, user string, n int, skipHottest bool) ([]string, error) {
	tmp := p.keys.UserFilteredActiveZSet(user)
	if _, err := p.store.ZUnionStore(ctx, tmp, store.ZStore{
		Keys: []string{
			p.keys.ActiveItemsZSet(),
			p.keys.UserPassedSet(user),
			p.keys.UserLikedSet(user),
			p.keys.UserDislikedSet(user),
		},
		Weights:   []float64{1, 0, 0, 0},
		Aggregate: store.AggregateMin,
	}); err != nil {
		return nil, apperrors.Store("filtered active", err)
	}
	p.expire(ctx, tmp)

	var offset int64
	if skipHottest {
		count, err := p.store.ZCount(ctx, tmp, minActiveScore, "+inf")
		if err != nil {
			return nil, apperrors.Store("filtered active count", err)
		}
		offset = (count + 1) / 2
	}
	items, err := p.store.ZRevRangeByScore(ctx, tmp, store.ScoreRange{
		Min:    minActiveScore,
		Max:    "+inf",
		Offset: offset,
		Count:  int64(n),
	})
	if err != nil {
		return nil, apperrors.Store("filtered active range", err)
	}
	return items, nil
}

func (p *Policy) expire(ctx context.Context, key string) {
	if p.tempTTL <= 0 {
		return
	}
	if _, err := p.store.Expire(ctx, key, p.tempTTL); err != nil {
		p.logger.Warn("failed to set scratch set expiry", "key", key, "error", err)
	}
}
