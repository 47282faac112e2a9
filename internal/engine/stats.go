package engine

import (
	"context"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
)

// BestRated returns every scored item, highest Wilson score first.
func (e *Engine) BestRated(ctx context.Context) ([]string, error) {
	return e.zrange(ctx, "best rated", e.keys.ScoreboardZSet(), true)
}

// WorstRated returns every scored item, lowest Wilson score first.
func (e *Engine) WorstRated(ctx context.Context) ([]string, error) {
	return e.zrange(ctx, "worst rated", e.keys.ScoreboardZSet(), false)
}

// BestRatedWithScores returns the top n scoreboard entries. n <= 0 returns
// all of them.
func (e *Engine) BestRatedWithScores(ctx context.Context, n int) ([]store.Z, error) {
	stop := int64(n) - 1
	if n <= 0 {
		stop = -1
	}
	zs, err := e.store.ZRevRangeWithScores(ctx, e.keys.ScoreboardZSet(), 0, stop)
	if err != nil {
		return nil, apperrors.Store("best rated", err)
	}
	return zs, nil
}

// MostLiked ranks items by how many users liked them.
func (e *Engine) MostLiked(ctx context.Context) ([]string, error) {
	return e.zrange(ctx, "most liked", e.keys.MostLiked(), true)
}

// MostDisliked ranks items by how many users disliked them.
func (e *Engine) MostDisliked(ctx context.Context) ([]string, error) {
	return e.zrange(ctx, "most disliked", e.keys.MostDisliked(), true)
}

// MostSimilarUsers returns the user's similarity row, most similar first.
func (e *Engine) MostSimilarUsers(ctx context.Context, user string) ([]string, error) {
	return e.zrange(ctx, "most similar", e.keys.SimilarityZSet(user), true)
}

// LeastSimilarUsers returns the user's similarity row, least similar first.
func (e *Engine) LeastSimilarUsers(ctx context.Context, user string) ([]string, error) {
	return e.zrange(ctx, "least similar", e.keys.SimilarityZSet(user), false)
}

func (e *Engine) LikedBy(ctx context.Context, item string) ([]string, error) {
	return e.members(ctx, "liked by", e.keys.ItemLikedBySet(item))
}

func (e *Engine) LikedCount(ctx context.Context, item string) (int64, error) {
	return e.card(ctx, "liked count", e.keys.ItemLikedBySet(item))
}

func (e *Engine) DislikedBy(ctx context.Context, item string) ([]string, error) {
	return e.members(ctx, "disliked by", e.keys.ItemDislikedBySet(item))
}

func (e *Engine) DislikedCount(ctx context.Context, item string) (int64, error) {
	return e.card(ctx, "disliked count", e.keys.ItemDislikedBySet(item))
}

func (e *Engine) AllLikedFor(ctx context.Context, user string) ([]string, error) {
	return e.members(ctx, "all liked", e.keys.UserLikedSet(user))
}

func (e *Engine) AllDislikedFor(ctx context.Context, user string) ([]string, error) {
	return e.members(ctx, "all disliked", e.keys.UserDislikedSet(user))
}

// AllWatchedFor returns every item the user liked or disliked.
func (e *Engine) AllWatchedFor(ctx context.Context, user string) ([]string, error) {
	items, err := e.store.SUnion(ctx, e.keys.UserLikedSet(user), e.keys.UserDislikedSet(user))
	if err != nil {
		return nil, apperrors.Store("all watched", err)
	}
	return items, nil
}

// RankAndCount locates an item in the active index.
type RankAndCount struct {
	// Rank is the 0-based position by descending hotness; meaningless
	// unless Active.
	Rank   int64 `json:"rank"`
	Active bool  `json:"active"`
	Count  int64 `json:"count"`
}

// ActiveItemRankAndCount reads the item's hotness rank and the index size
// in one transaction.
func (e *Engine) ActiveItemRankAndCount(ctx context.Context, item string) (RankAndCount, error) {
	key := e.keys.ActiveItemsZSet()
	tx := e.store.TxPipeline()
	rank := tx.ZRevRank(key, item)
	count := tx.ZCard(key)
	if err := tx.Exec(ctx); err != nil {
		return RankAndCount{}, apperrors.Store("active rank", err)
	}
	r, err := rank.Result()
	switch {
	case errors.Is(err, store.ErrNil):
		return RankAndCount{Count: count.Val()}, nil
	case err != nil:
		return RankAndCount{}, apperrors.Store("active rank", err)
	}
	return RankAndCount{Rank: r, Active: true, Count: count.Val()}, nil
}

func (e *Engine) zrange(ctx context.Context, op, key string, descending bool) ([]string, error) {
	var (
		items []string
		err   error
	)
	if descending {
		items, err = e.store.ZRevRange(ctx, key, 0, -1)
	} else {
		items, err = e.store.ZRange(ctx, key, 0, -1)
	}
	if err != nil {
		return nil, apperrors.Store(op, err)
	}
	return items, nil
}

func (e *Engine) members(ctx context.Context, op, key string) ([]string, error) {
	items, err := e.store.SMembers(ctx, key)
	if err != nil {
		return nil, apperrors.Store(op, err)
	}
	return items, nil
}

func (e *Engine) card(ctx context.Context, op, key string) (int64, error) {
	n, err := e.store.SCard(ctx, key)
	if err != nil {
		return 0, apperrors.Store(op, err)
	}
	return n, nil
}
