package scoring

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/keys"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
)

const (
	// hotnessEpoch is the Unix time ages are measured from.
	hotnessEpoch = 1134028003
	// hotnessScale is how many seconds of age are worth one order of
	// magnitude of net votes.
	hotnessScale = 45000
)

// Hotness blends the order of magnitude of net rating with activation age.
func Hotness(likes, dislikes int64, activated time.Time) float64 {
	net := 2*likes - 2*dislikes
	order := math.Log10(math.Max(math.Abs(float64(net)), 1))
	var sign float64
	switch {
	case net > 0:
		sign = 1
	case net < 0:
		sign = -1
	}
	seconds := float64(activated.UnixMilli())/1000 - hotnessEpoch
	return sign*order + seconds/hotnessScale
}

// Active maintains the active-items index.
type Active struct {
	store  store.Store
	keys   keys.Keys
	logger *slog.Logger
}

// NewActive creates an Active index writer.
func NewActive(s store.Store, k keys.Keys) *Active {
	return &Active{
		store:  s,
		keys:   k,
		logger: slog.Default().With("component", "hotness"),
	}
}

// Activate adds item with a zero-vote hotness at activation time.
func (a *Active) Activate(ctx context.Context, item string, activated time.Time) error {
	score := Hotness(0, 0, activated)
	if _, err := a.store.ZAdd(ctx, a.keys.ActiveItemsZSet(), store.Z{Member: item, Score: score}); err != nil {
		return apperrors.Store("activate item", err)
	}
	return nil
}

// Refresh rescores an item that is still active. An inactive item is not
// re-added.
func (a *Active) Refresh(ctx context.Context, item string, likes, dislikes int64, activated time.Time) error {
	score := Hotness(likes, dislikes, activated)
	if _, err := a.store.ZAddXX(ctx, a.keys.ActiveItemsZSet(), store.Z{Member: item, Score: score}); err != nil {
		return apperrors.Store("refresh hotness", err)
	}
	return nil
}

// deactivateScript drops the item from both indexes and from every rater's
// rating set, then deletes its rater sets. Reading the raters and removing
// them in one script means a rating that lands concurrently is either seen
// and removed or applied after, never split across the two sides.
//
// KEYS: active, scoreboard, liked-by, disliked-by
// ARGV: item, user key prefix, liked suffix, disliked suffix
var deactivateScript = store.NewScript("deactivate", `
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
local likers = redis.call('SMEMBERS', KEYS[3])
for _, u in ipairs(likers) do
  redis.call('SREM', ARGV[2] .. u .. ARGV[3], ARGV[1])
end
local dislikers = redis.call('SMEMBERS', KEYS[4])
for _, u in ipairs(dislikers) do
  redis.call('SREM', ARGV[2] .. u .. ARGV[4], ARGV[1])
end
redis.call('DEL', KEYS[3], KEYS[4])
return {#likers, #dislikers}
`)

// Deactivate removes item from the index and the scoreboard and discards
// its rating history on both sides of the rating index.
func (a *Active) Deactivate(ctx context.Context, item string) error {
	prefix, likedSuffix := a.keys.UserLikedAffixes()
	_, dislikedSuffix := a.keys.UserDislikedAffixes()
	removed, err := a.store.Eval(ctx, deactivateScript,
		[]string{
			a.keys.ActiveItemsZSet(),
			a.keys.ScoreboardZSet(),
			a.keys.ItemLikedBySet(item),
			a.keys.ItemDislikedBySet(item),
		},
		item, prefix, likedSuffix, dislikedSuffix,
	)
	if err != nil {
		return apperrors.Store("deactivate item", err)
	}
	if len(removed) == 2 {
		a.logger.Debug("item deactivated", "item", item, "likers", removed[0], "dislikers", removed[1])
	}
	return nil
}
