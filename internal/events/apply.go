package events

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/engine"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
)

// Target is the part of the engine that events drive.
type Target interface {
	RecordLike(ctx context.Context, user, item string, opts ...engine.RatingOption) error
	RecordDislike(ctx context.Context, user, item string, opts ...engine.RatingOption) error
	UndoLike(ctx context.Context, user, item string) error
	UndoDislike(ctx context.Context, user, item string) error
	RecordPass(ctx context.Context, user, item string) error
	ActivateItem(ctx context.Context, item string, activated time.Time) error
	DeactivateItem(ctx context.Context, item string) error
	FlagForViewDebt(ctx context.Context, users []string) error
}

var _ Target = (*engine.Engine)(nil)

// Apply dispatches ev to t. Extra options are appended after the ones the
// event itself asks for.
func Apply(ctx context.Context, t Target, ev Event, extra ...engine.RatingOption) error {
	user, item := string(ev.UserID), string(ev.ItemID)
	switch ev.Type {
	case Like:
		return t.RecordLike(ctx, user, item, ratingOptions(ev, extra)...)
	case Dislike:
		return t.RecordDislike(ctx, user, item, ratingOptions(ev, extra)...)
	case Unlike:
		return t.UndoLike(ctx, user, item)
	case Undislike:
		return t.UndoDislike(ctx, user, item)
	case Pass:
		return t.RecordPass(ctx, user, item)
	case Activate:
		at := time.Now()
		if ev.Timestamp != nil {
			at = *ev.Timestamp
		}
		return t.ActivateItem(ctx, item, at)
	case Deactivate:
		return t.DeactivateItem(ctx, item)
	case ViewDebt:
		users := make([]string, len(ev.Users))
		for i, u := range ev.Users {
			users[i] = string(u)
		}
		return t.FlagForViewDebt(ctx, users)
	default:
		return fmt.Errorf("applying event: %w: unknown type %q", apperrors.ErrInvalidInput, ev.Type)
	}
}

func ratingOptions(ev Event, extra []engine.RatingOption) []engine.RatingOption {
	var opts []engine.RatingOption
	if ev.UpdateRecs != nil {
		opts = append(opts, engine.WithUpdateRecs(*ev.UpdateRecs))
	}
	if ev.hotness() {
		opts = append(opts, engine.WithHotness(*ev.Likes, *ev.Dislikes, *ev.Timestamp))
	}
	return append(opts, extra...)
}
