package engine

import "time"

// RatingOption adjusts what happens after a like or dislike.
type RatingOption func(*ratingOptions)

type ratingOptions struct {
	updateRecs bool
	hotness    *hotnessUpdate
}

type hotnessUpdate struct {
	likes, dislikes int64
	date            time.Time
}

// WithUpdateRecs overrides the configured choice of running the
// similarity and recommendation update after the rating.
func WithUpdateRecs(update bool) RatingOption {
	return func(o *ratingOptions) { o.updateRecs = update }
}

// WithHotness rescores the item in the active index from its current vote
// totals and activation date. Inactive items are left alone.
func WithHotness(likes, dislikes int64, activated time.Time) RatingOption {
	return func(o *ratingOptions) {
		o.hotness = &hotnessUpdate{likes: likes, dislikes: dislikes, date: activated}
	}
}

func (e *Engine) ratingOptions(opts []RatingOption) ratingOptions {
	o := ratingOptions{updateRecs: e.cfg.UpdateRecs}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
