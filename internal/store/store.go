// Package store defines the key-value store capabilities the engine
// consumes: plain sets, sorted sets, expiry, and atomic batched execution.
//
// pkg/redis.Store implements them on Redis, with MULTI/EXEC for Tx and Lua
// for Eval.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNil is returned by lookups of a member or key that does not exist.
var ErrNil = errors.New("store: nil")

// Z is a sorted-set member with its score.
type Z struct {
	Member string
	Score  float64
}

// Aggregate selects how ZInterStore/ZUnionStore combine scores.
type Aggregate string

const (
	AggregateSum Aggregate = "SUM"
	AggregateMin Aggregate = "MIN"
	AggregateMax Aggregate = "MAX"
)

// ZStore describes the inputs of ZInterStore and ZUnionStore. Plain sets
// may be used as inputs; each of their members counts as score 1 before
// weighting. Weights default to 1 and Aggregate to SUM.
type ZStore struct {
	Keys      []string
	Weights   []float64
	Aggregate Aggregate
}

// ScoreRange bounds a by-score query. Min and Max use Redis syntax: a
// number, "-inf", "+inf", or "(" prefixed for an exclusive bound.
// Count <= 0 returns every member after Offset.
type ScoreRange struct {
	Min, Max string
	Offset   int64
	Count    int64
}

// Store issues commands one at a time.
type Store interface {
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SInter(ctx context.Context, keys ...string) ([]string, error)
	SUnion(ctx context.Context, keys ...string) ([]string, error)
	SUnionStore(ctx context.Context, dest string, keys ...string) (int64, error)
	SDiff(ctx context.Context, keys ...string) ([]string, error)

	ZAdd(ctx context.Context, key string, members ...Z) (int64, error)
	// ZAddXX updates only members already present and returns how many
	// scores changed.
	ZAddXX(ctx context.Context, key string, members ...Z) (int64, error)
	ZIncrBy(ctx context.Context, key string, incr float64, member string) (float64, error)
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	ZScore(ctx context.Context, key, member string) (float64, error)
	ZRevRank(ctx context.Context, key, member string) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZCount(ctx context.Context, key, min, max string) (int64, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error)
	ZRevRangeByScore(ctx context.Context, key string, by ScoreRange) ([]string, error)
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error)
	ZInterStore(ctx context.Context, dest string, in ZStore) (int64, error)
	ZUnionStore(ctx context.Context, dest string, in ZStore) (int64, error)

	Del(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TxPipeline starts a batch whose commands run atomically on Exec.
	TxPipeline() Tx

	// Eval runs script as one atomic operation and returns its integer
	// replies.
	Eval(ctx context.Context, script *Script, keys []string, args ...any) ([]int64, error)
}

// Script is a Lua program executed server-side by Eval. Use it when a write
// depends on data read in the same step, which a Tx cannot express. The
// script must return an array of integers.
type Script struct {
	Name   string
	Source string
}

// NewScript returns a named script.
func NewScript(name, source string) *Script {
	return &Script{Name: name, Source: source}
}

// Tx queues commands and runs them as one atomic unit. Replies are
// populated by Exec; each carries its own error so partial failures are
// visible per command.
type Tx interface {
	SAdd(key string, members ...string) *Reply[int64]
	SRem(key string, members ...string) *Reply[int64]
	SCard(key string) *Reply[int64]
	SMembers(key string) *Reply[[]string]
	SInter(keys ...string) *Reply[[]string]

	ZAdd(key string, members ...Z) *Reply[int64]
	ZIncrBy(key string, incr float64, member string) *Reply[float64]
	ZRem(key string, members ...string) *Reply[int64]
	ZScore(key, member string) *Reply[float64]
	ZRevRank(key, member string) *Reply[int64]
	ZCard(key string) *Reply[int64]
	ZRange(key string, start, stop int64) *Reply[[]string]
	ZRevRange(key string, start, stop int64) *Reply[[]string]
	ZRemRangeByRank(key string, start, stop int64) *Reply[int64]

	Del(keys ...string) *Reply[int64]
	Expire(key string, ttl time.Duration) *Reply[bool]

	// Exec runs the queued commands. It returns the first command error
	// other than ErrNil.
	Exec(ctx context.Context) error
}

// Reply is the deferred result of a queued command.
type Reply[T any] struct {
	val  T
	err  error
	done bool
}

// Fill records the command's outcome. Called by Tx implementations.
func (r *Reply[T]) Fill(val T, err error) {
	r.val, r.err, r.done = val, err, true
}

// Result returns the value and error. Before Exec it reports
// errNotExecuted.
func (r *Reply[T]) Result() (T, error) {
	if !r.done {
		var zero T
		return zero, errNotExecuted
	}
	return r.val, r.err
}

// Val returns the value, the zero value on error.
func (r *Reply[T]) Val() T {
	return r.val
}

// Err returns the command error.
func (r *Reply[T]) Err() error {
	if !r.done {
		return errNotExecuted
	}
	return r.err
}

var errNotExecuted = errors.New("store: reply read before Exec")

// FirstErr returns the first error in errs that is not ErrNil.
func FirstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil && !errors.Is(err, ErrNil) {
			return err
		}
	}
	return nil
}
