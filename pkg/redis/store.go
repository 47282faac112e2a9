package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/store"
	"github.com/redis/go-redis/v9"
)

// Store implements store.Store with one Redis command per call and
// MULTI/EXEC for transactions.
type Store struct {
	rdb redis.Cmdable
	tx  func() redis.Pipeliner

	// scripts caches the go-redis handle of each store.Script so the SHA is
	// computed once and EVALSHA is tried first.
	scripts sync.Map
}

// Store returns the store view of the client.
func (c *Client) Store() *Store {
	return &Store{rdb: c.rdb, tx: c.rdb.TxPipeline}
}

var _ store.Store = (*Store)(nil)

func mapErr(err error) error {
	if IsNilError(err) {
		return store.ErrNil
	}
	return err
}

func anys(members []string) []interface{} {
	out := make([]interface{}, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}

func toRedisZ(members []store.Z) []redis.Z {
	out := make([]redis.Z, len(members))
	for i, m := range members {
		out[i] = redis.Z{Score: m.Score, Member: m.Member}
	}
	return out
}

func fromRedisZ(zs []redis.Z) []store.Z {
	out := make([]store.Z, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, store.Z{Member: member, Score: z.Score})
	}
	return out
}

func toZStore(in store.ZStore) *redis.ZStore {
	return &redis.ZStore{Keys: in.Keys, Weights: in.Weights, Aggregate: string(in.Aggregate)}
}

func toRangeBy(by store.ScoreRange) *redis.ZRangeBy {
	opt := &redis.ZRangeBy{Min: by.Min, Max: by.Max, Offset: by.Offset, Count: by.Count}
	// LIMIT with a non-zero offset needs an explicit count; -1 means all.
	if opt.Count <= 0 {
		opt.Count = 0
		if opt.Offset != 0 {
			opt.Count = -1
		}
	}
	return opt
}

func (s *Store) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	return s.rdb.SAdd(ctx, key, anys(members)...).Result()
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	return s.rdb.SRem(ctx, key, anys(members)...).Result()
}

func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.rdb.SIsMember(ctx, key, member).Result()
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	return s.rdb.SCard(ctx, key).Result()
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.rdb.SMembers(ctx, key).Result()
}

func (s *Store) SInter(ctx context.Context, keys ...string) ([]string, error) {
	return s.rdb.SInter(ctx, keys...).Result()
}

func (s *Store) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	return s.rdb.SUnion(ctx, keys...).Result()
}

func (s *Store) SUnionStore(ctx context.Context, dest string, keys ...string) (int64, error) {
	return s.rdb.SUnionStore(ctx, dest, keys...).Result()
}

func (s *Store) SDiff(ctx context.Context, keys ...string) ([]string, error) {
	return s.rdb.SDiff(ctx, keys...).Result()
}

func (s *Store) ZAdd(ctx context.Context, key string, members ...store.Z) (int64, error) {
	return s.rdb.ZAdd(ctx, key, toRedisZ(members)...).Result()
}

func (s *Store) ZAddXX(ctx context.Context, key string, members ...store.Z) (int64, error) {
	return s.rdb.ZAddArgs(ctx, key, redis.ZAddArgs{XX: true, Ch: true, Members: toRedisZ(members)}).Result()
}

func (s *Store) ZIncrBy(ctx context.Context, key string, incr float64, member string) (float64, error) {
	return s.rdb.ZIncrBy(ctx, key, incr, member).Result()
}

func (s *Store) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	return s.rdb.ZRem(ctx, key, anys(members)...).Result()
}

func (s *Store) ZScore(ctx context.Context, key, member string) (float64, error) {
	v, err := s.rdb.ZScore(ctx, key, member).Result()
	return v, mapErr(err)
}

func (s *Store) ZRevRank(ctx context.Context, key, member string) (int64, error) {
	v, err := s.rdb.ZRevRank(ctx, key, member).Result()
	return v, mapErr(err)
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	return s.rdb.ZCard(ctx, key).Result()
}

func (s *Store) ZCount(ctx context.Context, key, min, max string) (int64, error) {
	return s.rdb.ZCount(ctx, key, min, max).Result()
}

func (s *Store) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.rdb.ZRange(ctx, key, start, stop).Result()
}

func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.rdb.ZRevRange(ctx, key, start, stop).Result()
}

func (s *Store) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]store.Z, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return fromRedisZ(zs), nil
}

func (s *Store) ZRevRangeByScore(ctx context.Context, key string, by store.ScoreRange) ([]string, error) {
	return s.rdb.ZRevRangeByScore(ctx, key, toRangeBy(by)).Result()
}

func (s *Store) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	return s.rdb.ZRemRangeByRank(ctx, key, start, stop).Result()
}

func (s *Store) ZInterStore(ctx context.Context, dest string, in store.ZStore) (int64, error) {
	return s.rdb.ZInterStore(ctx, dest, toZStore(in)).Result()
}

func (s *Store) ZUnionStore(ctx context.Context, dest string, in store.ZStore) (int64, error) {
	return s.rdb.ZUnionStore(ctx, dest, toZStore(in)).Result()
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	return s.rdb.Del(ctx, keys...).Result()
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.Expire(ctx, key, ttl).Result()
}

// Eval runs sc with EVALSHA, loading it with EVAL when the server does not
// know the script yet.
func (s *Store) Eval(ctx context.Context, sc *store.Script, keys []string, args ...any) ([]int64, error) {
	v, ok := s.scripts.Load(sc)
	if !ok {
		v, _ = s.scripts.LoadOrStore(sc, redis.NewScript(sc.Source))
	}
	out, err := v.(*redis.Script).Run(ctx, s.rdb, keys, args...).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", sc.Name, mapErr(err))
	}
	return out, nil
}

func (s *Store) TxPipeline() store.Tx {
	return &tx{pipe: s.tx()}
}

// tx queues commands on a MULTI/EXEC pipeline. Replies are copied out of
// the go-redis commands once Exec returns.
type tx struct {
	pipe  redis.Pipeliner
	fills []func()
}

func intReply(t *tx, cmd *redis.IntCmd) *store.Reply[int64] {
	r := &store.Reply[int64]{}
	t.fills = append(t.fills, func() { v, err := cmd.Result(); r.Fill(v, mapErr(err)) })
	return r
}

func floatReply(t *tx, cmd *redis.FloatCmd) *store.Reply[float64] {
	r := &store.Reply[float64]{}
	t.fills = append(t.fills, func() { v, err := cmd.Result(); r.Fill(v, mapErr(err)) })
	return r
}

func stringsReply(t *tx, cmd *redis.StringSliceCmd) *store.Reply[[]string] {
	r := &store.Reply[[]string]{}
	t.fills = append(t.fills, func() { v, err := cmd.Result(); r.Fill(v, mapErr(err)) })
	return r
}

func (t *tx) SAdd(key string, members ...string) *store.Reply[int64] {
	return intReply(t, t.pipe.SAdd(context.Background(), key, anys(members)...))
}

func (t *tx) SRem(key string, members ...string) *store.Reply[int64] {
	return intReply(t, t.pipe.SRem(context.Background(), key, anys(members)...))
}

func (t *tx) SCard(key string) *store.Reply[int64] {
	return intReply(t, t.pipe.SCard(context.Background(), key))
}

func (t *tx) SMembers(key string) *store.Reply[[]string] {
	return stringsReply(t, t.pipe.SMembers(context.Background(), key))
}

func (t *tx) SInter(keys ...string) *store.Reply[[]string] {
	return stringsReply(t, t.pipe.SInter(context.Background(), keys...))
}

func (t *tx) ZAdd(key string, members ...store.Z) *store.Reply[int64] {
	return intReply(t, t.pipe.ZAdd(context.Background(), key, toRedisZ(members)...))
}

func (t *tx) ZIncrBy(key string, incr float64, member string) *store.Reply[float64] {
	return floatReply(t, t.pipe.ZIncrBy(context.Background(), key, incr, member))
}

func (t *tx) ZRem(key string, members ...string) *store.Reply[int64] {
	return intReply(t, t.pipe.ZRem(context.Background(), key, anys(members)...))
}

func (t *tx) ZScore(key, member string) *store.Reply[float64] {
	return floatReply(t, t.pipe.ZScore(context.Background(), key, member))
}

func (t *tx) ZRevRank(key, member string) *store.Reply[int64] {
	return intReply(t, t.pipe.ZRevRank(context.Background(), key, member))
}

func (t *tx) ZCard(key string) *store.Reply[int64] {
	return intReply(t, t.pipe.ZCard(context.Background(), key))
}

func (t *tx) ZRange(key string, start, stop int64) *store.Reply[[]string] {
	return stringsReply(t, t.pipe.ZRange(context.Background(), key, start, stop))
}

func (t *tx) ZRevRange(key string, start, stop int64) *store.Reply[[]string] {
	return stringsReply(t, t.pipe.ZRevRange(context.Background(), key, start, stop))
}

func (t *tx) ZRemRangeByRank(key string, start, stop int64) *store.Reply[int64] {
	return intReply(t, t.pipe.ZRemRangeByRank(context.Background(), key, start, stop))
}

func (t *tx) Del(keys ...string) *store.Reply[int64] {
	return intReply(t, t.pipe.Del(context.Background(), keys...))
}

func (t *tx) Expire(key string, ttl time.Duration) *store.Reply[bool] {
	cmd := t.pipe.Expire(context.Background(), key, ttl)
	r := &store.Reply[bool]{}
	t.fills = append(t.fills, func() { v, err := cmd.Result(); r.Fill(v, mapErr(err)) })
	return r
}

// Exec sends MULTI, the queued commands and EXEC in one round trip. A
// redis.Nil from a lookup is left on its reply and does not fail the batch.
func (t *tx) Exec(ctx context.Context) error {
	cmds, err := t.pipe.Exec(ctx)
	for _, fill := range t.fills {
		fill()
	}
	if len(cmds) == 0 {
		return mapErr(err)
	}
	errs := make([]error, 0, len(cmds))
	for _, cmd := range cmds {
		errs = append(errs, mapErr(cmd.Err()))
	}
	return store.FirstErr(errs...)
}
