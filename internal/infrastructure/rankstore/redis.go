// Package rankstore provides ordered-set leaderboard stores: a Redis sorted
// set implementation for production and an in-memory twin for tests and
// single-node development.
package rankstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rhythmnet/rhythmd/internal/domain/rank"
)

// Redis backs the leaderboards with one sorted set per key. Member values
// are performance points; position queries translate to ZREVRANK so position
// zero is the numerically highest member.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Redis{client: client}, nil
}

var _ rank.Store = (*Redis)(nil)

func member(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (r *Redis) Upsert(ctx context.Context, key string, userID int64, value float64) error {
	err := r.client.ZAdd(ctx, key, redis.Z{Score: value, Member: member(userID)}).Err()
	if err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string, userID int64) error {
	if err := r.client.ZRem(ctx, key, member(userID)).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Position(ctx context.Context, key string, userID int64) (int64, bool, error) {
	pos, err := r.client.ZRevRank(ctx, key, member(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("zrevrank %s: %w", key, err)
	}
	return pos, true, nil
}

func (r *Redis) RangeByPosition(ctx context.Context, key string, from, to int64) ([]rank.Member, error) {
	if to < 0 {
		to = -1
	}

	rows, err := r.client.ZRevRangeWithScores(ctx, key, from, to).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s [%d,%d]: %w", key, from, to, err)
	}

	members := make([]rank.Member, 0, len(rows))
	for _, row := range rows {
		raw, ok := row.Member.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected member type %T on %s", row.Member, key)
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse member %q on %s: %w", raw, key, err)
		}
		members = append(members, rank.Member{UserID: userID, Value: row.Score})
	}

	return members, nil
}
