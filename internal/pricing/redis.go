package pricing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RankTTL bounds how long a published ranking stays visible
const RankTTL = 6 * time.Hour

func bestPriceKey(sportKey string) string {
	return fmt.Sprintf("odds:best:%s", sportKey)
}

func rankKey(sportKey string) string {
	return fmt.Sprintf("rank:%s", sportKey)
}

// RedisPrices reads best-available prices from a per-sport hash of
// selection id -> American odds
type RedisPrices struct {
	client redis.Cmdable
}

// NewRedisPrices creates a price lookup
func NewRedisPrices(client redis.Cmdable) *RedisPrices {
	return &RedisPrices{client: client}
}

// BestPrices implements contracts.PriceLookup. Missing or unparseable
// entries are left out of the result.
func (p *RedisPrices) BestPrices(ctx context.Context, sportKey string, selectionIDs []string) (map[string]int, error) {
	prices := make(map[string]int, len(selectionIDs))
	if len(selectionIDs) == 0 {
		return prices, nil
	}

	values, err := p.client.HMGet(ctx, bestPriceKey(sportKey), selectionIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading best prices: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		price, err := strconv.Atoi(s)
		if err != nil || price == 0 {
			continue
		}
		prices[selectionIDs[i]] = price
	}

	return prices, nil
}

// RedisRankIndex is the user-visible ranked ordering of storage ids, kept
// in a sorted set per sport
type RedisRankIndex struct {
	client redis.Cmdable
}

// NewRedisRankIndex creates a rank index
func NewRedisRankIndex(client redis.Cmdable) *RedisRankIndex {
	return &RedisRankIndex{client: client}
}

// Ranked implements contracts.RankIndex. limit <= 0 returns everything.
func (r *RedisRankIndex) Ranked(ctx context.Context, sportKey string, limit int64) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}

	ids, err := r.client.ZRevRange(ctx, rankKey(sportKey), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("reading rank index: %w", err)
	}
	return ids, nil
}

// Publish replaces the ranking with ids, first id ranked highest
func (r *RedisRankIndex) Publish(ctx context.Context, sportKey string, ids []string) error {
	key := rankKey(sportKey)

	members := make([]redis.Z, len(ids))
	for i, id := range ids {
		members[i] = redis.Z{Score: float64(len(ids) - i), Member: id}
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
		pipe.Expire(ctx, key, RankTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing rank index: %w", err)
	}
	return nil
}
