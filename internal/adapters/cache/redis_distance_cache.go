package cache

import (
	"context"
	"dispatch-map-service/internal/platform/obs"
	"dispatch-map-service/internal/ports"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDistancePrefix = "dispatch:distance:"

// RedisDistanceCache keeps one hash per origin fingerprint. Each field is a destination
// fingerprint holding "meters:seconds". The whole hash expires TTL after its last write.
type RedisDistanceCache struct {
	Client redis.Cmdable
	TTL    time.Duration
}

func NewRedisDistanceCache(client redis.Cmdable, ttl time.Duration) *RedisDistanceCache {
	return &RedisDistanceCache{Client: client, TTL: ttl}
}

func (r *RedisDistanceCache) GetMany(
	ctx context.Context,
	origin string,
	destinations []string,
) (_ map[string]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "distance.cache.redis.GetMany")(&err)

	if r.Client == nil {
		return nil, errors.New("redis distance cache: client is nil")
	}
	if origin == "" {
		return nil, errors.New("get redis distance cache: origin must not be empty")
	}

	uniq := uniqueKeys(destinations)
	if len(uniq) == 0 {
		return map[string]ports.DistanceResult{}, nil
	}

	vals, err := r.Client.HMGet(ctx, redisDistancePrefix+origin, uniq...).Result()
	if err != nil {
		return nil, fmt.Errorf("get redis distance cache: hmget: %w", err)
	}

	out := make(map[string]ports.DistanceResult, len(uniq))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // missing field
		}
		res, err := decodeDistance(s)
		if err != nil {
			return nil, fmt.Errorf("get redis distance cache dest=%q: %w", uniq[i], err)
		}
		out[uniq[i]] = res
	}
	return out, nil
}

func (r *RedisDistanceCache) PutMany(
	ctx context.Context,
	origin string,
	results map[string]ports.DistanceResult,
) (err error) {
	defer obs.Time(ctx, "distance.cache.redis.PutMany")(&err)

	if r.Client == nil {
		return errors.New("redis distance cache: client is nil")
	}
	if origin == "" {
		return errors.New("insert redis distance cache: origin must not be empty")
	}
	if len(results) == 0 {
		return nil
	}

	fields := make(map[string]any, len(results))
	for dest, res := range results {
		if strings.TrimSpace(dest) == "" {
			return errors.New("insert redis distance cache: empty destination key")
		}
		fields[dest] = encodeDistance(res)
	}

	key := redisDistancePrefix + origin
	pipe := r.Client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if r.TTL > 0 {
		pipe.Expire(ctx, key, r.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert redis distance cache: exec: %w", err)
	}
	return nil
}

func encodeDistance(r ports.DistanceResult) string {
	return strconv.Itoa(r.DistanceMeters) + ":" + strconv.Itoa(r.DurationSeconds)
}

func decodeDistance(s string) (ports.DistanceResult, error) {
	meters, seconds, ok := strings.Cut(s, ":")
	if !ok {
		return ports.DistanceResult{}, fmt.Errorf("malformed entry %q", s)
	}
	m, err := strconv.Atoi(meters)
	if err != nil {
		return ports.DistanceResult{}, fmt.Errorf("malformed meters %q: %w", meters, err)
	}
	sec, err := strconv.Atoi(seconds)
	if err != nil {
		return ports.DistanceResult{}, fmt.Errorf("malformed seconds %q: %w", seconds, err)
	}
	return ports.DistanceResult{DistanceMeters: m, DurationSeconds: sec}, nil
}
