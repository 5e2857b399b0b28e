package cache

import (
	"context"
	"dispatch-map-service/internal/ports"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T, ttl time.Duration) (*RedisDistanceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDistanceCache(client, ttl), mr
}

func TestRedisDistanceCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, time.Hour)

	err := c.PutMany(ctx, "59.437,24.7536", map[string]ports.DistanceResult{
		"59.44,24.76": {DistanceMeters: 1200, DurationSeconds: 180},
		"59.45,24.77": {DistanceMeters: 2500, DurationSeconds: 320},
	})
	require.NoError(t, err)

	got, err := c.GetMany(ctx, "59.437,24.7536", []string{"59.44,24.76", " 59.44,24.76 ", "59.9,25", ""})
	require.NoError(t, err)
	assert.Equal(t, map[string]ports.DistanceResult{
		"59.44,24.76": {DistanceMeters: 1200, DurationSeconds: 180},
	}, got)

	assert.Equal(t, time.Hour, mr.TTL(redisDistancePrefix+"59.437,24.7536"))
}

func TestRedisDistanceCacheExpires(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, time.Minute)

	require.NoError(t, c.PutMany(ctx, "a", map[string]ports.DistanceResult{"b": {DistanceMeters: 1, DurationSeconds: 2}}))
	mr.FastForward(2 * time.Minute)

	got, err := c.GetMany(ctx, "a", []string{"b"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisDistanceCacheMalformedEntry(t *testing.T) {
	c, mr := newRedisCache(t, 0)
	mr.HSet(redisDistancePrefix+"a", "b", "nonsense")

	_, err := c.GetMany(context.Background(), "a", []string{"b"})
	assert.ErrorContains(t, err, `malformed entry "nonsense"`)
}

func TestRedisDistanceCacheValidation(t *testing.T) {
	c, _ := newRedisCache(t, 0)
	ctx := context.Background()

	_, err := c.GetMany(ctx, "", []string{"b"})
	assert.Error(t, err)
	assert.Error(t, c.PutMany(ctx, "a", map[string]ports.DistanceResult{" ": {}}))
	assert.NoError(t, c.PutMany(ctx, "a", nil))
}

type memoryCache struct {
	data    map[string]map[string]ports.DistanceResult
	getErr  error
	lookups [][]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]map[string]ports.DistanceResult{}}
}

func (m *memoryCache) GetMany(_ context.Context, origin string, destinations []string) (map[string]ports.DistanceResult, error) {
	m.lookups = append(m.lookups, destinations)
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := map[string]ports.DistanceResult{}
	for _, d := range destinations {
		if r, ok := m.data[origin][d]; ok {
			out[d] = r
		}
	}
	return out, nil
}

func (m *memoryCache) PutMany(_ context.Context, origin string, results map[string]ports.DistanceResult) error {
	if m.data[origin] == nil {
		m.data[origin] = map[string]ports.DistanceResult{}
	}
	for d, r := range results {
		m.data[origin][d] = r
	}
	return nil
}

func TestTieredDistanceCacheBackfillsFront(t *testing.T) {
	ctx := context.Background()
	front, _ := newRedisCache(t, time.Hour)
	back := newMemoryCache()
	back.data["o"] = map[string]ports.DistanceResult{"x": {DistanceMeters: 10, DurationSeconds: 1}}

	tiered := NewTieredDistanceCache(front, back)

	got, err := tiered.GetMany(ctx, "o", []string{"x", "y"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, [][]string{{"x", "y"}}, back.lookups)

	// second read is served by the front cache for x
	_, err = tiered.GetMany(ctx, "o", []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, back.lookups[1])
}

func TestTieredDistanceCacheToleratesFrontFailure(t *testing.T) {
	ctx := context.Background()
	front := newMemoryCache()
	front.getErr = errors.New("connection refused")
	back := newMemoryCache()
	require.NoError(t, back.PutMany(ctx, "o", map[string]ports.DistanceResult{"x": {DistanceMeters: 3}}))

	got, err := NewTieredDistanceCache(front, back).GetMany(ctx, "o", []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 3, got["x"].DistanceMeters)
}
