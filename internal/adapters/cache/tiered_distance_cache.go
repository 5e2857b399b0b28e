package cache

import (
	"context"
	"dispatch-map-service/internal/ports"
	"fmt"

	"github.com/rs/zerolog"
)

// TieredDistanceCache reads through a fast Front cache to a durable Back cache and
// backfills Front with whatever Back returned. Writes go to both.
// Front failures are logged and treated as misses.
type TieredDistanceCache struct {
	Front ports.DistanceCache
	Back  ports.DistanceCache
}

func NewTieredDistanceCache(front, back ports.DistanceCache) *TieredDistanceCache {
	return &TieredDistanceCache{Front: front, Back: back}
}

func (t *TieredDistanceCache) GetMany(
	ctx context.Context,
	origin string,
	destinations []string,
) (map[string]ports.DistanceResult, error) {
	out, err := t.Front.GetMany(ctx, origin, destinations)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("origin", origin).Msg("front distance cache read failed")
		out = map[string]ports.DistanceResult{}
	}

	var missing []string
	for _, d := range uniqueKeys(destinations) {
		if _, ok := out[d]; !ok {
			missing = append(missing, d)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fromBack, err := t.Back.GetMany(ctx, origin, missing)
	if err != nil {
		return nil, fmt.Errorf("tiered distance cache: %w", err)
	}
	if len(fromBack) == 0 {
		return out, nil
	}

	for d, r := range fromBack {
		out[d] = r
	}
	if err := t.Front.PutMany(ctx, origin, fromBack); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("origin", origin).Msg("front distance cache backfill failed")
	}
	return out, nil
}

func (t *TieredDistanceCache) PutMany(ctx context.Context, origin string, results map[string]ports.DistanceResult) error {
	if err := t.Back.PutMany(ctx, origin, results); err != nil {
		return fmt.Errorf("tiered distance cache: %w", err)
	}
	if err := t.Front.PutMany(ctx, origin, results); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("origin", origin).Msg("front distance cache write failed")
	}
	return nil
}
