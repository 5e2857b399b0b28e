package distance

import (
	"context"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/platform/obs"
	"dispatch-map-service/internal/ports"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultORSBaseURL = "https://api.openrouteservice.org"

// ORSOptions tunes the OpenRouteService provider. Zero values select defaults.
type ORSOptions struct {
	BaseURL    string
	Profile    string
	Country    string // ISO alpha-2 geocode boundary, empty for worldwide
	HTTPClient *http.Client
	Backoff    time.Duration
}

// ORSProvider implements DistanceMatrixProvider and Geocoder on top of OpenRouteService.
//
// Distance results are cached by coordinate fingerprint and geocodes by normalized
// address. Both caches are optional. The provider is safe for concurrent use.
type ORSProvider struct {
	session       *http.Client
	apiKey        string
	baseURL       string
	profile       string
	country       string
	backoff       time.Duration
	distanceCache ports.DistanceCache
	geocodeCache  ports.GeocodeCache
}

var (
	_ ports.DistanceMatrixProvider = (*ORSProvider)(nil)
	_ ports.Geocoder               = (*ORSProvider)(nil)
)

func NewORSProvider(
	apiKey string,
	distanceCache ports.DistanceCache,
	geocodeCache ports.GeocodeCache,
	opts ORSOptions,
) (*ORSProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ORS api key is empty")
	}

	p := &ORSProvider{
		session:       opts.HTTPClient,
		apiKey:        apiKey,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		profile:       opts.Profile,
		country:       opts.Country,
		backoff:       opts.Backoff,
		distanceCache: distanceCache,
		geocodeCache:  geocodeCache,
	}
	if p.session == nil {
		p.session = &http.Client{Timeout: 10 * time.Second}
	}
	if p.baseURL == "" {
		p.baseURL = defaultORSBaseURL
	}
	if p.profile == "" {
		p.profile = "driving-car"
	}
	if p.backoff <= 0 {
		p.backoff = 200 * time.Millisecond
	}

	return p, nil
}

// NormalizeAddress collapses whitespace and case so equivalent spellings share a cache key.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// GetDistance returns the driving distance between two coordinates. ErrNotFound
// means ORS found no route.
func (o *ORSProvider) GetDistance(
	ctx context.Context,
	origin domain.Coordinates,
	destination domain.Coordinates,
) (ports.DistanceResult, error) {
	if !origin.Valid() || !destination.Valid() {
		return ports.DistanceResult{}, errors.New("get ORS distance: coordinates out of range")
	}
	if origin.Fingerprint() == destination.Fingerprint() {
		return ports.DistanceResult{}, nil
	}

	results, err := o.GetDistances(ctx, origin, []domain.Coordinates{destination})
	if err != nil {
		return ports.DistanceResult{}, fmt.Errorf(
			"get distances %s -> %s: %w",
			origin.Fingerprint(), destination.Fingerprint(), err,
		)
	}

	result, ok := results[destination.Fingerprint()]
	if !ok {
		return ports.DistanceResult{}, ports.ErrNotFound
	}
	return result, nil
}

// GetDistances computes distances from one origin to many destinations, keyed by
// destination fingerprint. Unreachable destinations are left out of the result.
func (o *ORSProvider) GetDistances(
	ctx context.Context,
	origin domain.Coordinates,
	destinations []domain.Coordinates,
) (_ map[string]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "ors.GetDistances")(&err)

	if !origin.Valid() {
		return nil, errors.New("origin coordinates out of range")
	}
	originKey := origin.Fingerprint()

	seen := make(map[string]struct{}, len(destinations))
	destKeys := make([]string, 0, len(destinations))
	coordsByKey := make(map[string]domain.Coordinates, len(destinations))
	for _, d := range destinations {
		if !d.Valid() {
			return nil, fmt.Errorf("destination %v,%v out of range", d.Lat, d.Lng)
		}
		k := d.Fingerprint()
		if k == originKey {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		destKeys = append(destKeys, k)
		coordsByKey[k] = d
	}

	if len(destKeys) == 0 {
		return map[string]ports.DistanceResult{}, nil
	}

	hits := map[string]ports.DistanceResult{}
	// Check the distance cache before issuing external API calls.
	if o.distanceCache != nil {
		hits, err = o.distanceCache.GetMany(ctx, originKey, destKeys)
		if err != nil {
			return nil, fmt.Errorf("ORS get distance cache: %w", err)
		}
	}

	misses := make([]string, 0, len(destKeys))
	missCoords := make([]domain.Coordinates, 0, len(destKeys))
	for _, k := range destKeys {
		if _, ok := hits[k]; !ok {
			misses = append(misses, k)
			missCoords = append(missCoords, coordsByKey[k])
		}
	}

	if len(misses) == 0 {
		return hits, nil
	}

	// Fetch a single origin->many matrix row for all cache misses.
	fetched, err := o.fetchMatrixRow(ctx, origin, misses, missCoords)
	if err != nil {
		return nil, fmt.Errorf("fetching matrix row: %w", err)
	}

	if o.distanceCache != nil && len(fetched) > 0 {
		if err := o.distanceCache.PutMany(ctx, originKey, fetched); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("origin", originKey).Msg("distance cache write failed")
		}
	}

	out := make(map[string]ports.DistanceResult, len(hits)+len(fetched))
	for k, v := range hits {
		out[k] = v
	}
	for k, v := range fetched {
		out[k] = v
	}

	return out, nil
}
