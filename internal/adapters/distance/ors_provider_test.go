package distance

import (
	"context"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/ports"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var (
	origin = domain.Coordinates{Lat: 59.437, Lng: 24.7536}
	near   = domain.Coordinates{Lat: 59.44, Lng: 24.76}
	far    = domain.Coordinates{Lat: 58.38, Lng: 26.72}
)

type memDistanceCache struct {
	m map[string]ports.DistanceResult
}

func (c *memDistanceCache) GetMany(_ context.Context, origin string, dests []string) (map[string]ports.DistanceResult, error) {
	out := map[string]ports.DistanceResult{}
	for _, d := range dests {
		if r, ok := c.m[origin+"|"+d]; ok {
			out[d] = r
		}
	}
	return out, nil
}

func (c *memDistanceCache) PutMany(_ context.Context, origin string, results map[string]ports.DistanceResult) error {
	for d, r := range results {
		c.m[origin+"|"+d] = r
	}
	return nil
}

type memGeocodeCache struct {
	m map[string]domain.Coordinates
}

func (c *memGeocodeCache) GetMany(_ context.Context, addresses []string) (map[string]domain.Coordinates, error) {
	out := map[string]domain.Coordinates{}
	for _, a := range addresses {
		if v, ok := c.m[a]; ok {
			out[a] = v
		}
	}
	return out, nil
}

func (c *memGeocodeCache) PutMany(_ context.Context, results map[string]domain.Coordinates) error {
	for a, v := range results {
		c.m[a] = v
	}
	return nil
}

func newTestProvider(t *testing.T, h http.Handler, dc ports.DistanceCache, gc ports.GeocodeCache) *ORSProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := NewORSProvider("test-key", dc, gc, ORSOptions{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Backoff:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewORSProvider: %v", err)
	}
	return p
}

func TestNewORSProviderRequiresKey(t *testing.T) {
	if _, err := NewORSProvider(" ", nil, nil, ORSOptions{}); err == nil {
		t.Fatalf("expected error for empty api key")
	}
}

func TestGetDistancesUsesMatrixAndCache(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v2/matrix/driving-car" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req matrixRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Locations) != 3 || req.Locations[0][0] != origin.Lng || req.Locations[0][1] != origin.Lat {
			t.Errorf("locations must be [lng, lat] with origin first, got %v", req.Locations)
		}

		_, _ = w.Write([]byte(`{"distances":[[1200.4, 190000.6]],"durations":[[180.2, 7200.5]]}`))
	})

	cache := &memDistanceCache{m: map[string]ports.DistanceResult{}}
	p := newTestProvider(t, h, cache, nil)

	got, err := p.GetDistances(context.Background(), origin, []domain.Coordinates{near, far, near, origin})
	if err != nil {
		t.Fatalf("GetDistances: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %v", got)
	}
	if r := got[near.Fingerprint()]; r.DistanceMeters != 1200 || r.DurationSeconds != 180 {
		t.Fatalf("near = %+v", r)
	}
	if r := got[far.Fingerprint()]; r.DistanceMeters != 190001 || r.DurationSeconds != 7201 {
		t.Fatalf("far = %+v", r)
	}

	if _, err := p.GetDistance(context.Background(), origin, far); err != nil {
		t.Fatalf("GetDistance: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected cached second lookup, got %d calls", calls.Load())
	}
}

func TestGetDistanceNoRoute(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"distances":[[null]],"durations":[[null]]}`))
	})
	cache := &memDistanceCache{m: map[string]ports.DistanceResult{}}
	p := newTestProvider(t, h, cache, nil)

	_, err := p.GetDistance(context.Background(), origin, far)
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(cache.m) != 0 {
		t.Fatalf("unreachable pairs must not be cached: %v", cache.m)
	}
}

func TestGetDistanceSameLocation(t *testing.T) {
	p := newTestProvider(t, http.NotFoundHandler(), nil, nil)

	r, err := p.GetDistance(context.Background(), origin, origin)
	if err != nil || r != (ports.DistanceResult{}) {
		t.Fatalf("expected zero result, got %+v %v", r, err)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"distances":[[10]],"durations":[[2]]}`))
	})
	p := newTestProvider(t, h, nil, nil)

	if _, err := p.GetDistance(context.Background(), origin, near); err != nil {
		t.Fatalf("GetDistance: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad coordinates", http.StatusBadRequest)
	})
	p := newTestProvider(t, h, nil, nil)

	_, err := p.GetDistance(context.Background(), origin, near)
	var he *httpStatusError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest || he.Body != "bad coordinates" {
		t.Fatalf("expected 400 httpStatusError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestGeocode(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("text") {
		case "viru 1, tallinn":
			_, _ = w.Write([]byte(`{"features":[{"geometry":{"coordinates":[24.7536,59.437]}}]}`))
		default:
			_, _ = w.Write([]byte(`{"features":[]}`))
		}
	})
	cache := &memGeocodeCache{m: map[string]domain.Coordinates{}}
	p := newTestProvider(t, h, nil, cache)
	ctx := context.Background()

	got, err := p.Geocode(ctx, "  Viru 1,   Tallinn ")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if got != origin {
		t.Fatalf("Geocode = %+v", got)
	}
	if _, err := p.Geocode(ctx, "viru 1, tallinn"); err != nil {
		t.Fatalf("cached Geocode: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected cache hit, got %d calls", calls.Load())
	}

	if _, err := p.Geocode(ctx, "nowhere"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := p.Geocode(ctx, "   "); err == nil {
		t.Fatalf("expected error for blank address")
	}
}

func TestMockDistanceProvider(t *testing.T) {
	p := NewMockDistanceProvider([]MockPair{{From: origin, To: near, Meters: 5, Seconds: 1}})

	r, err := p.GetDistance(context.Background(), origin, near)
	if err != nil || r.DistanceMeters != 5 {
		t.Fatalf("GetDistance = %+v %v", r, err)
	}
	if _, err := p.GetDistance(context.Background(), near, origin); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for reversed pair, got %v", err)
	}

	rows, _ := p.GetDistances(context.Background(), origin, []domain.Coordinates{near, far})
	if len(rows) != 1 {
		t.Fatalf("GetDistances = %v", rows)
	}
}

func TestRetryAfter(t *testing.T) {
	cases := map[string]time.Duration{
		"":                              0,
		"3":                             3 * time.Second,
		" 1 ":                           time.Second,
		"-2":                            0,
		"Wed, 21 Oct 2015 07:28:00 GMT": 0,
	}
	for in, want := range cases {
		if got := retryAfter(in); got != want {
			t.Fatalf("retryAfter(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestGetDistancesSplitsLargeMatrices(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req matrixRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Destinations) > maxMatrixDestinations {
			t.Errorf("request carries %d destinations", len(req.Destinations))
		}

		row := make([]float64, len(req.Destinations))
		for i := range row {
			row[i] = 100
		}
		_ = json.NewEncoder(w).Encode(map[string][][]float64{"distances": {row}, "durations": {row}})
	})
	p := newTestProvider(t, h, nil, nil)

	dests := make([]domain.Coordinates, 60)
	for i := range dests {
		dests[i] = domain.Coordinates{Lat: 59 + float64(i)/100, Lng: 24}
	}

	got, err := p.GetDistances(context.Background(), origin, dests)
	if err != nil {
		t.Fatalf("GetDistances: %v", err)
	}
	if len(got) != 60 {
		t.Fatalf("expected 60 results, got %d", len(got))
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 matrix requests, got %d", calls.Load())
	}
}
