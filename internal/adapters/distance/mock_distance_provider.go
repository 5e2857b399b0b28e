package distance

import (
	"context"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/ports"
)

// MockPair is a canned result between two locations.
type MockPair struct {
	From, To domain.Coordinates
	Meters   int
	Seconds  int
}

// MockDistanceProvider serves canned distances keyed by coordinate fingerprints.
// Unknown pairs yield ports.ErrNotFound.
type MockDistanceProvider struct {
	m map[string]ports.DistanceResult
}

var _ ports.DistanceMatrixProvider = (*MockDistanceProvider)(nil)

func NewMockDistanceProvider(pairs []MockPair) *MockDistanceProvider {
	m := make(map[string]ports.DistanceResult, len(pairs))
	for _, p := range pairs {
		m[pairKey(p.From, p.To)] = ports.DistanceResult{DistanceMeters: p.Meters, DurationSeconds: p.Seconds}
	}
	return &MockDistanceProvider{m: m}
}

func pairKey(from, to domain.Coordinates) string {
	return from.Fingerprint() + "|" + to.Fingerprint()
}

func (p *MockDistanceProvider) GetDistance(_ context.Context, origin, destination domain.Coordinates) (ports.DistanceResult, error) {
	r, ok := p.m[pairKey(origin, destination)]
	if !ok {
		return ports.DistanceResult{}, ports.ErrNotFound
	}
	return r, nil
}

func (p *MockDistanceProvider) GetDistances(
	ctx context.Context,
	origin domain.Coordinates,
	destinations []domain.Coordinates,
) (map[string]ports.DistanceResult, error) {
	out := make(map[string]ports.DistanceResult, len(destinations))
	for _, d := range destinations {
		if r, err := p.GetDistance(ctx, origin, d); err == nil {
			out[d.Fingerprint()] = r
		}
	}
	return out, nil
}
