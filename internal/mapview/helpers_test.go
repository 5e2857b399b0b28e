package mapview

import (
	"context"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/ports"
	"fmt"
	"sync"
)

var tallinn = domain.Coordinates{Lat: 59.437, Lng: 24.7536}

var testColors = domain.PointColors{Default: "#2563eb", Spiderfied: "#f97316"}

// contentLedger builds numbered contents and counts destructor calls per content.
type contentLedger struct {
	mu        sync.Mutex
	built     int
	destroyed map[int]int
}

func newContentLedger() *contentLedger {
	return &contentLedger{destroyed: make(map[int]int)}
}

func (l *contentLedger) build(label, color string) (string, func()) {
	l.mu.Lock()
	n := l.built
	l.built++
	l.mu.Unlock()

	return fmt.Sprintf("%d:%s:%s", n, label, color), func() {
		l.mu.Lock()
		l.destroyed[n]++
		l.mu.Unlock()
	}
}

func (l *contentLedger) live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	live := 0
	for i := 0; i < l.built; i++ {
		if l.destroyed[i] == 0 {
			live++
		}
	}
	return live
}

// stubDistances answers lookups by destination fingerprint.
type stubDistances struct {
	mu        sync.Mutex
	durations map[string]int
	err       error
	calls     int
}

func (s *stubDistances) GetDistance(_ context.Context, _, destination domain.Coordinates) (ports.DistanceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return ports.DistanceResult{}, s.err
	}
	d, ok := s.durations[destination.Fingerprint()]
	if !ok {
		return ports.DistanceResult{}, ports.ErrNotFound
	}
	return ports.DistanceResult{DistanceMeters: d * 10, DurationSeconds: d}, nil
}

func offset(c domain.Coordinates, dLat, dLng float64) domain.Coordinates {
	return domain.Coordinates{Lat: c.Lat + dLat, Lng: c.Lng + dLng}
}

func pointFeature(id string, c domain.Coordinates) domain.PointFeature {
	return domain.PointFeature{ID: id, Coordinates: c, Label: id, Colors: testColors}
}
