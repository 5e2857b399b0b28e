package ports

import (
	"context"
	"dispatch-map-service/internal/domain"
	"errors"
)

// ErrNotFound reports a lookup that completed but produced no data
// (no route between two points, no geocode match).
var ErrNotFound = errors.New("not found")

// Distance and travel duration between two locations.
type DistanceResult struct {
	DistanceMeters  int
	DurationSeconds int
}

// Contract for retrieving travel distance and duration between locations.
type DistanceProvider interface {
	// Return travel distance and estimated driving duration between two locations.
	GetDistance(ctx context.Context, origin, destination domain.Coordinates) (DistanceResult, error)
}
