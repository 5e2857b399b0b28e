package ports

import (
	"context"
	"dispatch-map-service/internal/domain"
)

// Geocoder resolves a free-form address into coordinates.
// An address without any match yields ErrNotFound.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (domain.Coordinates, error)
}
