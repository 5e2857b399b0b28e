package domain

import "github.com/paulmach/orb"

// NewBounds builds a viewport bounding box from its edges.
// Viewports crossing the antimeridian are not supported.
func NewBounds(south, west, north, east float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{west, south},
		Max: orb.Point{east, north},
	}
}

// BoundsContain reports whether c lies within b, edges included.
func BoundsContain(b orb.Bound, c Coordinates) bool {
	return b.Contains(c.Point())
}
