package domain

import (
	"math"
	"strconv"

	"github.com/paulmach/orb"
)

// Immutable geographic coordinates (latitude, longitude).
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CoordinatesFromPoint converts an orb point ([lng, lat]) into coordinates.
func CoordinatesFromPoint(p orb.Point) Coordinates {
	return Coordinates{Lat: p.Lat(), Lng: p.Lon()}
}

// Return coordinates as [lon, lat] for external API compatibility.
func (c Coordinates) CoordsToList() []float64 { return []float64{c.Lng, c.Lat} }

// Point returns the coordinates as an orb point, longitude first.
func (c Coordinates) Point() orb.Point { return orb.Point{c.Lng, c.Lat} }

// Fingerprint renders "lat,lng" rounded to 6 decimals with trailing zeros dropped.
// Two coordinates with the same fingerprint are treated as the same location.
func (c Coordinates) Fingerprint() string {
	return formatCoordinate(c.Lat) + "," + formatCoordinate(c.Lng)
}

// Valid reports whether the coordinates lie within WGS84 limits.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func formatCoordinate(v float64) string {
	rounded := math.Round(v*1e6) / 1e6
	if rounded == 0 {
		rounded = 0 // drop negative zero
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
