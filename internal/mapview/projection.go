package mapview

import (
	"dispatch-map-service/internal/domain"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	tileSize = 256
	minZoom  = 0
	maxZoom  = 22
)

// worldPixel projects c into Web Mercator world pixel space at zoom.
func worldPixel(c domain.Coordinates, zoom int) orb.Point {
	f := maptile.Fraction(c.Point(), maptile.Zoom(clampZoom(zoom)))
	return orb.Point{f[0] * tileSize, f[1] * tileSize}
}

// fromWorldPixel is the inverse of worldPixel.
func fromWorldPixel(p orb.Point, zoom int) domain.Coordinates {
	scale := tileSize * math.Exp2(float64(clampZoom(zoom)))
	lng := p[0]/scale*360 - 180
	n := math.Pi - 2*math.Pi*p[1]/scale
	lat := math.Atan(math.Sinh(n)) * 180 / math.Pi
	return domain.Coordinates{Lat: lat, Lng: lng}
}

func pixelDistance(a, b domain.Coordinates, zoom int) float64 {
	pa := worldPixel(a, zoom)
	pb := worldPixel(b, zoom)
	return math.Hypot(pa[0]-pb[0], pa[1]-pb[1])
}

// viewportBounds returns the area visible in a width x height viewport centered on center.
func viewportBounds(center domain.Coordinates, zoom, width, height int) orb.Bound {
	c := worldPixel(center, zoom)
	halfW := float64(width) / 2
	halfH := float64(height) / 2

	nw := fromWorldPixel(orb.Point{c[0] - halfW, c[1] - halfH}, zoom)
	se := fromWorldPixel(orb.Point{c[0] + halfW, c[1] + halfH}, zoom)

	return domain.NewBounds(
		math.Max(se.Lat, -90),
		math.Max(nw.Lng, -180),
		math.Min(nw.Lat, 90),
		math.Min(se.Lng, 180),
	)
}

func clampZoom(z int) int {
	if z < minZoom {
		return minZoom
	}
	if z > maxZoom {
		return maxZoom
	}
	return z
}
