package domain

// Marker colors of a point: the regular one and the one used while the
// point is spread apart from overlapping neighbours.
type PointColors struct {
	Default    string `json:"default"`
	Spiderfied string `json:"spiderfied"`
}

// PointFeature describes a marker to draw.
// ID identifies the point by business meaning (order + stop kind, route stop id),
// never by its current coordinates.
type PointFeature struct {
	ID          string
	Coordinates Coordinates
	Label       string
	Colors      PointColors
	Meta        map[string]any
}

// LineFeature describes a connection to draw between points.
// Like PointFeature, the ID is a business key, conventionally "{fromKey}::{toKey}".
type LineFeature struct {
	ID          string
	Coordinates []Coordinates
	Color       string
	Meta        map[string]any
}

// ConnectionKey joins two point keys into a line key.
func ConnectionKey(fromKey, toKey string) string {
	return fromKey + "::" + toKey
}
