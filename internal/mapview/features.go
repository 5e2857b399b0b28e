package mapview

import (
	"dispatch-map-service/internal/domain"
	"errors"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const defaultLineColor = "#2563eb"

// FeatureError points at the offending member of a feature collection.
type FeatureError struct {
	Index   int
	Field   string
	Message string
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("feature %d: %s: %s", e.Index, e.Field, e.Message)
}

// Pointer returns the JSON pointer of the offending member.
func (e *FeatureError) Pointer() string {
	return "/features/" + strconv.Itoa(e.Index) + "/" + e.Field
}

// FeaturesFromGeoJSON splits a collection into point and line features.
// Feature ids are required and must be unique.
func FeaturesFromGeoJSON(fc *geojson.FeatureCollection) ([]domain.PointFeature, []domain.LineFeature, error) {
	if fc == nil {
		return nil, nil, nil
	}

	var points []domain.PointFeature
	var lines []domain.LineFeature
	seen := make(map[string]struct{}, len(fc.Features))

	for i, f := range fc.Features {
		id, ok := featureID(f.ID)
		if !ok {
			return nil, nil, &FeatureError{Index: i, Field: "id", Message: "is required"}
		}
		if _, dup := seen[id]; dup {
			return nil, nil, &FeatureError{Index: i, Field: "id", Message: fmt.Sprintf("duplicate id %q", id)}
		}
		seen[id] = struct{}{}

		meta, _ := f.Properties["meta"].(map[string]any)

		switch g := f.Geometry.(type) {
		case orb.Point:
			c := domain.CoordinatesFromPoint(g)
			if !c.Valid() {
				return nil, nil, &FeatureError{Index: i, Field: "geometry", Message: "coordinates out of range"}
			}
			colors, err := pointColors(f.Properties)
			if err != nil {
				return nil, nil, &FeatureError{Index: i, Field: "properties/colors", Message: err.Error()}
			}
			points = append(points, domain.PointFeature{
				ID:          id,
				Coordinates: c,
				Label:       f.Properties.MustString("label", ""),
				Colors:      colors,
				Meta:        meta,
			})

		case orb.LineString:
			if len(g) < 2 {
				return nil, nil, &FeatureError{Index: i, Field: "geometry", Message: "a line needs at least two positions"}
			}
			path := make([]domain.Coordinates, len(g))
			for j, p := range g {
				path[j] = domain.CoordinatesFromPoint(p)
				if !path[j].Valid() {
					return nil, nil, &FeatureError{Index: i, Field: "geometry", Message: "coordinates out of range"}
				}
			}
			lines = append(lines, domain.LineFeature{
				ID:          id,
				Coordinates: path,
				Color:       f.Properties.MustString("color", defaultLineColor),
				Meta:        meta,
			})

		case nil:
			return nil, nil, &FeatureError{Index: i, Field: "geometry", Message: "is required"}

		default:
			return nil, nil, &FeatureError{Index: i, Field: "geometry", Message: "unsupported type " + g.GeoJSONType()}
		}
	}

	return points, lines, nil
}

// FeatureCollection is the inverse of FeaturesFromGeoJSON.
func FeatureCollection(points []domain.PointFeature, lines []domain.LineFeature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, p := range points {
		f := geojson.NewFeature(p.Coordinates.Point())
		f.ID = p.ID
		f.Properties["label"] = p.Label
		f.Properties["colors"] = map[string]any{
			"default":    p.Colors.Default,
			"spiderfied": p.Colors.Spiderfied,
		}
		f.Properties["meta"] = metaOrEmpty(p.Meta)
		fc.Append(f)
	}

	for _, l := range lines {
		ls := make(orb.LineString, len(l.Coordinates))
		for i, c := range l.Coordinates {
			ls[i] = c.Point()
		}
		f := geojson.NewFeature(ls)
		f.ID = l.ID
		f.Properties["color"] = l.Color
		f.Properties["meta"] = metaOrEmpty(l.Meta)
		fc.Append(f)
	}

	return fc
}

func featureID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	default:
		return "", false
	}
}

func pointColors(props geojson.Properties) (domain.PointColors, error) {
	raw, ok := props["colors"].(map[string]any)
	if !ok {
		return domain.PointColors{}, errors.New("is required")
	}

	def, _ := raw["default"].(string)
	if def == "" {
		return domain.PointColors{}, errors.New("default color is required")
	}
	spider, _ := raw["spiderfied"].(string)
	if spider == "" {
		spider = def
	}
	return domain.PointColors{Default: def, Spiderfied: spider}, nil
}

func metaOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
