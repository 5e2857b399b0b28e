package mapview

import (
	"dispatch-map-service/internal/domain"
	"slices"

	"github.com/paulmach/orb"
)

// Point is a rendered marker. Once added to a PointsRegistry it is owned by it.
type Point struct {
	position     domain.Coordinates
	title        string
	colors       domain.PointColors
	currentColor string
	content      string
	attached     bool
	destructor   func()
}

func (p *Point) Position() domain.Coordinates { return p.position }
func (p *Point) Title() string                { return p.title }
func (p *Point) Colors() domain.PointColors   { return p.colors }
func (p *Point) CurrentColor() string         { return p.currentColor }
func (p *Point) SetCurrentColor(color string) { p.currentColor = color }
func (p *Point) Content() string              { return p.content }

// Attached reports whether the marker is currently drawn on the map.
func (p *Point) Attached() bool      { return p.attached }
func (p *Point) SetAttached(on bool) { p.attached = on }
func (p *Point) runDestructor() {
	if p.destructor != nil {
		d := p.destructor
		p.destructor = nil
		d()
	}
}

// PointsRegistry owns the markers currently known to a map, keyed by point key.
// It is not safe for concurrent use.
type PointsRegistry struct {
	points       map[string]*Point
	keys         []string
	keysByPoint  map[*Point]string
	pending      map[string]domain.Coordinates
	buildContent ContentBuilder
}

func NewPointsRegistry(build ContentBuilder) *PointsRegistry {
	if build == nil {
		build = DefaultContentBuilder
	}
	return &PointsRegistry{
		points:       make(map[string]*Point),
		keysByPoint:  make(map[*Point]string),
		pending:      make(map[string]domain.Coordinates),
		buildContent: build,
	}
}

func (r *PointsRegistry) Get(key string) (*Point, bool) {
	p, ok := r.points[key]
	return p, ok
}

// Add registers point under key. A different point already registered under
// the same key is deleted first.
func (r *PointsRegistry) Add(key string, point *Point) {
	if old, ok := r.points[key]; ok {
		if old == point {
			return
		}
		r.Delete(key)
	}
	r.points[key] = point
	r.keys = append(r.keys, key)
	r.keysByPoint[point] = key
}

func (r *PointsRegistry) BuildPoint(coordinates domain.Coordinates, colors domain.PointColors, label string) *Point {
	currentColor := colors.Default
	content, destructor := r.buildContent(label, currentColor)

	return &Point{
		position:     coordinates,
		title:        label,
		colors:       colors,
		currentColor: currentColor,
		content:      content,
		destructor:   destructor,
	}
}

// RefreshPointContent rebuilds the content of point from its title and
// current color, releasing the previous content.
func (r *PointsRegistry) RefreshPointContent(point *Point) {
	content, destructor := r.buildContent(point.title, point.currentColor)

	point.runDestructor()
	point.content = content
	point.destructor = destructor
}

// GetAll returns the registered points in insertion order.
func (r *PointsRegistry) GetAll() []*Point {
	out := make([]*Point, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.points[k])
	}
	return out
}

func (r *PointsRegistry) Keys() []string {
	return slices.Clone(r.keys)
}

func (r *PointsRegistry) Len() int { return len(r.keys) }

func (r *PointsRegistry) GetPointsExcept(excluded map[string]struct{}) map[string]*Point {
	out := make(map[string]*Point)
	for _, k := range r.keys {
		if _, skip := excluded[k]; !skip {
			out[k] = r.points[k]
		}
	}
	return out
}

func (r *PointsRegistry) GetPointsWithinArea(area orb.Bound) []*Point {
	out := make([]*Point, 0)
	for _, k := range r.keys {
		p := r.points[k]
		if domain.BoundsContain(area, p.position) {
			out = append(out, p)
		}
	}
	return out
}

func (r *PointsRegistry) PointKey(point *Point) (string, bool) {
	k, ok := r.keysByPoint[point]
	return k, ok
}

func (r *PointsRegistry) UpdatePosition(key string, position domain.Coordinates) {
	p, ok := r.points[key]
	if !ok {
		return
	}
	p.position = position
}

// Delete detaches the point, forgets its pending position and runs its destructor.
func (r *PointsRegistry) Delete(key string) {
	p, ok := r.points[key]
	if !ok {
		return
	}

	delete(r.points, key)
	delete(r.keysByPoint, p)
	if i := slices.Index(r.keys, key); i >= 0 {
		r.keys = slices.Delete(r.keys, i, i+1)
	}
	r.DeletePendingUpdatePointPosition(key)
	p.attached = false
	p.runDestructor()
}

func (r *PointsRegistry) GetPendingUpdatePointPosition(key string) (domain.Coordinates, bool) {
	pos, ok := r.pending[key]
	return pos, ok
}

func (r *PointsRegistry) UpdatePendingUpdatePointPosition(key string, position domain.Coordinates) {
	r.pending[key] = position
}

func (r *PointsRegistry) DeletePendingUpdatePointPosition(key string) {
	delete(r.pending, key)
}

func (r *PointsRegistry) ClearPendingUpdatePointPositions() {
	clear(r.pending)
}

// Destroy deletes every point, running each destructor.
func (r *PointsRegistry) Destroy() {
	for _, k := range slices.Clone(r.keys) {
		r.Delete(k)
	}
}
