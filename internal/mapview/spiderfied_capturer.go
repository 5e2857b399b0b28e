package mapview

import (
	"slices"
	"weak"
)

// Overlapper resolves overlapping markers on one map.
type Overlapper interface {
	AddMarker(p *Point)
	RemoveMarker(p *Point)
	Unspiderfy()
	OnSpiderfy(fn func([]*Point))
	OnUnspiderfy(fn func([]*Point))
}

// SpiderfiedPointsCapturer tracks which point keys are currently spread apart
// by an Overlapper. It does not own the points it is given.
type SpiderfiedPointsCapturer struct {
	overlapper  Overlapper
	points      map[string]*Point
	keysByPoint map[weak.Pointer[Point]]string
	spiderfied  map[string]struct{}

	spiderfyListeners   []func(keys []string)
	unspiderfyListeners []func(keys []string)
}

func NewSpiderfiedPointsCapturer(overlapper Overlapper) *SpiderfiedPointsCapturer {
	c := &SpiderfiedPointsCapturer{
		overlapper:  overlapper,
		points:      make(map[string]*Point),
		keysByPoint: make(map[weak.Pointer[Point]]string),
		spiderfied:  make(map[string]struct{}),
	}
	overlapper.OnSpiderfy(c.handleSpiderfy)
	overlapper.OnUnspiderfy(c.handleUnspiderfy)
	return c
}

func (c *SpiderfiedPointsCapturer) OnSpiderfy(fn func(keys []string)) {
	c.spiderfyListeners = append(c.spiderfyListeners, fn)
}

func (c *SpiderfiedPointsCapturer) OnUnspiderfy(fn func(keys []string)) {
	c.unspiderfyListeners = append(c.unspiderfyListeners, fn)
}

func (c *SpiderfiedPointsCapturer) IsSpiderfied(key string) bool {
	_, ok := c.spiderfied[key]
	return ok
}

func (c *SpiderfiedPointsCapturer) HasSpiderfied() bool {
	return len(c.spiderfied) > 0
}

// GetSpiderfiedPointKeys returns the spiderfied keys, sorted.
func (c *SpiderfiedPointsCapturer) GetSpiderfiedPointKeys() []string {
	keys := make([]string, 0, len(c.spiderfied))
	for k := range c.spiderfied {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SetSpiderfiedPointKeys replaces the spiderfied set. Keys that are not
// registered are ignored.
func (c *SpiderfiedPointsCapturer) SetSpiderfiedPointKeys(keys []string) {
	next := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := c.points[k]; ok {
			next[k] = struct{}{}
		}
	}
	c.spiderfied = next
}

func (c *SpiderfiedPointsCapturer) Add(key string, p *Point) {
	if old, ok := c.points[key]; ok && old != p {
		c.Remove(key)
	}
	c.points[key] = p
	c.keysByPoint[weak.Make(p)] = key
	c.overlapper.AddMarker(p)
}

func (c *SpiderfiedPointsCapturer) Remove(key string) {
	delete(c.spiderfied, key)

	p, ok := c.points[key]
	if !ok {
		return
	}
	delete(c.points, key)
	delete(c.keysByPoint, weak.Make(p))
	c.overlapper.RemoveMarker(p)
}

// ClearAll forgets the spiderfied keys and collapses any open group.
// Unspiderfy listeners see an empty key list.
func (c *SpiderfiedPointsCapturer) ClearAll() {
	clear(c.spiderfied)
	c.overlapper.Unspiderfy()
}

func (c *SpiderfiedPointsCapturer) ClearSpiderfied() {
	c.ClearAll()
}

func (c *SpiderfiedPointsCapturer) keyOf(p *Point) (string, bool) {
	k, ok := c.keysByPoint[weak.Make(p)]
	return k, ok
}

func (c *SpiderfiedPointsCapturer) handleSpiderfy(points []*Point) {
	clear(c.spiderfied)
	for _, p := range points {
		if k, ok := c.keyOf(p); ok {
			c.spiderfied[k] = struct{}{}
		}
	}

	keys := c.GetSpiderfiedPointKeys()
	for _, fn := range c.spiderfyListeners {
		fn(keys)
	}
}

func (c *SpiderfiedPointsCapturer) handleUnspiderfy([]*Point) {
	keys := c.GetSpiderfiedPointKeys()
	clear(c.spiderfied)
	for _, fn := range c.unspiderfyListeners {
		fn(keys)
	}
}
