package mapview

import (
	"dispatch-map-service/internal/domain"
	"math"
	"slices"
)

const (
	clusterRadius  = 60
	clusterMaxZoom = 16
)

// Cluster stands in for several nearby points drawn as a single marker.
type Cluster struct {
	ID        string
	Position  domain.Coordinates
	Count     int
	PointKeys []string
	Content   string

	destructor func()
}

type clicker interface {
	Click(p *Point)
}

// PointClusterer groups the points handed to it into clusters at the
// current zoom. Points left alone by clustering are attached individually.
type PointClusterer struct {
	m        *Map
	registry *PointsRegistry
	capturer *SpiderfiedPointsCapturer
	spider   clicker
	build    ContentBuilder

	minPoints int
	managed   []*Point
	clusters  []*Cluster
	expanded  map[string]*Point

	transitioning bool
}

func NewPointClusterer(m *Map, registry *PointsRegistry, capturer *SpiderfiedPointsCapturer, spider clicker, build ContentBuilder, minPoints int) *PointClusterer {
	if build == nil {
		build = DefaultContentBuilder
	}
	return &PointClusterer{
		m:         m,
		registry:  registry,
		capturer:  capturer,
		spider:    spider,
		build:     build,
		minPoints: minPoints,
		expanded:  make(map[string]*Point),
	}
}

func (c *PointClusterer) IsExpanded() bool { return len(c.expanded) > 0 }

// IsTransitioning reports whether a cluster is being expanded right now.
func (c *PointClusterer) IsTransitioning() bool { return c.transitioning }

func (c *PointClusterer) GetExpandedPointKeys() []string {
	keys := make([]string, 0, len(c.expanded))
	for k := range c.expanded {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (c *PointClusterer) Clusters() []*Cluster { return slices.Clone(c.clusters) }

func (c *PointClusterer) MinPoints() int { return c.minPoints }

// AddPoints hands points over to clustering. Points already on the map,
// already managed or belonging to an expanded cluster are skipped.
func (c *PointClusterer) AddPoints(points []*Point) {
	for _, p := range points {
		if p.Attached() || slices.Contains(c.managed, p) {
			continue
		}
		if key, ok := c.registry.PointKey(p); ok {
			if _, exp := c.expanded[key]; exp {
				continue
			}
		}
		c.managed = append(c.managed, p)
	}
}

func (c *PointClusterer) RemovePoints(points []*Point) {
	c.managed = slices.DeleteFunc(c.managed, func(p *Point) bool {
		if slices.Contains(points, p) {
			p.SetAttached(false)
			return true
		}
		return false
	})

	for k, p := range c.expanded {
		if slices.Contains(points, p) {
			delete(c.expanded, k)
		}
	}
}

// Clear detaches every managed point and drops all clusters.
func (c *PointClusterer) Clear() {
	for _, p := range c.managed {
		p.SetAttached(false)
	}
	c.managed = nil
	c.releaseClusters()
}

func (c *PointClusterer) releaseClusters() {
	for _, cl := range c.clusters {
		if cl.destructor != nil {
			cl.destructor()
		}
	}
	c.clusters = nil
}

// Render recomputes clusters for the managed points.
func (c *PointClusterer) Render() {
	c.releaseClusters()

	zoom := c.m.Zoom()
	minPoints := max(c.minPoints, 2)
	pixels := make([][2]float64, len(c.managed))
	for i, p := range c.managed {
		px := worldPixel(p.Position(), zoom)
		pixels[i] = [2]float64{px[0], px[1]}
	}

	assigned := make([]bool, len(c.managed))
	for i, seed := range c.managed {
		if assigned[i] {
			continue
		}

		group := []int{i}
		if zoom <= clusterMaxZoom {
			for j := i + 1; j < len(c.managed); j++ {
				if assigned[j] {
					continue
				}
				if math.Hypot(pixels[j][0]-pixels[i][0], pixels[j][1]-pixels[i][1]) <= clusterRadius {
					group = append(group, j)
				}
			}
		}

		if len(group) < minPoints {
			assigned[i] = true
			seed.SetAttached(true)
			continue
		}

		cl := &Cluster{Count: len(group)}
		var lat, lng float64
		for _, idx := range group {
			assigned[idx] = true
			p := c.managed[idx]
			p.SetAttached(false)
			lat += p.Position().Lat
			lng += p.Position().Lng
			if key, ok := c.registry.PointKey(p); ok {
				cl.PointKeys = append(cl.PointKeys, key)
			}
		}
		cl.Position = domain.Coordinates{Lat: lat / float64(len(group)), Lng: lng / float64(len(group))}
		if len(cl.PointKeys) > 0 {
			cl.ID = "c:" + cl.PointKeys[0]
		}
		cl.Content, cl.destructor = c.build(clusterLabel(cl.Count), clusterColor)
		c.clusters = append(c.clusters, cl)
	}
}

func (c *PointClusterer) cluster(id string) (*Cluster, bool) {
	for _, cl := range c.clusters {
		if cl.ID == id {
			return cl, true
		}
	}
	return nil, false
}

// ExpandCluster takes the points of a cluster out of clustering, draws them
// individually and opens them in the spiderfier. It reports whether the
// cluster exists.
func (c *PointClusterer) ExpandCluster(id string) bool {
	cl, ok := c.cluster(id)
	if !ok {
		return false
	}
	keys := slices.Clone(cl.PointKeys)

	c.transitioning = true
	defer func() { c.transitioning = false }()

	c.CollapseExpanded()

	points := make([]*Point, 0, len(keys))
	for _, k := range keys {
		if p, ok := c.registry.Get(k); ok {
			points = append(points, p)
		}
	}
	if len(points) == 0 {
		return true
	}

	c.RemovePoints(points)
	for _, p := range points {
		p.SetAttached(true)
	}
	c.spider.Click(points[0])

	expanded := make(map[string]*Point, len(points))
	for _, p := range points {
		if k, ok := c.registry.PointKey(p); ok {
			expanded[k] = p
		}
	}
	c.expanded = expanded

	c.Render()
	return true
}

// CollapseExpanded returns the points of an expanded cluster to clustering,
// committing positions that were held back while they were spiderfied.
func (c *PointClusterer) CollapseExpanded() {
	if !c.IsExpanded() {
		return
	}

	keys := c.GetExpandedPointKeys()
	points := make([]*Point, 0, len(keys))
	for _, k := range keys {
		points = append(points, c.expanded[k])
	}
	clear(c.expanded)

	for _, p := range points {
		p.SetAttached(false)
	}

	for _, k := range c.capturer.GetSpiderfiedPointKeys() {
		pos, ok := c.registry.GetPendingUpdatePointPosition(k)
		if !ok {
			continue
		}
		c.registry.UpdatePosition(k, pos)
		c.registry.DeletePendingUpdatePointPosition(k)
	}

	c.AddPoints(points)
	c.Render()
}

// SetMinPoints rebuilds clustering from every registered point.
func (c *PointClusterer) SetMinPoints(minPoints int) {
	c.minPoints = minPoints

	c.capturer.ClearAll()
	if c.IsExpanded() {
		c.CollapseExpanded()
	}
	points := c.registry.GetAll()

	c.Destroy()
	for _, p := range points {
		p.SetAttached(false)
	}
	c.AddPoints(points)
	c.Render()
}

func (c *PointClusterer) Destroy() {
	c.Clear()
}
