package mapview

import (
	"dispatch-map-service/internal/domain"

	"github.com/paulmach/orb"
)

type PointView struct {
	Key             string
	Position        domain.Coordinates
	DisplayPosition domain.Coordinates
	PendingPosition *domain.Coordinates
	Label           string
	Color           string
	Content         string
	Visible         bool
	Spiderfied      bool
}

type ConnectionView struct {
	Key    string
	Path   []domain.Coordinates
	Color  string
	Weight int
	Shown  bool
}

type ClusterView struct {
	ID        string
	Position  domain.Coordinates
	Count     int
	PointKeys []string
	Content   string
}

// Snapshot is the rendered state of a map.
type Snapshot struct {
	Center             domain.Coordinates
	Zoom               int
	Bounds             orb.Bound
	MaxPoints          int
	MinPointsInCluster int
	TooManyPoints      bool
	Points             []PointView
	Connections        []ConnectionView
	Clusters           []ClusterView
	Legs               []Leg
	SpiderfiedKeys     []string
	ExpandedKeys       []string
}

func (w *MapWithMarkers) Snapshot() Snapshot {
	s := Snapshot{
		Center:             w.m.Center(),
		Zoom:               w.m.Zoom(),
		Bounds:             w.m.Bounds(),
		MaxPoints:          w.maxPoints,
		MinPointsInCluster: w.clusterer.MinPoints(),
		TooManyPoints:      w.tooManyPoints,
		Legs:               w.spider.Legs(),
		SpiderfiedKeys:     w.capturer.GetSpiderfiedPointKeys(),
		ExpandedKeys:       w.clusterer.GetExpandedPointKeys(),
	}

	for _, k := range w.points.Keys() {
		p, _ := w.points.Get(k)
		v := PointView{
			Key:             k,
			Position:        p.Position(),
			DisplayPosition: w.spider.DisplayPosition(p),
			Label:           p.Title(),
			Color:           p.CurrentColor(),
			Content:         p.Content(),
			Visible:         p.Attached(),
			Spiderfied:      w.capturer.IsSpiderfied(k),
		}
		if pending, ok := w.points.GetPendingUpdatePointPosition(k); ok {
			v.PendingPosition = &pending
		}
		s.Points = append(s.Points, v)
	}

	for _, k := range w.connections.Keys() {
		c, _ := w.connections.Get(k)
		s.Connections = append(s.Connections, ConnectionView{
			Key:    k,
			Path:   c.Path(),
			Color:  c.Color(),
			Weight: c.Weight(),
			Shown:  c.Shown(),
		})
	}

	for _, cl := range w.clusterer.Clusters() {
		s.Clusters = append(s.Clusters, ClusterView{
			ID:        cl.ID,
			Position:  cl.Position,
			Count:     cl.Count,
			PointKeys: cl.PointKeys,
			Content:   cl.Content,
		})
	}

	return s
}
