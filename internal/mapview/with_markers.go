package mapview

import (
	"context"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/ports"
	"slices"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

const drivingTimeConcurrency = 4

type MarkerClickHandler func(feature domain.PointFeature)

type PointsUpdatedHandler func(maxPoints int, tooManyPoints bool)

type Options struct {
	// MaxPoints caps the number of point features in view before markers,
	// clusters and connections are withheld. Zero means no cap.
	MaxPoints          int
	MinPointsInCluster int
	Distances          ports.DistanceProvider
	ContentBuilder     ContentBuilder
	Spiderfier         *SpiderfierOptions

	OnMarkerClick   MarkerClickHandler
	OnPointsUpdated PointsUpdatedHandler
}

// MapWithMarkers keeps the markers, clusters and connections of one Map in
// line with the latest feature set.
type MapWithMarkers struct {
	m           *Map
	points      *PointsRegistry
	connections *ConnectionsRegistry
	spider      *Spiderfier
	capturer    *SpiderfiedPointsCapturer
	clusterer   *PointClusterer

	pointFeatures []domain.PointFeature
	lineFeatures  []domain.LineFeature
	featureByKey  map[string]domain.PointFeature

	maxPoints     int
	tooManyPoints bool

	onMarkerClick   MarkerClickHandler
	onPointsUpdated PointsUpdatedHandler
}

func NewMapWithMarkers(m *Map, opts Options) *MapWithMarkers {
	spiderOpts := DefaultSpiderfierOptions()
	if opts.Spiderfier != nil {
		spiderOpts = *opts.Spiderfier
	}

	points := NewPointsRegistry(opts.ContentBuilder)
	spider := NewSpiderfier(m, spiderOpts)
	capturer := NewSpiderfiedPointsCapturer(spider)

	w := &MapWithMarkers{
		m:               m,
		points:          points,
		connections:     NewConnectionsRegistry(opts.Distances),
		spider:          spider,
		capturer:        capturer,
		clusterer:       NewPointClusterer(m, points, capturer, spider, opts.ContentBuilder, opts.MinPointsInCluster),
		featureByKey:    make(map[string]domain.PointFeature),
		maxPoints:       opts.MaxPoints,
		onMarkerClick:   opts.OnMarkerClick,
		onPointsUpdated: opts.OnPointsUpdated,
	}
	w.init()
	return w
}

func (w *MapWithMarkers) init() {
	w.m.AddListener(EventIdle, w.SyncViewportRender)

	w.capturer.OnSpiderfy(func(keys []string) {
		w.capturer.SetSpiderfiedPointKeys(keys)
	})

	w.capturer.OnUnspiderfy(func(keys []string) {
		// collapsing here while a cluster expands would undo the expansion
		if w.clusterer.IsTransitioning() {
			return
		}
		w.applyPendingPositions(keys)
		w.clusterer.CollapseExpanded()
	})

	w.spider.OnClick(func(p *Point) {
		if w.onMarkerClick == nil {
			return
		}
		key, ok := w.points.PointKey(p)
		if !ok {
			return
		}
		if f, ok := w.featureByKey[key]; ok {
			w.onMarkerClick(f)
		}
	})

	w.spider.OnFormat(func(p *Point, status MarkerStatus) {
		// Points already dropped from the registry have no content to refresh.
		if _, ok := w.points.PointKey(p); !ok {
			return
		}
		if status == MarkerSpiderfied {
			p.SetCurrentColor(p.Colors().Spiderfied)
		} else {
			p.SetCurrentColor(p.Colors().Default)
		}
		w.points.RefreshPointContent(p)
	})
}

func (w *MapWithMarkers) applyPendingPositions(keys []string) {
	for _, k := range keys {
		pos, ok := w.points.GetPendingUpdatePointPosition(k)
		if !ok {
			continue
		}
		w.points.UpdatePosition(k, pos)
		w.points.DeletePendingUpdatePointPosition(k)
	}
}

// UpdateMap reconciles markers and connections with a new feature set and
// re-renders the viewport.
func (w *MapWithMarkers) UpdateMap(points []domain.PointFeature, lines []domain.LineFeature) {
	w.pointFeatures = slices.Clone(points)
	w.lineFeatures = slices.Clone(lines)

	w.updatePoints()
	w.updateConnections()
	w.SyncViewportRender()
}

func (w *MapWithMarkers) updatePoints() {
	needed := make(map[string]struct{}, len(w.pointFeatures))
	clear(w.featureByKey)

	for _, f := range w.pointFeatures {
		needed[f.ID] = struct{}{}
		w.featureByKey[f.ID] = f

		old, ok := w.points.Get(f.ID)
		if !ok {
			p := w.points.BuildPoint(f.Coordinates, f.Colors, f.Label)
			w.points.Add(f.ID, p)
			w.capturer.Add(f.ID, p)
			continue
		}

		w.updatePointAppearance(f.ID, old, f)
		w.updatePointPositionIfNotIdentical(f.ID, old, f.Coordinates)
	}

	w.removeUnneededPoints(needed)
}

func (w *MapWithMarkers) updatePointAppearance(key string, p *Point, f domain.PointFeature) {
	if p.title == f.Label && p.colors == f.Colors {
		return
	}
	p.title = f.Label
	p.colors = f.Colors
	if w.capturer.IsSpiderfied(key) {
		p.currentColor = f.Colors.Spiderfied
	} else {
		p.currentColor = f.Colors.Default
	}
	w.points.RefreshPointContent(p)
}

// Positions of spiderfied points are held back until they collapse.
func (w *MapWithMarkers) updatePointPositionIfNotIdentical(key string, p *Point, c domain.Coordinates) {
	if p.Position() == c {
		return
	}

	if w.capturer.IsSpiderfied(key) {
		w.points.UpdatePendingUpdatePointPosition(key, c)
		return
	}
	w.points.UpdatePosition(key, c)
	w.clusterer.Render()
}

func (w *MapWithMarkers) removeUnneededPoints(needed map[string]struct{}) {
	unneeded := w.points.GetPointsExcept(needed)
	if len(unneeded) == 0 {
		return
	}

	removable := make([]*Point, 0, len(unneeded))
	for _, p := range unneeded {
		removable = append(removable, p)
	}
	w.clusterer.RemovePoints(removable)

	for k := range unneeded {
		w.capturer.Remove(k)
		w.points.Delete(k)
	}

	w.clusterer.Render()
}

func (w *MapWithMarkers) updateConnections() {
	needed := make(map[string]struct{}, len(w.lineFeatures))

	for _, f := range w.lineFeatures {
		needed[f.ID] = struct{}{}

		if _, ok := w.connections.Get(f.ID); !ok {
			w.connections.Add(f.ID, w.connections.BuildConnection(f.Coordinates, f.Color))
			continue
		}
		w.connections.UpdateConnectionIfNotIdentical(f.ID, f.Coordinates, f.Color)
	}

	w.connections.DeleteUnneededConnections(needed)
}

func (w *MapWithMarkers) countVisiblePointFeatures(area orb.Bound) int {
	n := 0
	for _, f := range w.pointFeatures {
		if domain.BoundsContain(area, f.Coordinates) {
			n++
		}
	}
	return n
}

// SyncViewportRender redraws what the current viewport shows. It runs on
// every idle event of the map.
func (w *MapWithMarkers) SyncViewportRender() {
	area := w.m.Bounds()

	w.tooManyPoints = w.maxPoints > 0 && w.countVisiblePointFeatures(area) > w.maxPoints
	if w.onPointsUpdated != nil {
		w.onPointsUpdated(w.maxPoints, w.tooManyPoints)
	}

	if w.tooManyPoints {
		w.connections.HideAllConnections()
		w.capturer.ClearSpiderfied()
		// points and connections stay registered for when the user zooms back in
		w.points.ClearPendingUpdatePointPositions()
		w.clusterer.Clear()
		return
	}
	w.connections.ShowConnectionsWithinArea(area)

	if w.clusterer.IsExpanded() || w.capturer.HasSpiderfied() {
		return
	}

	w.clusterer.AddPoints(w.points.GetPointsWithinArea(area))
	w.clusterer.Render()
}

func (w *MapWithMarkers) SetMaxPoints(n int) {
	w.maxPoints = n
}

func (w *MapWithMarkers) MaxPoints() int { return w.maxPoints }

// Features returns copies of the current point and line features.
func (w *MapWithMarkers) Features() ([]domain.PointFeature, []domain.LineFeature) {
	return append([]domain.PointFeature(nil), w.pointFeatures...), append([]domain.LineFeature(nil), w.lineFeatures...)
}

func (w *MapWithMarkers) SetMinPointsInCluster(minPoints int) {
	w.clusterer.SetMinPoints(minPoints)
}

// ClickPoint clicks the marker of key. It reports whether the point exists.
func (w *MapWithMarkers) ClickPoint(key string) bool {
	p, ok := w.points.Get(key)
	if !ok {
		return false
	}
	w.spider.Click(p)
	return true
}

func (w *MapWithMarkers) ExpandCluster(id string) bool {
	return w.clusterer.ExpandCluster(id)
}

func (w *MapWithMarkers) Unspiderfy() {
	w.spider.Unspiderfy()
}

// DrivingTimeJob is a pending driving time lookup for one line feature.
type DrivingTimeJob struct {
	LineID string
	From   domain.Coordinates
	To     domain.Coordinates
	// Skip is set when the line has no usable path.
	Skip bool
}

type DrivingTime struct {
	LineID  string
	Seconds int
}

// DrivingTimeJobs lists a lookup for every line feature, in feature order.
func (w *MapWithMarkers) DrivingTimeJobs() []DrivingTimeJob {
	jobs := make([]DrivingTimeJob, 0, len(w.lineFeatures))
	for _, f := range w.lineFeatures {
		from, to, ok := w.connections.Endpoints(f.ID)
		jobs = append(jobs, DrivingTimeJob{LineID: f.ID, From: from, To: to, Skip: !ok})
	}
	return jobs
}

func (w *MapWithMarkers) Distances() ports.DistanceProvider {
	return w.connections.distances
}

// CalculateDrivingTimes looks up the driving time of every line feature.
func (w *MapWithMarkers) CalculateDrivingTimes(ctx context.Context) ([]DrivingTime, error) {
	return RunDrivingTimeJobs(ctx, w.connections.distances, w.DrivingTimeJobs())
}

// RunDrivingTimeJobs runs the lookups concurrently and returns the results in
// job order. The first transport error cancels the remaining lookups.
func RunDrivingTimeJobs(ctx context.Context, provider ports.DistanceProvider, jobs []DrivingTimeJob) ([]DrivingTime, error) {
	out := make([]DrivingTime, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(drivingTimeConcurrency)

	for i, job := range jobs {
		out[i].LineID = job.LineID
		if job.Skip {
			continue
		}
		g.Go(func() error {
			seconds, err := lookupDrivingTime(ctx, provider, job.From, job.To)
			if err != nil {
				return err
			}
			out[i].Seconds = seconds
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *MapWithMarkers) Destroy() {
	w.points.Destroy()
	w.clusterer.Destroy()
	w.connections.Destroy()
}
