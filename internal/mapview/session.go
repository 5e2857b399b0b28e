package mapview

import (
	"context"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/platform/latest"
	"errors"
	"strconv"
	"sync"
)

var (
	ErrNotMounted = errors.New("map session is not mounted")
	ErrDestroyed  = errors.New("map session is destroyed")
)

type State int

const (
	StateUninitialized State = iota
	StateMounted
	StateActive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateMounted:
		return "mounted"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

type SessionOptions struct {
	Center  domain.Coordinates
	Zoom    int
	Width   int
	Height  int
	Markers Options
}

// Session binds a Map and its markers to a reactive center and zoom that
// clients read and write. It is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id    string
	state State
	opts  SessionOptions

	// reactive values, kept in sync with the map in both directions
	center           domain.Coordinates
	zoom             int
	centerSyncPaused bool

	view        *Map
	markers     *MapWithMarkers
	lastClicked *domain.PointFeature

	drivingTimes latest.Tracker
}

func NewSession(id string, opts SessionOptions) *Session {
	return &Session{
		id:     id,
		opts:   opts,
		center: opts.Center,
		zoom:   opts.Zoom,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mount creates the map from the reactive center and zoom and binds its
// events. Mounting a mounted session is a no-op.
func (s *Session) Mount() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateDestroyed:
		return ErrDestroyed
	case StateMounted, StateActive:
		return nil
	}

	view := NewMap(MapOptions{
		Center: s.center,
		Zoom:   s.zoom,
		Width:  s.opts.Width,
		Height: s.opts.Height,
	})
	s.zoom = view.Zoom()

	view.AddListener(EventDragStart, func() { s.centerSyncPaused = true })
	view.AddListener(EventDragEnd, func() { s.centerSyncPaused = false })
	view.AddListener(EventZoomChanged, func() {
		if z := view.Zoom(); z != s.zoom {
			s.zoom = z
		}
	})
	view.AddListener(EventCenterChanged, func() {
		c := view.Center()
		if exactFingerprint(c) == exactFingerprint(s.center) {
			return
		}
		s.center = c
	})

	markerOpts := s.opts.Markers
	onClick := markerOpts.OnMarkerClick
	markerOpts.OnMarkerClick = func(f domain.PointFeature) {
		s.lastClicked = &f
		if onClick != nil {
			onClick(f)
		}
	}

	s.view = view
	s.markers = NewMapWithMarkers(view, markerOpts)
	s.state = StateMounted
	return nil
}

func exactFingerprint(c domain.Coordinates) string {
	return strconv.FormatFloat(c.Lat, 'g', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'g', -1, 64)
}

func (s *Session) ready() error {
	switch s.state {
	case StateUninitialized:
		return ErrNotMounted
	case StateDestroyed:
		return ErrDestroyed
	case StateMounted:
		s.state = StateActive
	}
	return nil
}

// SetCenter writes the reactive center. The map follows unless the user is
// dragging it.
func (s *Session) SetCenter(c domain.Coordinates) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	s.center = c
	if !s.centerSyncPaused {
		s.view.SetCenter(c)
	}
	return nil
}

func (s *Session) SetZoom(z int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	z = clampZoom(z)
	s.zoom = z
	if s.view.Zoom() != z {
		s.view.SetZoom(z)
	}
	return nil
}

// ResizePartial resizes the map, keeping the current value of any dimension
// passed as nil.
func (s *Session) ResizePartial(width, height *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	w, h := s.view.Size()
	if width != nil {
		w = *width
	}
	if height != nil {
		h = *height
	}
	s.view.Resize(w, h)
	return nil
}

func (s *Session) BeginDrag() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	s.view.StartDrag()
	return nil
}

func (s *Session) DragTo(c domain.Coordinates) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	if !s.view.Dragging() {
		s.view.StartDrag()
	}
	s.view.DragTo(c)
	return nil
}

func (s *Session) EndDrag() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	s.view.EndDrag()
	return nil
}

func (s *Session) UpdateFeatures(points []domain.PointFeature, lines []domain.LineFeature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	s.markers.UpdateMap(points, lines)
	return nil
}

// Features returns the feature set last applied to the session.
func (s *Session) Features() ([]domain.PointFeature, []domain.LineFeature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, nil, err
	}

	points, lines := s.markers.Features()
	return points, lines, nil
}

func (s *Session) SetMaxPoints(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	s.markers.SetMaxPoints(n)
	s.markers.SyncViewportRender()
	return nil
}

func (s *Session) SetMinPointsInCluster(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	s.markers.SetMinPointsInCluster(n)
	return nil
}

// ClickPoint clicks the marker of key and reports whether it exists.
func (s *Session) ClickPoint(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return false, err
	}

	return s.markers.ClickPoint(key), nil
}

func (s *Session) ExpandCluster(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return false, err
	}

	return s.markers.ExpandCluster(id), nil
}

func (s *Session) Unspiderfy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	s.markers.Unspiderfy()
	return nil
}

// CalculateDrivingTimes looks up driving times for the current line features.
// Lookups run without holding the session lock; starting a new calculation
// cancels the one still in flight, and a superseded calculation reports
// context.Canceled instead of its results.
func (s *Session) CalculateDrivingTimes(ctx context.Context) ([]DrivingTime, error) {
	s.mu.Lock()
	if err := s.ready(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	jobs := s.markers.DrivingTimeJobs()
	provider := s.markers.Distances()
	s.mu.Unlock()

	ctx, id, done := s.drivingTimes.Begin(ctx)
	defer done()

	times, err := RunDrivingTimeJobs(ctx, provider, jobs)
	if err != nil {
		return nil, err
	}
	if !s.drivingTimes.IsCurrent(id) {
		return nil, context.Canceled
	}
	return times, nil
}

type SessionSnapshot struct {
	ID          string
	State       State
	Center      domain.Coordinates
	Zoom        int
	Width       int
	Height      int
	Dragging    bool
	LastClicked *domain.PointFeature
	Map         Snapshot
}

func (s *Session) Snapshot() (SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUninitialized {
		return SessionSnapshot{}, ErrNotMounted
	}
	if s.state == StateDestroyed {
		return SessionSnapshot{}, ErrDestroyed
	}

	width, height := s.view.Size()
	return SessionSnapshot{
		ID:          s.id,
		State:       s.state,
		Center:      s.center,
		Zoom:        s.zoom,
		Width:       width,
		Height:      height,
		Dragging:    s.view.Dragging(),
		LastClicked: s.lastClicked,
		Map:         s.markers.Snapshot(),
	}, nil
}

// Unmount destroys the markers and releases the map. It is idempotent.
func (s *Session) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDestroyed {
		return
	}

	s.drivingTimes.Stop()
	if s.markers != nil {
		s.markers.Destroy()
		s.markers = nil
	}
	s.view = nil
	s.state = StateDestroyed
}
