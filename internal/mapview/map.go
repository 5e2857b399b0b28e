package mapview

import (
	"dispatch-map-service/internal/domain"

	"github.com/paulmach/orb"
)

// Map events, named after the widget events the client side listens to.
const (
	EventCenterChanged = "center_changed"
	EventZoomChanged   = "zoom_changed"
	EventDragStart     = "dragstart"
	EventDragEnd       = "dragend"
	EventIdle          = "idle"
)

type MapOptions struct {
	Center domain.Coordinates
	Zoom   int
	Width  int
	Height int
}

// Map is the server-side map widget: a viewport with a center, a zoom level
// and a pixel size. Listeners run synchronously on the calling goroutine.
type Map struct {
	center    domain.Coordinates
	zoom      int
	width     int
	height    int
	dragging  bool
	listeners map[string][]func()
}

func NewMap(opts MapOptions) *Map {
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 768
	}

	return &Map{
		center:    opts.Center,
		zoom:      clampZoom(opts.Zoom),
		width:     width,
		height:    height,
		listeners: make(map[string][]func()),
	}
}

func (m *Map) AddListener(event string, fn func()) {
	m.listeners[event] = append(m.listeners[event], fn)
}

func (m *Map) trigger(event string) {
	for _, fn := range m.listeners[event] {
		fn()
	}
}

func (m *Map) Center() domain.Coordinates { return m.center }

func (m *Map) Zoom() int { return m.zoom }

func (m *Map) Size() (width, height int) { return m.width, m.height }

// Bounds returns the currently visible area.
func (m *Map) Bounds() orb.Bound {
	return viewportBounds(m.center, m.zoom, m.width, m.height)
}

func (m *Map) SetCenter(c domain.Coordinates) {
	m.center = c
	m.trigger(EventCenterChanged)
	if !m.dragging {
		m.trigger(EventIdle)
	}
}

func (m *Map) SetZoom(z int) {
	z = clampZoom(z)
	if z == m.zoom {
		return
	}
	m.zoom = z
	m.trigger(EventZoomChanged)
	if !m.dragging {
		m.trigger(EventIdle)
	}
}

func (m *Map) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	m.width, m.height = width, height
	m.trigger(EventIdle)
}

// StartDrag, DragTo and EndDrag replay a user panning the map.
func (m *Map) StartDrag() {
	if m.dragging {
		return
	}
	m.dragging = true
	m.trigger(EventDragStart)
}

func (m *Map) DragTo(c domain.Coordinates) {
	m.SetCenter(c)
}

func (m *Map) EndDrag() {
	if !m.dragging {
		return
	}
	m.dragging = false
	m.trigger(EventDragEnd)
	m.trigger(EventIdle)
}

func (m *Map) Dragging() bool { return m.dragging }
