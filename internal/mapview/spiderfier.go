package mapview

import (
	"dispatch-map-service/internal/domain"
	"math"
	"slices"

	"github.com/paulmach/orb"
)

type MarkerStatus string

const (
	MarkerSpiderfied   MarkerStatus = "SPIDERFIED"
	MarkerUnspiderfied MarkerStatus = "UNSPIDERFIED"
)

// SpiderfierOptions are expressed in screen pixels unless noted otherwise.
type SpiderfierOptions struct {
	NearbyDistance         float64
	KeepSpiderfied         bool
	CircleSpiralSwitchover int
	CircleFootSeparation   float64
	CircleStartAngleDeg    float64
	SpiralFootSeparation   float64
	SpiralLengthStart      float64
	SpiralLengthFactor     float64
	LegWeight              int
}

func DefaultSpiderfierOptions() SpiderfierOptions {
	return SpiderfierOptions{
		NearbyDistance:         25,
		KeepSpiderfied:         true,
		CircleSpiralSwitchover: 9,
		CircleFootSeparation:   30,
		CircleStartAngleDeg:    25,
		SpiralFootSeparation:   26,
		SpiralLengthStart:      11,
		SpiralLengthFactor:     4,
		LegWeight:              2,
	}
}

// Leg connects the true position of a spiderfied marker to where it is drawn.
type Leg struct {
	From   domain.Coordinates
	To     domain.Coordinates
	Weight int
}

// Spiderfier spreads markers that overlap on screen apart so each one can be
// clicked. Markers never move or hide on their own, and zoom changes do not
// collapse an open group.
type Spiderfier struct {
	m    *Map
	opts SpiderfierOptions

	markers []*Point
	group   []*Point
	display map[*Point]domain.Coordinates

	spiderfyListeners   []func([]*Point)
	unspiderfyListeners []func([]*Point)
	clickListeners      []func(*Point)
	formatListeners     []func(*Point, MarkerStatus)
}

func NewSpiderfier(m *Map, opts SpiderfierOptions) *Spiderfier {
	return &Spiderfier{
		m:       m,
		opts:    opts,
		display: make(map[*Point]domain.Coordinates),
	}
}

func (s *Spiderfier) OnSpiderfy(fn func([]*Point)) {
	s.spiderfyListeners = append(s.spiderfyListeners, fn)
}
func (s *Spiderfier) OnUnspiderfy(fn func([]*Point)) {
	s.unspiderfyListeners = append(s.unspiderfyListeners, fn)
}
func (s *Spiderfier) OnClick(fn func(*Point)) { s.clickListeners = append(s.clickListeners, fn) }

func (s *Spiderfier) OnFormat(fn func(*Point, MarkerStatus)) {
	s.formatListeners = append(s.formatListeners, fn)
}

func (s *Spiderfier) AddMarker(p *Point) {
	if slices.Contains(s.markers, p) {
		return
	}
	s.markers = append(s.markers, p)
}

func (s *Spiderfier) RemoveMarker(p *Point) {
	i := slices.Index(s.markers, p)
	if i < 0 {
		return
	}
	if _, spread := s.display[p]; spread {
		s.Unspiderfy()
	}
	s.markers = slices.Delete(s.markers, i, i+1)
}

func (s *Spiderfier) Markers() []*Point { return slices.Clone(s.markers) }

// Spiderfied returns the markers of the open group.
func (s *Spiderfier) Spiderfied() []*Point { return slices.Clone(s.group) }

// DisplayPosition is where p is drawn: its spread position while spiderfied,
// its own position otherwise.
func (s *Spiderfier) DisplayPosition(p *Point) domain.Coordinates {
	if pos, ok := s.display[p]; ok {
		return pos
	}
	return p.Position()
}

func (s *Spiderfier) Legs() []Leg {
	legs := make([]Leg, 0, len(s.group))
	for _, p := range s.group {
		legs = append(legs, Leg{From: p.Position(), To: s.display[p], Weight: s.opts.LegWeight})
	}
	return legs
}

// Click handles a click on p: a lone marker or a spread one receives the
// click, a marker with close neighbours opens a new group.
func (s *Spiderfier) Click(p *Point) {
	if !slices.Contains(s.markers, p) {
		return
	}

	if _, spread := s.display[p]; spread {
		s.emitClick(p)
		if !s.opts.KeepSpiderfied {
			s.Unspiderfy()
		}
		return
	}

	nearby := s.nearby(p)
	s.Unspiderfy()
	if len(nearby) < 2 {
		s.emitClick(p)
		return
	}
	s.spiderfy(nearby)
}

func (s *Spiderfier) Unspiderfy() {
	if len(s.group) == 0 {
		return
	}

	group := s.group
	s.group = nil
	clear(s.display)

	for _, p := range group {
		s.emitFormat(p, MarkerUnspiderfied)
	}
	for _, fn := range s.unspiderfyListeners {
		fn(slices.Clone(group))
	}
}

func (s *Spiderfier) nearby(p *Point) []*Point {
	zoom := s.m.Zoom()
	origin := worldPixel(p.Position(), zoom)

	out := make([]*Point, 0)
	for _, other := range s.markers {
		if other != p && !other.Attached() {
			continue
		}
		pt := worldPixel(other.Position(), zoom)
		if math.Hypot(pt[0]-origin[0], pt[1]-origin[1]) <= s.opts.NearbyDistance {
			out = append(out, other)
		}
	}
	return out
}

func (s *Spiderfier) spiderfy(group []*Point) {
	zoom := s.m.Zoom()

	var center orb.Point
	for _, p := range group {
		px := worldPixel(p.Position(), zoom)
		center[0] += px[0]
		center[1] += px[1]
	}
	center[0] /= float64(len(group))
	center[1] /= float64(len(group))

	var feet []orb.Point
	if len(group) >= s.opts.CircleSpiralSwitchover {
		feet = s.spiralFeet(len(group), center)
	} else {
		feet = s.circleFeet(len(group), center)
	}

	s.group = slices.Clone(group)
	for i, p := range s.group {
		s.display[p] = fromWorldPixel(feet[i], zoom)
	}
	for _, p := range s.group {
		s.emitFormat(p, MarkerSpiderfied)
	}
	for _, fn := range s.spiderfyListeners {
		fn(slices.Clone(s.group))
	}
}

func (s *Spiderfier) circleFeet(count int, center orb.Point) []orb.Point {
	circumference := s.opts.CircleFootSeparation * float64(2+count)
	legLength := circumference / (2 * math.Pi)
	step := 2 * math.Pi / float64(count)
	start := s.opts.CircleStartAngleDeg * math.Pi / 180

	feet := make([]orb.Point, count)
	for i := range feet {
		angle := start + float64(i)*step
		feet[i] = orb.Point{
			center[0] + legLength*math.Cos(angle),
			center[1] + legLength*math.Sin(angle),
		}
	}
	return feet
}

func (s *Spiderfier) spiralFeet(count int, center orb.Point) []orb.Point {
	legLength := s.opts.SpiralLengthStart
	angle := 0.0

	feet := make([]orb.Point, count)
	for i := range feet {
		angle += s.opts.SpiralFootSeparation/legLength + float64(i)*0.0005
		feet[i] = orb.Point{
			center[0] + legLength*math.Cos(angle),
			center[1] + legLength*math.Sin(angle),
		}
		legLength += 2 * math.Pi * s.opts.SpiralLengthFactor / angle
	}
	return feet
}

func (s *Spiderfier) emitClick(p *Point) {
	for _, fn := range s.clickListeners {
		fn(p)
	}
}

func (s *Spiderfier) emitFormat(p *Point, status MarkerStatus) {
	for _, fn := range s.formatListeners {
		fn(p, status)
	}
}
