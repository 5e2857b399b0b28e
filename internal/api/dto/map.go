package dto

import (
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/mapview"
	"time"
)

type CreateMapRequest struct {
	Center             *domain.Coordinates `json:"center"`
	Zoom               *int                `json:"zoom"`
	Width              int                 `json:"width"`
	Height             int                 `json:"height"`
	MaxPoints          *int                `json:"max_points"`
	MinPointsInCluster *int                `json:"min_points_in_cluster"`
}

type ViewportRequest struct {
	Center *domain.Coordinates `json:"center"`
	Zoom   *int                `json:"zoom"`
	Width  *int                `json:"width"`
	Height *int                `json:"height"`
}

// Drag phases accepted by DragRequest.
const (
	DragStart = "start"
	DragMove  = "move"
	DragEnd   = "end"
)

type DragRequest struct {
	Phase  string              `json:"phase"`
	Center *domain.Coordinates `json:"center"`
}

type SettingsRequest struct {
	MaxPoints          *int `json:"max_points"`
	MinPointsInCluster *int `json:"min_points_in_cluster"`
}

type OrderFeaturesRequest struct {
	StopKinds []string `json:"stop_kinds"`
	ShowLines bool     `json:"show_lines"`
}

type RouteStopRequest struct {
	ID       int                `json:"id"`
	Name     string             `json:"name"`
	Position domain.Coordinates `json:"position"`
}

type RouteRequest struct {
	RouteID       int                 `json:"route_id"`
	Start         *domain.Coordinates `json:"start"`
	DepartAt      *time.Time          `json:"depart_at"`
	ReturnToStart bool                `json:"return_to_start"`
	Stops         []RouteStopRequest  `json:"stops"`
}

type BoundsResponse struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

type PointResponse struct {
	Key             string              `json:"key"`
	Position        domain.Coordinates  `json:"position"`
	DisplayPosition domain.Coordinates  `json:"display_position"`
	PendingPosition *domain.Coordinates `json:"pending_position,omitempty"`
	Label           string              `json:"label"`
	Color           string              `json:"color"`
	Content         string              `json:"content"`
	Visible         bool                `json:"visible"`
	Spiderfied      bool                `json:"spiderfied"`
}

type ConnectionResponse struct {
	Key    string               `json:"key"`
	Path   []domain.Coordinates `json:"path"`
	Color  string               `json:"color"`
	Weight int                  `json:"weight"`
	Shown  bool                 `json:"shown"`
}

type ClusterResponse struct {
	ID        string             `json:"id"`
	Position  domain.Coordinates `json:"position"`
	Count     int                `json:"count"`
	PointKeys []string           `json:"point_keys"`
	Content   string             `json:"content"`
}

type LegResponse struct {
	From   domain.Coordinates `json:"from"`
	To     domain.Coordinates `json:"to"`
	Weight int                `json:"weight"`
}

type ClickedFeature struct {
	ID    string         `json:"id"`
	Label string         `json:"label"`
	Meta  map[string]any `json:"meta,omitempty"`
}

type MapResponse struct {
	ID                 string               `json:"id"`
	State              string               `json:"state"`
	Center             domain.Coordinates   `json:"center"`
	Zoom               int                  `json:"zoom"`
	Width              int                  `json:"width"`
	Height             int                  `json:"height"`
	Dragging           bool                 `json:"dragging"`
	Bounds             BoundsResponse       `json:"bounds"`
	MaxPoints          int                  `json:"max_points"`
	MinPointsInCluster int                  `json:"min_points_in_cluster"`
	TooManyPoints      bool                 `json:"too_many_points"`
	Points             []PointResponse      `json:"points"`
	Connections        []ConnectionResponse `json:"connections"`
	Clusters           []ClusterResponse    `json:"clusters"`
	Legs               []LegResponse        `json:"legs"`
	SpiderfiedKeys     []string             `json:"spiderfied_keys"`
	ExpandedKeys       []string             `json:"expanded_keys"`
	LastClicked        *ClickedFeature      `json:"last_clicked,omitempty"`
}

// NewMapResponse flattens a session snapshot. Empty lists render as [] rather than null.
func NewMapResponse(s mapview.SessionSnapshot) MapResponse {
	m := s.Map
	res := MapResponse{
		ID:       s.ID,
		State:    s.State.String(),
		Center:   s.Center,
		Zoom:     s.Zoom,
		Width:    s.Width,
		Height:   s.Height,
		Dragging: s.Dragging,
		Bounds: BoundsResponse{
			South: m.Bounds.Min.Lat(),
			West:  m.Bounds.Min.Lon(),
			North: m.Bounds.Max.Lat(),
			East:  m.Bounds.Max.Lon(),
		},
		MaxPoints:          m.MaxPoints,
		MinPointsInCluster: m.MinPointsInCluster,
		TooManyPoints:      m.TooManyPoints,
		Points:             make([]PointResponse, 0, len(m.Points)),
		Connections:        make([]ConnectionResponse, 0, len(m.Connections)),
		Clusters:           make([]ClusterResponse, 0, len(m.Clusters)),
		Legs:               make([]LegResponse, 0, len(m.Legs)),
		SpiderfiedKeys:     append([]string{}, m.SpiderfiedKeys...),
		ExpandedKeys:       append([]string{}, m.ExpandedKeys...),
	}

	for _, p := range m.Points {
		res.Points = append(res.Points, PointResponse(p))
	}
	for _, c := range m.Connections {
		res.Connections = append(res.Connections, ConnectionResponse(c))
	}
	for _, c := range m.Clusters {
		res.Clusters = append(res.Clusters, ClusterResponse(c))
	}
	for _, l := range m.Legs {
		res.Legs = append(res.Legs, LegResponse(l))
	}
	if s.LastClicked != nil {
		res.LastClicked = &ClickedFeature{ID: s.LastClicked.ID, Label: s.LastClicked.Label, Meta: s.LastClicked.Meta}
	}
	return res
}

type ActionResponse struct {
	Found bool        `json:"found"`
	Map   MapResponse `json:"map"`
}

type DrivingTimeResponse struct {
	LineID  string `json:"line_id"`
	Seconds int    `json:"seconds"`
}

type DrivingTimesResponse struct {
	Items []DrivingTimeResponse `json:"items"`
}

type RouteStopResponse struct {
	ID       int                `json:"id"`
	Name     string             `json:"name"`
	Position domain.Coordinates `json:"position"`
	ArriveAt time.Time          `json:"arrive_at"`
}

type RoutePlanResponse struct {
	RouteID              int                 `json:"route_id"`
	DepartAt             time.Time           `json:"depart_at"`
	TotalDistanceMeters  int                 `json:"total_distance_meters"`
	TotalDurationSeconds int                 `json:"total_duration_seconds"`
	Stops                []RouteStopResponse `json:"stops"`
}

func NewRoutePlanResponse(p *domain.RoutePlan) RoutePlanResponse {
	res := RoutePlanResponse{
		RouteID:              p.RouteID,
		DepartAt:             p.DepartAt,
		TotalDistanceMeters:  p.TotalDistanceMeters,
		TotalDurationSeconds: p.TotalDurationSeconds,
		Stops:                make([]RouteStopResponse, 0, len(p.Stops)),
	}
	for _, s := range p.Stops {
		res.Stops = append(res.Stops, RouteStopResponse{ID: s.StopID, Name: s.Name, Position: s.Position, ArriveAt: s.ArriveAt})
	}
	return res
}

type RouteResponse struct {
	Plan RoutePlanResponse `json:"plan"`
	Map  MapResponse       `json:"map"`
}

type GeocodeResponse struct {
	Query    string             `json:"query"`
	Position domain.Coordinates `json:"position"`
}
