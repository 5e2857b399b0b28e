package domain

import "time"

// Represents a single stop in a route.
// ArriveAt is filled in once the route has been planned.
type RouteStop struct {
	StopID   int
	Name     string
	Position Coordinates
	ArriveAt time.Time
}

// Represents the planned route for a single unit.
// A RoutePlan is the output of a routing algorithm and describes the ordered
// sequence of stops, along with aggregate distance and duration metrics.
// It is immutable planning data and contains no side effects.
type RoutePlan struct {
	RouteID              int
	Start                Coordinates
	DepartAt             time.Time
	Stops                []RouteStop
	TotalDurationSeconds int
	TotalDistanceMeters  int
}
