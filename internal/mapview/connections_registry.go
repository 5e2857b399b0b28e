package mapview

import (
	"context"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/ports"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/paulmach/orb"
)

const connectionWeight = 3

// Connection is a polyline drawn between points.
type Connection struct {
	path     []domain.Coordinates
	color    string
	weight   int
	shown    bool
	revision int
}

func (c *Connection) Path() []domain.Coordinates { return slices.Clone(c.path) }
func (c *Connection) Color() string              { return c.color }
func (c *Connection) Weight() int                { return c.weight }
func (c *Connection) Shown() bool                { return c.shown }

// Revision counts path and color mutations.
func (c *Connection) Revision() int { return c.revision }

func (c *Connection) SetPath(path []domain.Coordinates) {
	c.path = slices.Clone(path)
	c.revision++
}

func (c *Connection) SetColor(color string) {
	c.color = color
	c.revision++
}

func (c *Connection) SetShown(on bool) { c.shown = on }

func pathString(path []domain.Coordinates) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = p.Fingerprint()
	}
	return strings.Join(parts, "|")
}

// ConnectionsRegistry owns the connections drawn on a map. It is not safe for
// concurrent use.
type ConnectionsRegistry struct {
	connections map[string]*Connection
	keys        []string
	distances   ports.DistanceProvider
}

func NewConnectionsRegistry(distances ports.DistanceProvider) *ConnectionsRegistry {
	return &ConnectionsRegistry{
		connections: make(map[string]*Connection),
		distances:   distances,
	}
}

// BuildConnection creates a connection without registering it.
func (r *ConnectionsRegistry) BuildConnection(coordinates []domain.Coordinates, color string) *Connection {
	return &Connection{
		path:   slices.Clone(coordinates),
		color:  color,
		weight: connectionWeight,
	}
}

func (r *ConnectionsRegistry) Add(key string, connection *Connection) {
	if old, ok := r.connections[key]; ok {
		if old == connection {
			return
		}
		r.Delete(key)
	}
	r.connections[key] = connection
	r.keys = append(r.keys, key)
}

func (r *ConnectionsRegistry) Get(key string) (*Connection, bool) {
	c, ok := r.connections[key]
	return c, ok
}

func (r *ConnectionsRegistry) Keys() []string {
	return slices.Clone(r.keys)
}

func (r *ConnectionsRegistry) Len() int { return len(r.keys) }

// UpdateConnectionIfNotIdentical touches the connection only when its path or
// color actually differs.
func (r *ConnectionsRegistry) UpdateConnectionIfNotIdentical(key string, coordinates []domain.Coordinates, color string) {
	c, ok := r.connections[key]
	if !ok {
		return
	}

	if pathString(c.path) != pathString(coordinates) {
		c.SetPath(coordinates)
	}
	if c.color != color {
		c.SetColor(color)
	}
}

// ShowConnectionsWithinArea shows connections with at least one path point
// inside area and hides the rest.
func (r *ConnectionsRegistry) ShowConnectionsWithinArea(area orb.Bound) {
	for _, k := range r.keys {
		c := r.connections[k]
		visible := slices.ContainsFunc(c.path, func(p domain.Coordinates) bool {
			return domain.BoundsContain(area, p)
		})
		c.shown = visible
	}
}

func (r *ConnectionsRegistry) HideAllConnections() {
	for _, c := range r.connections {
		c.shown = false
	}
}

func (r *ConnectionsRegistry) Delete(key string) {
	c, ok := r.connections[key]
	if !ok {
		return
	}
	c.shown = false
	delete(r.connections, key)
	if i := slices.Index(r.keys, key); i >= 0 {
		r.keys = slices.Delete(r.keys, i, i+1)
	}
}

// DeleteUnneededConnections removes every connection whose key is not in needed.
func (r *ConnectionsRegistry) DeleteUnneededConnections(needed map[string]struct{}) {
	for _, k := range slices.Clone(r.keys) {
		if _, keep := needed[k]; !keep {
			r.Delete(k)
		}
	}
}

func (r *ConnectionsRegistry) Destroy() {
	for _, k := range slices.Clone(r.keys) {
		r.Delete(k)
	}
}

// Endpoints returns the first and last points of the connection path.
func (r *ConnectionsRegistry) Endpoints(key string) (from, to domain.Coordinates, ok bool) {
	c, found := r.connections[key]
	if !found || len(c.path) == 0 {
		return domain.Coordinates{}, domain.Coordinates{}, false
	}
	return c.path[0], c.path[len(c.path)-1], true
}

// CalculateDrivingTimeForConnection returns the driving time in seconds between
// the endpoints of the connection, or 0 when no estimate is available.
func (r *ConnectionsRegistry) CalculateDrivingTimeForConnection(ctx context.Context, key string) (int, error) {
	from, to, ok := r.Endpoints(key)
	if !ok {
		return 0, nil
	}
	return lookupDrivingTime(ctx, r.distances, from, to)
}

// lookupDrivingTime looks up the driving duration between two coordinates.
// A missing provider or an ErrNotFound lookup yields 0.
func lookupDrivingTime(ctx context.Context, provider ports.DistanceProvider, from, to domain.Coordinates) (int, error) {
	if provider == nil {
		return 0, nil
	}

	res, err := provider.GetDistance(ctx, from, to)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("driving time %s -> %s: %w", from.Fingerprint(), to.Fingerprint(), err)
	}
	return res.DurationSeconds, nil
}
