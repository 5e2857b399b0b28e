package services

import (
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/fieldvalue"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var stopColors = domain.PointColors{
	Default:    "#164DA7",
	Spiderfied: "#93B7F1",
}

const (
	orderLineColor      = "#8D92A3"
	routeLineColor      = "#164DA7"
	routeLineErrorColor = "#F37676"
)

var stopLabels = map[string]string{
	domain.StopPickup:   "P",
	domain.StopDelivery: "D",
}

// OrderFeatureOptions selects what the orders map shows.
// An empty StopKinds shows both pickups and deliveries.
type OrderFeatureOptions struct {
	StopKinds []string
	ShowLines bool
}

func (o OrderFeatureOptions) shows(kind string) bool {
	if len(o.StopKinds) == 0 {
		return true
	}
	for _, k := range o.StopKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// OrderPointKey is the point id of one stop of an order.
func OrderPointKey(orderID int, kind string) string {
	return "order-" + strconv.Itoa(orderID) + "-" + kind
}

// OrderFeatures turns transport orders into map features: one point per stop and,
// when enabled, a line from pickup to delivery. Stops without coordinates are left out
// and a delivery at the pickup location is drawn once.
func OrderFeatures(orders []*domain.TransportOrder, opts OrderFeatureOptions) ([]domain.PointFeature, []domain.LineFeature) {
	points := make([]domain.PointFeature, 0, 2*len(orders))
	lines := make([]domain.LineFeature, 0, len(orders))

	for _, o := range orders {
		if o == nil {
			continue
		}
		weight := FormatWeight(o)

		var drawn []domain.PointFeature
		var lastFingerprint string
		for _, stop := range []struct {
			kind string
			stop domain.Stop
		}{
			{domain.StopPickup, o.Pickup},
			{domain.StopDelivery, o.Delivery},
		} {
			pos := stop.stop.Position
			if !hasCoordinates(pos) || pos.Fingerprint() == lastFingerprint {
				continue
			}
			lastFingerprint = pos.Fingerprint()
			if !opts.shows(stop.kind) {
				continue
			}

			meta := map[string]any{
				"orderId":     o.OrderID,
				"orderNumber": o.Number,
				"status":      o.Status,
				"stopType":    stop.kind,
				"stopName":    stop.stop.Name,
				"title":       strings.TrimSpace(o.Number + " " + weight),
			}
			if weight != "" {
				meta["weight"] = weight
			}

			drawn = append(drawn, domain.PointFeature{
				ID:          OrderPointKey(o.OrderID, stop.kind),
				Coordinates: pos,
				Label:       stopLabels[stop.kind],
				Colors:      stopColors,
				Meta:        meta,
			})
		}
		points = append(points, drawn...)

		if !opts.ShowLines || len(drawn) < 2 {
			continue
		}
		lines = append(lines, domain.LineFeature{
			ID:          domain.ConnectionKey(drawn[0].ID, drawn[1].ID),
			Coordinates: []domain.Coordinates{drawn[0].Coordinates, drawn[1].Coordinates},
			Color:       orderLineColor,
			Meta:        map[string]any{"orderId": o.OrderID},
		})
	}

	return points, lines
}

// FormatWeight renders the order weight in tonnes, or "" when unknown.
// The stored weight is an integer shifted by WeightPrecision decimal places.
func FormatWeight(o *domain.TransportOrder) string {
	field := fieldvalue.NumberField{
		Value: fieldvalue.Attribute[float64]{
			Get: func() (float64, bool) {
				if o.Weight == nil {
					return 0, false
				}
				return *o.Weight, true
			},
		},
		PrecisionAttr: &fieldvalue.Attribute[int]{
			Get: func() (int, bool) {
				if o.WeightPrecision == nil {
					return 0, false
				}
				return *o.WeightPrecision, true
			},
		},
	}

	v := field.Get()
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + " t"
}

// RoutePointKey is the point id of a route stop.
func RoutePointKey(routeID, stopID int) string {
	return fmt.Sprintf("route-%d-stop-%d", routeID, stopID)
}

// RouteStartKey is the point id of a route's start location.
func RouteStartKey(routeID int) string {
	return fmt.Sprintf("route-%d-start", routeID)
}

// RouteFeatures draws a planned route: the start ("S"), numbered stops in visiting
// order and a connection between each consecutive pair. A connection that bridges
// stops without coordinates is drawn in the error color.
func RouteFeatures(plan *domain.RoutePlan) ([]domain.PointFeature, []domain.LineFeature) {
	if plan == nil {
		return nil, nil
	}

	points := make([]domain.PointFeature, 0, 1+len(plan.Stops))
	lines := make([]domain.LineFeature, 0, len(plan.Stops))

	var prev *domain.PointFeature
	skipped := false
	link := func(to domain.PointFeature) {
		if prev != nil {
			color := routeLineColor
			if skipped {
				color = routeLineErrorColor
			}
			lines = append(lines, domain.LineFeature{
				ID:          domain.ConnectionKey(prev.ID, to.ID),
				Coordinates: []domain.Coordinates{prev.Coordinates, to.Coordinates},
				Color:       color,
				Meta:        map[string]any{"containsSkippedStops": skipped},
			})
		}
		p := to
		prev = &p
		skipped = false
	}

	if hasCoordinates(plan.Start) {
		start := domain.PointFeature{
			ID:          RouteStartKey(plan.RouteID),
			Coordinates: plan.Start,
			Label:       "S",
			Colors:      stopColors,
			Meta:        map[string]any{"routeId": plan.RouteID},
		}
		points = append(points, start)
		link(start)
	}

	for i, s := range plan.Stops {
		if !hasCoordinates(s.Position) {
			skipped = true
			continue
		}
		meta := map[string]any{
			"routeId":  plan.RouteID,
			"stopId":   s.StopID,
			"stopName": s.Name,
			"sequence": i + 1,
		}
		if !s.ArriveAt.IsZero() {
			meta["arriveAt"] = s.ArriveAt.UTC().Format(time.RFC3339)
		}
		pf := domain.PointFeature{
			ID:          RoutePointKey(plan.RouteID, s.StopID),
			Coordinates: s.Position,
			Label:       strconv.Itoa(i + 1),
			Colors:      stopColors,
			Meta:        meta,
		}
		points = append(points, pf)
		link(pf)
	}

	return points, lines
}

// hasCoordinates treats 0,0 as "no coordinates", the way blank stops arrive from the backend.
func hasCoordinates(c domain.Coordinates) bool {
	return c.Valid() && !(c.Lat == 0 && c.Lng == 0)
}
