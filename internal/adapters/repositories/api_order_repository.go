package repositories

import (
	"context"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/jsonapi"
	"dispatch-map-service/internal/platform/obs"
	"dispatch-map-service/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

const orderResourceType = "transport-orders"

// APIOrderRepository reads and relocates transport orders through the dispatch
// backend's JSON:API.
type APIOrderRepository struct {
	Client *jsonapi.Client
}

var (
	_ ports.OrderRepository = (*APIOrderRepository)(nil)
	_ ports.OrderStopWriter = (*APIOrderRepository)(nil)
)

func NewAPIOrderRepository(client *jsonapi.Client) *APIOrderRepository {
	return &APIOrderRepository{Client: client}
}

type orderAttributes struct {
	Number          string   `json:"number"`
	Status          string   `json:"status"`
	PickupName      string   `json:"pickup_name"`
	PickupLat       float64  `json:"pickup_lat"`
	PickupLng       float64  `json:"pickup_lng"`
	DeliveryName    string   `json:"delivery_name"`
	DeliveryLat     float64  `json:"delivery_lat"`
	DeliveryLng     float64  `json:"delivery_lng"`
	Weight          *float64 `json:"weight"`
	WeightPrecision *int     `json:"weight_precision"`
}

type orderResource struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Attributes orderAttributes `json:"attributes"`
}

func (r orderResource) toDomain() (*domain.TransportOrder, error) {
	id, err := strconv.Atoi(r.ID)
	if err != nil {
		return nil, fmt.Errorf("order id %q: %w", r.ID, err)
	}
	a := r.Attributes
	return &domain.TransportOrder{
		OrderID:         id,
		Number:          a.Number,
		Status:          a.Status,
		Pickup:          domain.Stop{Name: a.PickupName, Position: domain.Coordinates{Lat: a.PickupLat, Lng: a.PickupLng}},
		Delivery:        domain.Stop{Name: a.DeliveryName, Position: domain.Coordinates{Lat: a.DeliveryLat, Lng: a.DeliveryLng}},
		Weight:          a.Weight,
		WeightPrecision: a.WeightPrecision,
	}, nil
}

func (r *APIOrderRepository) ListOrders(ctx context.Context) (_ []*domain.TransportOrder, err error) {
	defer obs.Time(ctx, "orders.api.ListOrders")(&err)

	if r.Client == nil {
		return nil, errors.New("api order repository: client is nil")
	}

	doc, err := r.Client.Get(ctx, orderResourceType, url.Values{"sort": {"id"}})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	var resources []orderResource
	if len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &resources); err != nil {
			return nil, fmt.Errorf("list orders: decode data: %w", err)
		}
	}

	orders := make([]*domain.TransportOrder, 0, len(resources))
	for _, res := range resources {
		o, err := res.toDomain()
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// StopOperations builds one update operation per move, in order.
func StopOperations(moves []ports.StopMove) ([]jsonapi.Operation, error) {
	ops := make([]jsonapi.Operation, 0, len(moves))
	for _, m := range moves {
		if m.Kind != domain.StopPickup && m.Kind != domain.StopDelivery {
			return nil, fmt.Errorf("unknown stop kind %q", m.Kind)
		}
		ops = append(ops, jsonapi.NewUpdateOperation(jsonapi.Resource{
			Type: orderResourceType,
			ID:   strconv.Itoa(m.OrderID),
			Attributes: map[string]any{
				m.Kind + "_lat": m.Position.Lat,
				m.Kind + "_lng": m.Position.Lng,
			},
		}))
	}
	return ops, nil
}

// MoveStops sends all moves as one atomic request. A rejected batch with field
// errors comes back as a *jsonapi.DisplayableError.
func (r *APIOrderRepository) MoveStops(ctx context.Context, moves []ports.StopMove) (err error) {
	defer obs.Time(ctx, "orders.api.MoveStops")(&err)

	if r.Client == nil {
		return errors.New("api order repository: client is nil")
	}
	if len(moves) == 0 {
		return nil
	}

	ops, err := StopOperations(moves)
	if err != nil {
		return fmt.Errorf("move stops: %w", err)
	}

	if _, err := r.Client.Atomic(ctx, "operations", ops); err != nil {
		return fmt.Errorf("move stops: %w", jsonapi.WithDisplayableErrors(err, ops))
	}
	return nil
}
