package dto

import (
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/services"
)

type StopResponse struct {
	Name     string             `json:"name"`
	Position domain.Coordinates `json:"position"`
}

type OrderResponse struct {
	ID       int          `json:"id"`
	Number   string       `json:"number"`
	Status   string       `json:"status"`
	Pickup   StopResponse `json:"pickup"`
	Delivery StopResponse `json:"delivery"`
	Weight   string       `json:"weight,omitempty"`
}

type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
}

func NewListOrdersResponse(orders []*domain.TransportOrder) ListOrdersResponse {
	res := ListOrdersResponse{Orders: make([]OrderResponse, 0, len(orders))}
	for _, o := range orders {
		res.Orders = append(res.Orders, OrderResponse{
			ID:       o.OrderID,
			Number:   o.Number,
			Status:   o.Status,
			Pickup:   StopResponse{Name: o.Pickup.Name, Position: o.Pickup.Position},
			Delivery: StopResponse{Name: o.Delivery.Name, Position: o.Delivery.Position},
			Weight:   services.FormatWeight(o),
		})
	}
	return res
}

type StopMoveRequest struct {
	OrderID  int                `json:"order_id"`
	Kind     string             `json:"kind"`
	Position domain.Coordinates `json:"position"`
}

type MoveStopsRequest struct {
	Moves []StopMoveRequest `json:"moves"`
}
