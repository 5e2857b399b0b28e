package ports

import (
	"context"
	"dispatch-map-service/internal/domain"
)

// Port: a boundary for retrieving transport orders from a data source.
type OrderRepository interface {
	// Retrieve all orders that should be drawn on the orders map.
	ListOrders(ctx context.Context) ([]*domain.TransportOrder, error)
}

// StopMove relocates the pickup or delivery stop of an order.
type StopMove struct {
	OrderID  int
	Kind     string // domain.StopPickup or domain.StopDelivery
	Position domain.Coordinates
}

// OrderStopWriter persists stop relocations in one atomic batch.
type OrderStopWriter interface {
	MoveStops(ctx context.Context, moves []StopMove) error
}
