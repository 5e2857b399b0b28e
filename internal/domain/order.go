package domain

// Status values of a transport order as reported by the dispatch backend.
const (
	OrderStatusPlanned   = "planned"
	OrderStatusInTransit = "in_transit"
	OrderStatusDelivered = "delivered"
)

// Stop kinds of a transport order.
const (
	StopPickup   = "pickup"
	StopDelivery = "delivery"
)

// A named place where goods are picked up or delivered.
type Stop struct {
	Name     string
	Position Coordinates
}

// Represents a single transport order drawn on the orders map.
// Weight is stored as an integer with a separate precision: Weight 1234 with
// WeightPrecision 2 means 12.34 tonnes.
type TransportOrder struct {
	OrderID         int
	Number          string
	Status          string
	Pickup          Stop
	Delivery        Stop
	Weight          *float64
	WeightPrecision *int
}
