package repositories

import (
	"context"
	"database/sql"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/platform/obs"
	"dispatch-map-service/internal/ports"
	"errors"
	"fmt"
)

// Postgres-backed implementation of the OrderRepository and OrderStopWriter ports.
type PostgresOrderRepository struct{ DB *sql.DB }

var (
	_ ports.OrderRepository = (*PostgresOrderRepository)(nil)
	_ ports.OrderStopWriter = (*PostgresOrderRepository)(nil)
)

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{DB: db}
}

// Return all transport orders ordered by id.
func (r *PostgresOrderRepository) ListOrders(ctx context.Context) (_ []*domain.TransportOrder, err error) {
	defer obs.Time(ctx, "orders.postgres.ListOrders")(&err)

	if r.DB == nil {
		return nil, errors.New("postgres order repository: DB is nil")
	}

	rows, err := r.DB.QueryContext(ctx, `
	SELECT
		order_id, number, status,
		pickup_name, pickup_lat, pickup_lng,
		delivery_name, delivery_lat, delivery_lng,
		weight, weight_precision
	FROM transport_orders
	ORDER BY order_id;
	`)
	if err != nil {
		return nil, fmt.Errorf("list orders: query transport_orders table: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.TransportOrder, 0, 64)
	for rows.Next() {
		var (
			o         domain.TransportOrder
			weight    sql.NullInt64
			precision sql.NullInt32
		)
		if err := rows.Scan(
			&o.OrderID, &o.Number, &o.Status,
			&o.Pickup.Name, &o.Pickup.Position.Lat, &o.Pickup.Position.Lng,
			&o.Delivery.Name, &o.Delivery.Position.Lat, &o.Delivery.Position.Lng,
			&weight, &precision,
		); err != nil {
			return nil, fmt.Errorf("list orders: scan row: %w", err)
		}
		if weight.Valid {
			w := float64(weight.Int64)
			o.Weight = &w
		}
		if precision.Valid {
			p := int(precision.Int32)
			o.WeightPrecision = &p
		}
		orders = append(orders, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: row iteration: %w", err)
	}

	return orders, nil
}

// MoveStops applies all moves in one transaction. An unknown order rolls back the
// batch with ports.ErrNotFound.
func (r *PostgresOrderRepository) MoveStops(ctx context.Context, moves []ports.StopMove) (err error) {
	defer obs.Time(ctx, "orders.postgres.MoveStops")(&err)

	if r.DB == nil {
		return errors.New("postgres order repository: DB is nil")
	}
	if len(moves) == 0 {
		return nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("move stops: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range moves {
		var q string
		switch m.Kind {
		case domain.StopPickup:
			q = `UPDATE transport_orders SET pickup_lat = $2, pickup_lng = $3 WHERE order_id = $1;`
		case domain.StopDelivery:
			q = `UPDATE transport_orders SET delivery_lat = $2, delivery_lng = $3 WHERE order_id = $1;`
		default:
			return fmt.Errorf("move stops: unknown stop kind %q", m.Kind)
		}

		res, err := tx.ExecContext(ctx, q, m.OrderID, m.Position.Lat, m.Position.Lng)
		if err != nil {
			return fmt.Errorf("move stops: update order_id=%d: %w", m.OrderID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("move stops: order_id=%d: %w", m.OrderID, ports.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("move stops: commit tx: %w", err)
	}
	return nil
}
