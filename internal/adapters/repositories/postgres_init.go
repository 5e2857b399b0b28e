package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"dispatch-map-service/internal/domain"
)

// InitSchema creates the tables used by the order repository and the caches.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`
	CREATE TABLE IF NOT EXISTS transport_orders (
		order_id INTEGER PRIMARY KEY,
		number TEXT NOT NULL,
		status TEXT NOT NULL,
		pickup_name TEXT NOT NULL DEFAULT '',
		pickup_lat DOUBLE PRECISION NOT NULL,
		pickup_lng DOUBLE PRECISION NOT NULL,
		delivery_name TEXT NOT NULL DEFAULT '',
		delivery_lat DOUBLE PRECISION NOT NULL,
		delivery_lng DOUBLE PRECISION NOT NULL,
		weight BIGINT,
		weight_precision INTEGER
	);
	`,
		`
	CREATE TABLE IF NOT EXISTS distance_cache (
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		distance_meters INTEGER NOT NULL,
		duration_seconds INTEGER NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (origin, destination)
	);
	`,
		`
	CREATE TABLE IF NOT EXISTS geocode_cache (
		address TEXT PRIMARY KEY,
		lat DOUBLE PRECISION NOT NULL,
		lng DOUBLE PRECISION NOT NULL
	);
	`,
		`
	CREATE INDEX IF NOT EXISTS idx_distance_cache_destination_origin
	ON distance_cache(destination, origin);
	`,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type StopSeed struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// OrderSeed is one transport order in the seed file. Weight is the stored integer;
// WeightPrecision says how many decimal places it is shifted by.
type OrderSeed struct {
	OrderID         int      `json:"order_id"`
	Number          string   `json:"number"`
	Status          string   `json:"status"`
	Pickup          StopSeed `json:"pickup"`
	Delivery        StopSeed `json:"delivery"`
	Weight          *int64   `json:"weight"`
	WeightPrecision *int     `json:"weight_precision"`
}

var seedStatuses = map[string]bool{
	domain.OrderStatusPlanned:   true,
	domain.OrderStatusInTransit: true,
	domain.OrderStatusDelivered: true,
}

func (s OrderSeed) validate(index int) error {
	if s.OrderID <= 0 {
		return fmt.Errorf("invalid order_id at index %d: %d", index, s.OrderID)
	}
	if strings.TrimSpace(s.Number) == "" {
		return fmt.Errorf("order at index %d: number cannot be empty", index)
	}
	if !seedStatuses[s.Status] {
		return fmt.Errorf("order at index %d: unknown status %q", index, s.Status)
	}
	for kind, stop := range map[string]StopSeed{"pickup": s.Pickup, "delivery": s.Delivery} {
		if !(domain.Coordinates{Lat: stop.Lat, Lng: stop.Lng}).Valid() {
			return fmt.Errorf("order at index %d: %s coordinates out of range", index, kind)
		}
	}
	if (s.Weight == nil) != (s.WeightPrecision == nil) {
		return fmt.Errorf("order at index %d: weight and weight_precision go together", index)
	}
	return nil
}

// SeedFromJSON upserts transport orders from a JSON file.
func SeedFromJSON(ctx context.Context, db *sql.DB, jsonPath string) error {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed orders: read %q: %w", jsonPath, err)
	}

	var data []OrderSeed
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("seed orders: parse json: %w", err)
	}

	for i, item := range data {
		if err := item.validate(i + 1); err != nil {
			return fmt.Errorf("seed orders: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed orders: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO transport_orders (
		order_id, number, status,
		pickup_name, pickup_lat, pickup_lng,
		delivery_name, delivery_lat, delivery_lng,
		weight, weight_precision
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (order_id) DO UPDATE
	SET number = EXCLUDED.number,
		status = EXCLUDED.status,
		pickup_name = EXCLUDED.pickup_name,
		pickup_lat = EXCLUDED.pickup_lat,
		pickup_lng = EXCLUDED.pickup_lng,
		delivery_name = EXCLUDED.delivery_name,
		delivery_lat = EXCLUDED.delivery_lat,
		delivery_lng = EXCLUDED.delivery_lng,
		weight = EXCLUDED.weight,
		weight_precision = EXCLUDED.weight_precision;
	`)
	if err != nil {
		return fmt.Errorf("seed orders: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range data {
		if _, err := stmt.ExecContext(ctx,
			o.OrderID, strings.TrimSpace(o.Number), o.Status,
			o.Pickup.Name, o.Pickup.Lat, o.Pickup.Lng,
			o.Delivery.Name, o.Delivery.Lat, o.Delivery.Lng,
			o.Weight, o.WeightPrecision,
		); err != nil {
			return fmt.Errorf("seed orders: insert order_id=%d: %w", o.OrderID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed orders: commit tx: %w", err)
	}

	return nil
}
