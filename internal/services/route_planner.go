package services

import (
	"context"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/ports"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"
)

// Plan a route through stops using a greedy nearest-neighbor algorithm.
//
// The algorithm minimizes immediate travel duration at each step.
// It does not attempt global route optimization (e.g., VRP solvers).
// Stops sharing a location are visited together and get the same arrival time.
func PlanRoute(
	ctx context.Context,
	routeID int,
	departAt time.Time,
	start domain.Coordinates,
	stops []domain.RouteStop,
	distanceProvider ports.DistanceProvider,
	returnToStart bool,
) (*domain.RoutePlan, error) {
	if !start.Valid() {
		return nil, errors.New("plan route: start coordinates out of range")
	}
	if distanceProvider == nil {
		return nil, errors.New("plan route: distance provider is nil")
	}

	plan := &domain.RoutePlan{
		RouteID:  routeID,
		Start:    start,
		DepartAt: departAt,
		Stops:    []domain.RouteStop{},
	}
	if len(stops) == 0 {
		return plan, nil
	}

	byLocation := make(map[string][]domain.RouteStop)
	positions := make(map[string]domain.Coordinates)
	for _, s := range stops {
		if !s.Position.Valid() {
			return nil, fmt.Errorf("plan route: stop %d coordinates out of range", s.StopID)
		}
		k := s.Position.Fingerprint()
		byLocation[k] = append(byLocation[k], s)
		positions[k] = s.Position
	}

	currentTime := departAt
	current := start

	for len(byLocation) > 0 {
		keys := make([]string, 0, len(byLocation))
		for k := range byLocation {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		results, err := distancesFrom(ctx, distanceProvider, current, keys, positions)
		if err != nil {
			return nil, fmt.Errorf("plan route: %w", err)
		}

		var best string
		minDuration := math.MaxInt
		// Select next stop by minimum travel duration (greedy step).
		// keys are sorted, so ties resolve to the smallest fingerprint.
		for _, k := range keys {
			r, ok := results[k]
			if !ok {
				return nil, fmt.Errorf("plan route: no route from %s to %s", current.Fingerprint(), k)
			}
			if r.DurationSeconds < minDuration {
				minDuration = r.DurationSeconds
				best = k
			}
		}
		bestResult := results[best]

		currentTime = currentTime.Add(time.Duration(bestResult.DurationSeconds) * time.Second)
		plan.TotalDurationSeconds += bestResult.DurationSeconds
		plan.TotalDistanceMeters += bestResult.DistanceMeters

		group := byLocation[best]
		sort.Slice(group, func(i, j int) bool { return group[i].StopID < group[j].StopID })
		for _, s := range group {
			s.ArriveAt = currentTime
			plan.Stops = append(plan.Stops, s)
		}

		delete(byLocation, best)
		current = positions[best]
	}

	// Optionally include the return leg in the route totals.
	if returnToStart && current.Fingerprint() != start.Fingerprint() {
		back, err := distanceProvider.GetDistance(ctx, current, start)
		if err != nil {
			return nil, fmt.Errorf("plan route: return leg from %s: %w", current.Fingerprint(), err)
		}
		plan.TotalDurationSeconds += back.DurationSeconds
		plan.TotalDistanceMeters += back.DistanceMeters
	}

	return plan, nil
}

// distancesFrom prefers batched lookups when the provider supports them.
// Unreachable destinations are absent from the result.
func distancesFrom(
	ctx context.Context,
	provider ports.DistanceProvider,
	from domain.Coordinates,
	keys []string,
	positions map[string]domain.Coordinates,
) (map[string]ports.DistanceResult, error) {
	if matrix, ok := provider.(ports.DistanceMatrixProvider); ok {
		dests := make([]domain.Coordinates, 0, len(keys))
		for _, k := range keys {
			dests = append(dests, positions[k])
		}
		results, err := matrix.GetDistances(ctx, from, dests)
		if err != nil {
			return nil, fmt.Errorf("get distances matrix from %s: %w", from.Fingerprint(), err)
		}
		if results == nil {
			results = map[string]ports.DistanceResult{}
		}
		if slices.Contains(keys, from.Fingerprint()) {
			// a stop at the current location costs nothing
			results[from.Fingerprint()] = ports.DistanceResult{}
		}
		return results, nil
	}

	results := make(map[string]ports.DistanceResult, len(keys))
	for _, k := range keys {
		if k == from.Fingerprint() {
			results[k] = ports.DistanceResult{}
			continue
		}
		r, err := provider.GetDistance(ctx, from, positions[k])
		if errors.Is(err, ports.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get distance from %s to %s: %w", from.Fingerprint(), k, err)
		}
		results[k] = r
	}
	return results, nil
}
