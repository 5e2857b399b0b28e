package distance

import (
	"bytes"
	"context"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"net/http"
)

type matrixRequest struct {
	Locations    [][]float64 `json:"locations"`
	Destinations []int       `json:"destinations"`
	Metrics      []string    `json:"metrics"`
	Sources      []int       `json:"sources"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

// maxMatrixDestinations keeps each request under the 50 locations the public ORS
// matrix endpoint accepts.
const maxMatrixDestinations = 49

// fetchMatrixRow retrieves distance and duration from one origin to many destinations
// using the ORS matrix endpoint, one request per maxMatrixDestinations. A null cell means
// ORS found no route; that destination is omitted from the result.
func (o *ORSProvider) fetchMatrixRow(
	ctx context.Context,
	origin domain.Coordinates,
	destinations []string,
	destinationCoords []domain.Coordinates,
) (map[string]ports.DistanceResult, error) {
	if len(destinations) != len(destinationCoords) {
		return nil, errors.New("destinations and destinationCoords are expected to have the same length")
	}

	out := make(map[string]ports.DistanceResult, len(destinations))
	for start := 0; start < len(destinations); start += maxMatrixDestinations {
		end := min(start+maxMatrixDestinations, len(destinations))
		chunk, err := o.fetchMatrixChunk(ctx, origin, destinations[start:end], destinationCoords[start:end])
		if err != nil {
			return nil, err
		}
		maps.Copy(out, chunk)
	}
	return out, nil
}

func (o *ORSProvider) fetchMatrixChunk(
	ctx context.Context,
	origin domain.Coordinates,
	destinations []string,
	destinationCoords []domain.Coordinates,
) (map[string]ports.DistanceResult, error) {
	endpoint := fmt.Sprintf("%s/v2/matrix/%s", o.baseURL, o.profile)

	locations := make([][]float64, 0, 1+len(destinationCoords))
	locations = append(locations, origin.CoordsToList())
	destIdx := make([]int, 0, len(destinationCoords))
	for i, c := range destinationCoords {
		locations = append(locations, c.CoordsToList())
		destIdx = append(destIdx, i+1)
	}

	payload, err := json.Marshal(matrixRequest{
		Locations:    locations,
		Destinations: destIdx,
		Metrics:      []string{"distance", "duration"},
		Sources:      []int{0},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal matrix request: %w", err)
	}

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return o.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("matrix request failed: %w", err)
	}
	defer resp.Body.Close()

	var mr matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("decode matrix response: %w", err)
	}

	if len(mr.Distances) != 1 || len(mr.Durations) != 1 {
		return nil, fmt.Errorf(
			"expected 1 source row; got distances=%d durations=%d",
			len(mr.Distances), len(mr.Durations),
		)
	}

	rowDistances := mr.Distances[0]
	rowDurations := mr.Durations[0]
	if len(rowDistances) != len(destinations) || len(rowDurations) != len(destinations) {
		return nil, fmt.Errorf(
			"row lengths do not match destinations: distances=%d durations=%d destinations=%d",
			len(rowDistances), len(rowDurations), len(destinations),
		)
	}

	out := make(map[string]ports.DistanceResult, len(destinations))
	for i, dest := range destinations {
		meters, seconds := rowDistances[i], rowDurations[i]
		if meters == nil || seconds == nil {
			continue
		}
		out[dest] = ports.DistanceResult{
			DistanceMeters:  int(math.Round(*meters)),
			DurationSeconds: int(math.Round(*seconds)),
		}
	}

	return out, nil
}
