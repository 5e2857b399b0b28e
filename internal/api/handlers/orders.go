package handlers

import (
	"dispatch-map-service/internal/api/dto"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/jsonapi"
	"dispatch-map-service/internal/ports"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// positionFields folds the coordinate attributes of a stop into the request field.
var positionFields = map[string]string{
	"pickup_lat":   "position",
	"pickup_lng":   "position",
	"delivery_lat": "position",
	"delivery_lng": "position",
}

type OrderHandler struct {
	Repo  ports.OrderRepository
	Stops ports.OrderStopWriter
	Guard *jsonapi.Guard
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		writeError(w, r, http.StatusServiceUnavailable, "orders_unavailable", "no order source configured")
		return
	}

	orders, err := jsonapi.Call(r.Context(), h.Guard, h.Repo.ListOrders)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list orders failed")
		writeError(w, r, http.StatusBadGateway, "orders_failed", "could not load orders")
		return
	}

	writeJSON(w, r, http.StatusOK, dto.NewListOrdersResponse(orders))
}

// MoveStops relocates order stops in one batch. Validation errors of the backend
// are reported against the moves they concern.
func (h *OrderHandler) MoveStops(w http.ResponseWriter, r *http.Request) {
	if h.Stops == nil {
		writeError(w, r, http.StatusServiceUnavailable, "orders_unavailable", "no order source configured")
		return
	}

	var req dto.MoveStopsRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	if len(req.Moves) == 0 {
		writeFieldError(w, r, http.StatusUnprocessableEntity, "/moves", "at least one move is required")
		return
	}

	moves := make([]ports.StopMove, 0, len(req.Moves))
	for i, m := range req.Moves {
		if m.Kind != domain.StopPickup && m.Kind != domain.StopDelivery {
			writeFieldError(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("/moves/%d/kind", i), fmt.Sprintf("unknown stop kind %q", m.Kind))
			return
		}
		if !m.Position.Valid() {
			writeFieldError(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("/moves/%d/position", i), "coordinates out of range")
			return
		}
		moves = append(moves, ports.StopMove{OrderID: m.OrderID, Kind: m.Kind, Position: m.Position})
	}

	err := h.Stops.MoveStops(r.Context(), moves)
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var apiErr *jsonapi.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		_ = h.Guard.Handle(r.Context(), err)
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "the backend rejected the api token")
		return
	}

	var shown *jsonapi.DisplayableError
	if errors.As(err, &shown) {
		writeErrors(w, r, shown.Status, moveErrors(req.Moves, shown.Errors))
		return
	}

	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "order_not_found", err.Error())
		return
	}

	if err = h.Guard.Handle(r.Context(), err); err == nil {
		writeError(w, r, http.StatusServiceUnavailable, "move_cancelled", "the request was cancelled")
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Msg("move stops failed")
	writeError(w, r, http.StatusBadGateway, "move_failed", "could not move stops")
}

// moveErrors points each backend error at the move it concerns. Errors that match
// no move keep no source.
func moveErrors(moves []dto.StopMoveRequest, errs jsonapi.ErrorCollection) []jsonapi.ResponseError {
	remapped := errs.RemapFields(positionFields)
	out := make([]jsonapi.ResponseError, 0, len(errs))
	for n, e := range errs {
		idx := -1
		for i, m := range moves {
			if strconv.Itoa(m.OrderID) == e.ResourceID && strings.HasPrefix(e.FieldName, m.Kind+"_") {
				idx = i
				break
			}
		}

		re := jsonapi.ResponseError{Code: e.Code, Title: e.Title, Detail: e.Message}
		if idx >= 0 {
			re.Source = &jsonapi.ErrorSource{Pointer: fmt.Sprintf("/moves/%d/%s", idx, remapped[n].FieldName)}
		}
		out = append(out, re)
	}
	return out
}
