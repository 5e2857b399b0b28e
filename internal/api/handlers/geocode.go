package handlers

import (
	"dispatch-map-service/internal/api/dto"
	"dispatch-map-service/internal/ports"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type GeocodeHandler struct {
	Geocoder ports.Geocoder
}

// Geocode resolves ?q= to coordinates, typically to center a map on an address.
func (h *GeocodeHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	if h.Geocoder == nil {
		writeError(w, r, http.StatusServiceUnavailable, "geocoding_unavailable", "no geocoder configured")
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, r, http.StatusBadRequest, "missing_query", "query parameter q is required")
		return
	}

	pos, err := h.Geocoder.Geocode(r.Context(), q)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "address_not_found", "no location matches the address")
			return
		}
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("query", q).Msg("geocode failed")
		writeError(w, r, http.StatusBadGateway, "geocoding_failed", "could not geocode address")
		return
	}

	writeJSON(w, r, http.StatusOK, dto.GeocodeResponse{Query: q, Position: pos})
}
