package handlers

import (
	"dispatch-map-service/internal/jsonapi"
	"net/http"
)

type HealthHandler struct {
	// Errors holds the last unexpected backend error, if any.
	Errors *jsonapi.ErrorSlot
}

type healthResponse struct {
	Status    string `json:"status"`
	LastError string `json:"last_error,omitempty"`
}

// Health provides a minimal liveness check endpoint.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{Status: "ok"}
	if h.Errors != nil {
		if err := h.Errors.Get(); err != nil {
			res.LastError = err.Error()
		}
	}
	writeJSON(w, r, http.StatusOK, res)
}
