package handlers

import (
	"context"
	"dispatch-map-service/internal/api/dto"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/jsonapi"
	"dispatch-map-service/internal/mapview"
	"dispatch-map-service/internal/ports"
	"dispatch-map-service/internal/services"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
)

const maxFeatureBody = 8 << 20

// MapHandler serves map sessions: viewport control, feature updates and
// marker interactions. Orders and Distances are optional.
type MapHandler struct {
	Store     *mapview.Store
	Orders    ports.OrderRepository
	Guard     *jsonapi.Guard
	Distances ports.DistanceProvider
}

// session resolves {id}, writing a 404 when it is unknown.
func (h *MapHandler) session(w http.ResponseWriter, r *http.Request) (*mapview.Session, bool) {
	sess, ok := h.Store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "map_not_found", "map session not found")
		return nil, false
	}
	return sess, true
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, mapview.ErrDestroyed):
		writeError(w, r, http.StatusGone, "map_destroyed", err.Error())
	case errors.Is(err, mapview.ErrNotMounted):
		writeError(w, r, http.StatusConflict, "map_not_mounted", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("map session operation failed")
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (h *MapHandler) writeSnapshot(w http.ResponseWriter, r *http.Request, status int, sess *mapview.Session) {
	snap, err := sess.Snapshot()
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, r, status, dto.NewMapResponse(snap))
}

func validCenter(c *domain.Coordinates) bool {
	return c == nil || c.Valid()
}

func (h *MapHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateMapRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	if !validCenter(req.Center) {
		writeFieldError(w, r, http.StatusUnprocessableEntity, "/center", "coordinates out of range")
		return
	}
	if req.Width < 0 || req.Height < 0 {
		writeFieldError(w, r, http.StatusUnprocessableEntity, "/width", "size must not be negative")
		return
	}
	if req.MaxPoints != nil && *req.MaxPoints < 0 {
		writeFieldError(w, r, http.StatusUnprocessableEntity, "/max_points", "must not be negative")
		return
	}

	sess, err := h.Store.Create(mapview.CreateOptions{
		Center:             req.Center,
		Zoom:               req.Zoom,
		Width:              req.Width,
		Height:             req.Height,
		MaxPoints:          req.MaxPoints,
		MinPointsInCluster: req.MinPointsInCluster,
	})
	if err != nil {
		writeSessionError(w, r, err)
		return
	}

	w.Header().Set("Location", "/maps/"+sess.ID())
	h.writeSnapshot(w, r, http.StatusCreated, sess)
}

func (h *MapHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeSnapshot(w, r, http.StatusOK, sess)
}

func (h *MapHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.Store.Remove(chi.URLParam(r, "id")) {
		writeError(w, r, http.StatusNotFound, "map_not_found", "map session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Viewport applies size, zoom and center, in that order.
func (h *MapHandler) Viewport(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req dto.ViewportRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	if !validCenter(req.Center) {
		writeFieldError(w, r, http.StatusUnprocessableEntity, "/center", "coordinates out of range")
		return
	}

	if req.Width != nil || req.Height != nil {
		if err := sess.ResizePartial(req.Width, req.Height); err != nil {
			writeSessionError(w, r, err)
			return
		}
	}
	if req.Zoom != nil {
		if err := sess.SetZoom(*req.Zoom); err != nil {
			writeSessionError(w, r, err)
			return
		}
	}
	if req.Center != nil {
		if err := sess.SetCenter(*req.Center); err != nil {
			writeSessionError(w, r, err)
			return
		}
	}

	h.writeSnapshot(w, r, http.StatusOK, sess)
}

func (h *MapHandler) Drag(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req dto.DragRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	if !validCenter(req.Center) {
		writeFieldError(w, r, http.StatusUnprocessableEntity, "/center", "coordinates out of range")
		return
	}

	var err error
	switch req.Phase {
	case dto.DragStart:
		err = sess.BeginDrag()
	case dto.DragMove:
		if req.Center == nil {
			writeFieldError(w, r, http.StatusUnprocessableEntity, "/center", "center is required while moving")
			return
		}
		err = sess.DragTo(*req.Center)
	case dto.DragEnd:
		if req.Center != nil {
			if err = sess.DragTo(*req.Center); err != nil {
				break
			}
		}
		err = sess.EndDrag()
	default:
		writeFieldError(w, r, http.StatusUnprocessableEntity, "/phase", fmt.Sprintf("phase must be %q, %q or %q", dto.DragStart, dto.DragMove, dto.DragEnd))
		return
	}
	if err != nil {
		writeSessionError(w, r, err)
		return
	}

	h.writeSnapshot(w, r, http.StatusOK, sess)
}

func (h *MapHandler) Settings(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req dto.SettingsRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	if req.MaxPoints != nil && *req.MaxPoints < 0 {
		writeFieldError(w, r, http.StatusUnprocessableEntity, "/max_points", "must not be negative")
		return
	}
	if req.MinPointsInCluster != nil && *req.MinPointsInCluster < 1 {
		writeFieldError(w, r, http.StatusUnprocessableEntity, "/min_points_in_cluster", "must be at least 1")
		return
	}

	if req.MinPointsInCluster != nil {
		if err := sess.SetMinPointsInCluster(*req.MinPointsInCluster); err != nil {
			writeSessionError(w, r, err)
			return
		}
	}
	if req.MaxPoints != nil {
		if err := sess.SetMaxPoints(*req.MaxPoints); err != nil {
			writeSessionError(w, r, err)
			return
		}
	}

	h.writeSnapshot(w, r, http.StatusOK, sess)
}

// GetFeatures returns the current feature set as a GeoJSON FeatureCollection.
func (h *MapHandler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	points, lines, err := sess.Features()
	if err != nil {
		writeSessionError(w, r, err)
		return
	}

	body, err := mapview.FeatureCollection(points, lines).MarshalJSON()
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// PutFeatures replaces the feature set with a GeoJSON FeatureCollection.
func (h *MapHandler) PutFeatures(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxFeatureBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "could not read body")
		return
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_geojson", "body must be a GeoJSON FeatureCollection")
		return
	}

	points, lines, err := mapview.FeaturesFromGeoJSON(fc)
	if err != nil {
		var fe *mapview.FeatureError
		if errors.As(err, &fe) {
			writeFieldError(w, r, http.StatusUnprocessableEntity, fe.Pointer(), fe.Message)
			return
		}
		writeError(w, r, http.StatusUnprocessableEntity, "invalid_features", err.Error())
		return
	}

	h.applyFeatures(w, r, sess, points, lines)
}

func (h *MapHandler) applyFeatures(w http.ResponseWriter, r *http.Request, sess *mapview.Session, points []domain.PointFeature, lines []domain.LineFeature) {
	if err := h.Store.UpdateFeatures(sess, points, lines); err != nil {
		writeSessionError(w, r, err)
		return
	}
	h.writeSnapshot(w, r, http.StatusOK, sess)
}

// OrderFeatures draws the transport orders of the repository on the map.
func (h *MapHandler) OrderFeatures(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.Orders == nil {
		writeError(w, r, http.StatusServiceUnavailable, "orders_unavailable", "no order source configured")
		return
	}

	var req dto.OrderFeaturesRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	for i, kind := range req.StopKinds {
		if kind != domain.StopPickup && kind != domain.StopDelivery {
			writeFieldError(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("/stop_kinds/%d", i), fmt.Sprintf("unknown stop kind %q", kind))
			return
		}
	}

	orders, err := jsonapi.Call(r.Context(), h.Guard, h.Orders.ListOrders)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "orders_failed", "could not load orders")
		return
	}

	points, lines := services.OrderFeatures(orders, services.OrderFeatureOptions{
		StopKinds: req.StopKinds,
		ShowLines: req.ShowLines,
	})
	h.applyFeatures(w, r, sess, points, lines)
}

// RouteFeatures plans a route through the given stops and draws it.
func (h *MapHandler) RouteFeatures(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.Distances == nil {
		writeError(w, r, http.StatusServiceUnavailable, "routing_unavailable", "no distance provider configured")
		return
	}

	var req dto.RouteRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}

	snap, err := sess.Snapshot()
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	start := snap.Center
	if req.Start != nil {
		start = *req.Start
	}
	if !start.Valid() {
		writeFieldError(w, r, http.StatusUnprocessableEntity, "/start", "coordinates out of range")
		return
	}

	stops := make([]domain.RouteStop, 0, len(req.Stops))
	seen := make(map[int]struct{}, len(req.Stops))
	for i, s := range req.Stops {
		if !s.Position.Valid() {
			writeFieldError(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("/stops/%d/position", i), "coordinates out of range")
			return
		}
		if _, dup := seen[s.ID]; dup {
			writeFieldError(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("/stops/%d/id", i), "duplicate stop id")
			return
		}
		seen[s.ID] = struct{}{}
		stops = append(stops, domain.RouteStop{StopID: s.ID, Name: s.Name, Position: s.Position})
	}

	depart := time.Now().UTC()
	if req.DepartAt != nil {
		depart = *req.DepartAt
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	plan, err := services.PlanRoute(ctx, req.RouteID, depart, start, stops, h.Distances, req.ReturnToStart)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("route planning failed")
		writeError(w, r, http.StatusBadGateway, "route_failed", "could not plan route")
		return
	}

	points, lines := services.RouteFeatures(plan)
	if err := h.Store.UpdateFeatures(sess, points, lines); err != nil {
		writeSessionError(w, r, err)
		return
	}

	snap, err = sess.Snapshot()
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.RouteResponse{
		Plan: dto.NewRoutePlanResponse(plan),
		Map:  dto.NewMapResponse(snap),
	})
}

func (h *MapHandler) writeAction(w http.ResponseWriter, r *http.Request, sess *mapview.Session, found bool, err error, missing string) {
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, "not_found", missing)
		return
	}
	snap, err := sess.Snapshot()
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.ActionResponse{Found: true, Map: dto.NewMapResponse(snap)})
}

func (h *MapHandler) ClickPoint(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	found, err := sess.ClickPoint(chi.URLParam(r, "key"))
	h.writeAction(w, r, sess, found, err, "point not found")
}

func (h *MapHandler) ExpandCluster(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	found, err := sess.ExpandCluster(chi.URLParam(r, "clusterID"))
	h.writeAction(w, r, sess, found, err, "cluster not found")
}

func (h *MapHandler) Unspiderfy(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Unspiderfy(); err != nil {
		writeSessionError(w, r, err)
		return
	}
	h.writeSnapshot(w, r, http.StatusOK, sess)
}

// DrivingTimes looks up the driving time of every connection. A newer request for
// the same map cancels this one, which then answers 409.
func (h *MapHandler) DrivingTimes(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	times, err := sess.CalculateDrivingTimes(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() == nil {
			writeError(w, r, http.StatusConflict, "superseded", "a newer driving time calculation started")
			return
		}
		if errors.Is(err, mapview.ErrDestroyed) || errors.Is(err, mapview.ErrNotMounted) {
			writeSessionError(w, r, err)
			return
		}
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("driving time lookup failed")
		writeError(w, r, http.StatusBadGateway, "driving_times_failed", "could not look up driving times")
		return
	}

	res := dto.DrivingTimesResponse{Items: make([]dto.DrivingTimeResponse, 0, len(times))}
	for _, t := range times {
		res.Items = append(res.Items, dto.DrivingTimeResponse(t))
	}
	writeJSON(w, r, http.StatusOK, res)
}
