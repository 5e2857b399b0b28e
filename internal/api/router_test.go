package api

import (
	"bytes"
	"context"
	"dispatch-map-service/internal/adapters/distance"
	"dispatch-map-service/internal/api/dto"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/jsonapi"
	"dispatch-map-service/internal/mapview"
	"dispatch-map-service/internal/platform/metrics"
	"dispatch-map-service/internal/ports"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tallinn = domain.Coordinates{Lat: 59.437, Lng: 24.7536}
	tartu   = domain.Coordinates{Lat: 58.378, Lng: 26.7225}
)

type fakeOrders struct {
	orders []*domain.TransportOrder
	err    error
}

func (f *fakeOrders) ListOrders(context.Context) ([]*domain.TransportOrder, error) {
	return f.orders, f.err
}

type fakeStops struct {
	mu  sync.Mutex
	got []ports.StopMove
	err error
}

func (f *fakeStops) MoveStops(_ context.Context, moves []ports.StopMove) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = moves
	return f.err
}

func (f *fakeStops) moves() []ports.StopMove {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

type fakeGeocoder struct {
	pos domain.Coordinates
	err error
}

func (f fakeGeocoder) Geocode(context.Context, string) (domain.Coordinates, error) {
	return f.pos, f.err
}

func newTestServer(t *testing.T, mutate func(*Deps)) (*httptest.Server, *mapview.Store) {
	t.Helper()
	store := mapview.NewStore(mapview.StoreConfig{Center: tallinn, Zoom: 12, MaxPoints: 100, MinPointsInCluster: 3}, nil, nil, zerolog.Nop())
	d := Deps{
		Log:     zerolog.Nop(),
		Metrics: metrics.New(),
		Maps:    store,
		Orders: &fakeOrders{orders: []*domain.TransportOrder{{
			OrderID:  1,
			Number:   "TO-1",
			Status:   domain.OrderStatusPlanned,
			Pickup:   domain.Stop{Name: "Depot", Position: tallinn},
			Delivery: domain.Stop{Name: "Tartu", Position: tartu},
		}}},
		Guard: &jsonapi.Guard{},
	}
	if mutate != nil {
		mutate(&d)
	}
	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(func() {
		srv.Close()
		store.Close()
	})
	return srv, store
}

func call(t *testing.T, method, url string, body any, header http.Header) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type errorBody struct {
	Errors []struct {
		Status string `json:"status"`
		Code   string `json:"code"`
		Detail string `json:"detail"`
		Source *struct {
			Pointer string `json:"pointer"`
		} `json:"source"`
	} `json:"errors"`
}

func createMap(t *testing.T, base string) dto.MapResponse {
	t.Helper()
	resp := call(t, http.MethodPost, base+"/maps", dto.CreateMapRequest{Width: 800, Height: 600}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	m := decode[dto.MapResponse](t, resp)
	assert.Equal(t, "/maps/"+m.ID, resp.Header.Get("Location"))
	return m
}

func TestHealthAndMetrics(t *testing.T) {
	slot := &jsonapi.ErrorSlot{}
	srv, _ := newTestServer(t, func(d *Deps) { d.Guard = &jsonapi.Guard{Slot: slot} })

	resp := call(t, http.MethodGet, srv.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, resp))

	slot.Set(errors.New("backend unreachable"))
	resp = call(t, http.MethodGet, srv.URL+"/health", nil, nil)
	assert.Equal(t, map[string]string{"status": "ok", "last_error": "backend unreachable"}, decode[map[string]string](t, resp))

	resp = call(t, http.MethodGet, srv.URL+"/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMapLifecycle(t *testing.T) {
	srv, store := newTestServer(t, nil)

	m := createMap(t, srv.URL)
	assert.Equal(t, "mounted", m.State)
	assert.Equal(t, tallinn, m.Center)
	assert.Equal(t, 12, m.Zoom)
	assert.Equal(t, 1, store.Len())
	assert.NotNil(t, m.Points)

	zoom := 14
	resp := call(t, http.MethodPut, srv.URL+"/maps/"+m.ID+"/viewport", dto.ViewportRequest{Zoom: &zoom, Center: &tartu}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m = decode[dto.MapResponse](t, resp)
	assert.Equal(t, 14, m.Zoom)
	assert.Equal(t, tartu, m.Center)
	assert.Equal(t, "active", m.State)
	assert.Equal(t, 800, m.Width)

	width, over := 1024, 30
	resp = call(t, http.MethodPut, srv.URL+"/maps/"+m.ID+"/viewport", dto.ViewportRequest{Width: &width, Zoom: &over}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m = decode[dto.MapResponse](t, resp)
	assert.Equal(t, 1024, m.Width)
	assert.Equal(t, 600, m.Height)
	assert.Equal(t, 22, m.Zoom)

	resp = call(t, http.MethodDelete, srv.URL+"/maps/"+m.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, store.Len())

	resp = call(t, http.MethodGet, srv.URL+"/maps/"+m.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/vnd.api+json", resp.Header.Get("Content-Type"))
}

func TestCreateMapRejectsInvalidInput(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := call(t, http.MethodPost, srv.URL+"/maps", `{"bogus":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = call(t, http.MethodPost, srv.URL+"/maps", `{"center":{"lat":91,"lng":0}}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[errorBody](t, resp)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "422", body.Errors[0].Status)
	assert.Equal(t, "/center", body.Errors[0].Source.Pointer)
}

func TestDragPhases(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	m := createMap(t, srv.URL)
	url := srv.URL + "/maps/" + m.ID + "/drag"

	resp := call(t, http.MethodPost, url, dto.DragRequest{Phase: dto.DragStart}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[dto.MapResponse](t, resp).Dragging)

	resp = call(t, http.MethodPost, url, dto.DragRequest{Phase: dto.DragMove}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = call(t, http.MethodPost, url, dto.DragRequest{Phase: dto.DragEnd, Center: &tartu}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m = decode[dto.MapResponse](t, resp)
	assert.False(t, m.Dragging)
	assert.Equal(t, tartu, m.Center)

	resp = call(t, http.MethodPost, url, dto.DragRequest{Phase: "fling"}, nil)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "/phase", body.Errors[0].Source.Pointer)
}

const twoPoints = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "a", "geometry": {"type": "Point", "coordinates": [24.7536, 59.437]},
     "properties": {"label": "A", "colors": {"default": "#164DA7"}}},
    {"type": "Feature", "id": "b", "geometry": {"type": "Point", "coordinates": [26.7225, 58.378]},
     "properties": {"label": "B", "colors": {"default": "#164DA7"}}},
    {"type": "Feature", "id": "a::b", "geometry": {"type": "LineString", "coordinates": [[24.7536, 59.437], [26.7225, 58.378]]},
     "properties": {"color": "#8D92A3"}}
  ]
}`

func TestFeaturesAndInteractions(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	m := createMap(t, srv.URL)
	base := srv.URL + "/maps/" + m.ID

	resp := call(t, http.MethodPut, base+"/features", twoPoints, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m = decode[dto.MapResponse](t, resp)
	require.Len(t, m.Points, 2)
	require.Len(t, m.Connections, 1)
	assert.Equal(t, "a::b", m.Connections[0].Key)

	resp = call(t, http.MethodGet, base+"/features", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))
	fc := decode[map[string]any](t, resp)
	assert.Len(t, fc["features"], 3)

	resp = call(t, http.MethodPost, base+"/points/a/click", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	action := decode[dto.ActionResponse](t, resp)
	assert.True(t, action.Found)
	require.NotNil(t, action.Map.LastClicked)
	assert.Equal(t, "a", action.Map.LastClicked.ID)

	resp = call(t, http.MethodPost, base+"/points/missing/click", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = call(t, http.MethodPost, base+"/clusters/missing/expand", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = call(t, http.MethodPost, base+"/unspiderfy", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPutFeaturesPointsAtInvalidMember(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	m := createMap(t, srv.URL)

	bad := strings.Replace(twoPoints, `"id": "b"`, `"id": "a"`, 1)
	resp := call(t, http.MethodPut, srv.URL+"/maps/"+m.ID+"/features", bad, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "/features/1/id", body.Errors[0].Source.Pointer)

	resp = call(t, http.MethodPut, srv.URL+"/maps/"+m.ID+"/features", `[]`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrderFeatures(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	m := createMap(t, srv.URL)

	resp := call(t, http.MethodPost, srv.URL+"/maps/"+m.ID+"/features/orders", dto.OrderFeaturesRequest{ShowLines: true}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m = decode[dto.MapResponse](t, resp)

	keys := make([]string, 0, len(m.Points))
	for _, p := range m.Points {
		keys = append(keys, p.Key)
	}
	assert.ElementsMatch(t, []string{"order-1-pickup", "order-1-delivery"}, keys)
	require.Len(t, m.Connections, 1)

	resp = call(t, http.MethodPost, srv.URL+"/maps/"+m.ID+"/features/orders", dto.OrderFeaturesRequest{StopKinds: []string{"depot"}}, nil)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "/stop_kinds/0", body.Errors[0].Source.Pointer)
}

func TestRouteFeatures(t *testing.T) {
	provider := distance.NewMockDistanceProvider([]distance.MockPair{
		{From: tallinn, To: tartu, Meters: 186000, Seconds: 7200},
	})
	srv, _ := newTestServer(t, func(d *Deps) { d.Distances = provider })
	m := createMap(t, srv.URL)

	depart := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	req := dto.RouteRequest{
		RouteID:  7,
		DepartAt: &depart,
		Stops:    []dto.RouteStopRequest{{ID: 1, Name: "Tartu", Position: tartu}},
	}
	resp := call(t, http.MethodPost, srv.URL+"/maps/"+m.ID+"/features/route", req, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[dto.RouteResponse](t, resp)

	assert.Equal(t, 186000, got.Plan.TotalDistanceMeters)
	assert.Equal(t, 7200, got.Plan.TotalDurationSeconds)
	require.Len(t, got.Plan.Stops, 1)
	assert.True(t, got.Plan.Stops[0].ArriveAt.Equal(depart.Add(2*time.Hour)))
	assert.Len(t, got.Map.Points, 2)
	assert.Len(t, got.Map.Connections, 1)
}

func TestRouteFeaturesWithoutDistances(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	m := createMap(t, srv.URL)

	resp := call(t, http.MethodPost, srv.URL+"/maps/"+m.ID+"/features/route", dto.RouteRequest{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGeocode(t *testing.T) {
	srv, _ := newTestServer(t, func(d *Deps) { d.Geocoder = fakeGeocoder{pos: tartu} })

	resp := call(t, http.MethodGet, srv.URL+"/geocode?q=Tartu", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, dto.GeocodeResponse{Query: "Tartu", Position: tartu}, decode[dto.GeocodeResponse](t, resp))

	resp = call(t, http.MethodGet, srv.URL+"/geocode", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	srv, _ = newTestServer(t, func(d *Deps) { d.Geocoder = fakeGeocoder{err: ports.ErrNotFound} })
	resp = call(t, http.MethodGet, srv.URL+"/geocode?q=nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	srv, _ = newTestServer(t, nil)
	resp = call(t, http.MethodGet, srv.URL+"/geocode?q=Tartu", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestListOrders(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := call(t, http.MethodGet, srv.URL+"/orders", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[dto.ListOrdersResponse](t, resp)
	require.Len(t, got.Orders, 1)
	assert.Equal(t, "TO-1", got.Orders[0].Number)
}

func TestListOrdersSwallowsUnauthenticated(t *testing.T) {
	var signedOut atomic.Bool
	srv, _ := newTestServer(t, func(d *Deps) {
		d.Orders = &fakeOrders{err: &jsonapi.APIError{Status: http.StatusUnauthorized}}
		d.Guard = &jsonapi.Guard{OnUnauthenticated: func(context.Context) { signedOut.Store(true) }}
	})

	resp := call(t, http.MethodGet, srv.URL+"/orders", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[dto.ListOrdersResponse](t, resp).Orders)
	assert.True(t, signedOut.Load())
}

func TestMoveStops(t *testing.T) {
	stops := &fakeStops{}
	srv, _ := newTestServer(t, func(d *Deps) { d.Stops = stops })

	req := dto.MoveStopsRequest{Moves: []dto.StopMoveRequest{{OrderID: 1, Kind: domain.StopPickup, Position: tartu}}}
	resp := call(t, http.MethodPatch, srv.URL+"/orders/stops", req, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []ports.StopMove{{OrderID: 1, Kind: domain.StopPickup, Position: tartu}}, stops.moves())

	req.Moves[0].Kind = "depot"
	resp = call(t, http.MethodPatch, srv.URL+"/orders/stops", req, nil)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "/moves/0/kind", body.Errors[0].Source.Pointer)
}

func TestMoveStopsMapsBackendValidationErrors(t *testing.T) {
	ops := []jsonapi.Operation{
		jsonapi.NewUpdateOperation(jsonapi.Resource{Type: "transport-orders", ID: "1"}),
		jsonapi.NewUpdateOperation(jsonapi.Resource{Type: "transport-orders", ID: "2"}),
	}
	apiErr := &jsonapi.APIError{Status: http.StatusUnprocessableEntity, Errors: []jsonapi.ResponseError{{
		Detail: "is outside the service area",
		Source: &jsonapi.ErrorSource{Pointer: "/atomic:operations/1/data/attributes/delivery_lat"},
	}}}
	stops := &fakeStops{err: jsonapi.WithDisplayableErrors(apiErr, ops)}
	srv, _ := newTestServer(t, func(d *Deps) { d.Stops = stops })

	req := dto.MoveStopsRequest{Moves: []dto.StopMoveRequest{
		{OrderID: 1, Kind: domain.StopPickup, Position: tallinn},
		{OrderID: 2, Kind: domain.StopDelivery, Position: tartu},
	}}
	resp := call(t, http.MethodPatch, srv.URL+"/orders/stops", req, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[errorBody](t, resp)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "is outside the service area", body.Errors[0].Detail)
	assert.Equal(t, "/moves/1/position", body.Errors[0].Source.Pointer)
}

func TestMoveStopsUnauthenticatedSignsOut(t *testing.T) {
	var signedOut atomic.Bool
	srv, _ := newTestServer(t, func(d *Deps) {
		d.Stops = &fakeStops{err: &jsonapi.APIError{Status: http.StatusUnauthorized}}
		d.Guard = &jsonapi.Guard{OnUnauthenticated: func(context.Context) { signedOut.Store(true) }}
	})

	req := dto.MoveStopsRequest{Moves: []dto.StopMoveRequest{{OrderID: 1, Kind: domain.StopPickup, Position: tartu}}}
	resp := call(t, http.MethodPatch, srv.URL+"/orders/stops", req, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, signedOut.Load())
}

func TestBearerAuth(t *testing.T) {
	secret := []byte("test-secret")
	srv, _ := newTestServer(t, func(d *Deps) { d.JWTSecret = secret })

	resp := call(t, http.MethodGet, srv.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, http.MethodGet, srv.URL+"/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	sign := func(key []byte, method jwt.SigningMethod) string {
		tok := jwt.NewWithClaims(method, &Claims{
			UserID: "user_001",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		s, err := tok.SignedString(key)
		require.NoError(t, err)
		return s
	}

	resp = call(t, http.MethodGet, srv.URL+"/orders", nil, http.Header{"Authorization": {"Bearer " + sign([]byte("other"), jwt.SigningMethodHS256)}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = call(t, http.MethodGet, srv.URL+"/orders", nil, http.Header{"Authorization": {"Bearer " + sign(secret, jwt.SigningMethodHS512)}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = call(t, http.MethodGet, srv.URL+"/orders", nil, http.Header{"Authorization": {"Bearer " + sign(secret, jwt.SigningMethodHS256)}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSettings(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	m := createMap(t, srv.URL)
	assert.Equal(t, 100, m.MaxPoints)
	assert.Equal(t, 3, m.MinPointsInCluster)

	maxPoints, minPoints := 10, 5
	resp := call(t, http.MethodPut, srv.URL+"/maps/"+m.ID+"/settings", dto.SettingsRequest{MaxPoints: &maxPoints, MinPointsInCluster: &minPoints}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m = decode[dto.MapResponse](t, resp)
	assert.Equal(t, 10, m.MaxPoints)
	assert.Equal(t, 5, m.MinPointsInCluster)

	zero := 0
	resp = call(t, http.MethodPut, srv.URL+"/maps/"+m.ID+"/settings", dto.SettingsRequest{MinPointsInCluster: &zero}, nil)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "/min_points_in_cluster", body.Errors[0].Source.Pointer)
}
