package api

import (
	"dispatch-map-service/internal/api/handlers"
	"dispatch-map-service/internal/jsonapi"
	"dispatch-map-service/internal/mapview"
	"dispatch-map-service/internal/platform/metrics"
	"dispatch-map-service/internal/ports"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Deps are the collaborators of the HTTP API. Everything except Maps is optional;
// endpoints whose dependency is missing answer 503.
type Deps struct {
	Log       zerolog.Logger
	Metrics   *metrics.Metrics
	Maps      *mapview.Store
	Distances ports.DistanceProvider
	Geocoder  ports.Geocoder
	Orders    ports.OrderRepository
	Stops     ports.OrderStopWriter
	Guard     *jsonapi.Guard

	// JWTSecret enables bearer authentication for everything except /health and /metrics.
	JWTSecret []byte
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(requestLogger(d.Log))
	r.Use(accessLog(d.Metrics))

	maps := &handlers.MapHandler{
		Store:     d.Maps,
		Orders:    d.Orders,
		Guard:     d.Guard,
		Distances: d.Distances,
	}
	geocode := &handlers.GeocodeHandler{Geocoder: d.Geocoder}
	orders := &handlers.OrderHandler{Repo: d.Orders, Stops: d.Stops, Guard: d.Guard}
	health := &handlers.HealthHandler{}
	if d.Guard != nil {
		health.Errors = d.Guard.Slot
	}

	r.Get("/health", health.Health)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Group(func(r chi.Router) {
		if len(d.JWTSecret) > 0 {
			r.Use(requireBearer(d.JWTSecret))
		}

		r.Route("/maps", func(r chi.Router) {
			r.Post("/", maps.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", maps.Get)
				r.Delete("/", maps.Delete)
				r.Put("/viewport", maps.Viewport)
				r.Post("/drag", maps.Drag)
				r.Put("/settings", maps.Settings)
				r.Get("/features", maps.GetFeatures)
				r.Put("/features", maps.PutFeatures)
				r.Post("/features/orders", maps.OrderFeatures)
				r.Post("/features/route", maps.RouteFeatures)
				r.Post("/points/{key}/click", maps.ClickPoint)
				r.Post("/clusters/{clusterID}/expand", maps.ExpandCluster)
				r.Post("/unspiderfy", maps.Unspiderfy)
				r.Get("/driving-times", maps.DrivingTimes)
			})
		})

		r.Get("/geocode", geocode.Geocode)

		r.Get("/orders", orders.List)
		r.Patch("/orders/stops", orders.MoveStops)
	})

	return r
}
