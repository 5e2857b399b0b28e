package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	mapUpdates          prometheus.Counter
	mapSessions         prometheus.Gauge
	markerContents      prometheus.Gauge
	drivingTimeLookups  *prometheus.CounterVec
}

// New creates a fresh Metrics registry with HTTP and map metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch_map",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dispatch_map",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	mapUpdates := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch_map",
		Name:      "map_updates_total",
		Help:      "Number of feature sets applied to map sessions",
	})

	mapSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatch_map",
		Name:      "map_sessions",
		Help:      "Number of mounted map sessions",
	})

	markerContents := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatch_map",
		Name:      "marker_contents",
		Help:      "Number of marker and cluster contents that have not been destroyed yet",
	})

	drivingTimeLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch_map",
		Name:      "driving_time_lookups_total",
		Help:      "Driving time lookups by outcome",
	}, []string{"outcome"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		mapUpdates,
		mapSessions,
		markerContents,
		drivingTimeLookups,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		mapUpdates:          mapUpdates,
		mapSessions:         mapSessions,
		markerContents:      markerContents,
		drivingTimeLookups:  drivingTimeLookups,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

func (m *Metrics) IncMapUpdate() {
	if m == nil {
		return
	}
	m.mapUpdates.Inc()
}

// AddMapSessions moves the mounted session gauge by delta.
func (m *Metrics) AddMapSessions(delta int) {
	if m == nil {
		return
	}
	m.mapSessions.Add(float64(delta))
}

// AddMarkerContents moves the live marker content gauge by delta.
func (m *Metrics) AddMarkerContents(delta int) {
	if m == nil {
		return
	}
	m.markerContents.Add(float64(delta))
}

// IncDrivingTimeLookup counts a driving time lookup; outcome is "ok", "empty" or "error".
func (m *Metrics) IncDrivingTimeLookup(outcome string) {
	if m == nil {
		return
	}
	m.drivingTimeLookups.WithLabelValues(outcome).Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
