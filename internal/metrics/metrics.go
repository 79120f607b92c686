// Package metrics provides Prometheus instrumentation for the tier engine.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SimulationsTotal counts scenario simulations, partitioned by outcome.
	SimulationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tierengine_simulations_total",
		Help: "Total number of scenario simulations run",
	}, []string{"outcome"})

	// SimulationLatency tracks end-to-end score+simulate latency.
	SimulationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tierengine_simulation_latency_seconds",
		Help:    "Scenario simulation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// PopulationSize tracks the number of accounts currently loaded.
	PopulationSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tierengine_population_size",
		Help: "Number of accounts in the loaded population",
	})

	// FeeBoundHits tracks how many accounts hit the fee floor or cap in the
	// most recent simulation.
	FeeBoundHits = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tierengine_fee_bound_hits",
		Help: "Accounts whose fee adjustment was truncated in the last run",
	}, []string{"bound"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tierengine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tierengine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tierengine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Collapse run IDs so the path label stays low-cardinality.
		path := r.URL.Path
		if strings.HasPrefix(path, "/api/v1/runs/") {
			path = "/api/v1/runs/{runID}"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
