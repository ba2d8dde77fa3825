// Package metrics provides Prometheus instrumentation for the mint engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts successful ledger mutations, partitioned by
	// action (open_position, deposit, withdraw, mint).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mint_operations_total",
		Help: "Total number of successful position operations",
	}, []string{"action"})

	// OperationFailures counts rejected ledger mutations by action.
	OperationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mint_operation_failures_total",
		Help: "Total number of rejected position operations",
	}, []string{"action"})

	// SolvencyRejections counts mutations refused by the collateral check.
	SolvencyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mint_solvency_rejections_total",
		Help: "Operations rejected for insufficient collateral",
	})

	// PositionsOpen tracks the number of open positions in the ledger.
	PositionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mint_positions_open",
		Help: "Number of currently open positions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mint_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// OracleRequests counts oracle lookups by outcome (ok, unavailable,
	// stale, error).
	OracleRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mint_oracle_requests_total",
		Help: "Total oracle price and collateral lookups",
	}, []string{"outcome"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mint_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mint_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
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
