// Package metrics provides Prometheus instrumentation for the exchange
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts sequenced commands by endpoint and status code.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omx_commands_total",
		Help: "Total commands processed by the sequencer",
	}, []string{"endpoint", "status"})

	// CommandDuration tracks handler latency inside the sequencer.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "omx_command_duration_seconds",
		Help:    "Command handling latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// FillsTotal counts executed fills, partitioned by outcome.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omx_fills_total",
		Help: "Total number of fills executed",
	}, []string{"outcome"})

	// FillVolume tracks cumulative filled quantity per symbol.
	FillVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omx_fill_volume_total",
		Help: "Cumulative filled quantity in shares",
	}, []string{"symbol"})

	// OrdersRested counts orders parked on the book, by kind.
	OrdersRested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omx_orders_rested_total",
		Help: "Orders rested on the book",
	}, []string{"kind"})

	// OrdersCancelled counts resting orders removed by cancellation.
	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omx_orders_cancelled_total",
		Help: "Resting orders removed by cancellation",
	})

	// QueueDepth tracks the length of the command queue after the most
	// recent enqueue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "omx_queue_depth",
		Help: "Command queue depth after the last enqueue",
	})

	// ActiveSymbols tracks the number of listed markets.
	ActiveSymbols = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "omx_active_symbols",
		Help: "Number of currently listed symbols",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "omx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "omx_http_request_duration_seconds",
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

		// Use the chi route pattern for the path label to avoid high
		// cardinality from path parameters.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
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
