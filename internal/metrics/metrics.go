// Package metrics provides Prometheus instrumentation for the settlement engine.
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
	// OperationsTotal counts engine operations by name and outcome.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_operations_total",
		Help: "Total engine operations, by operation and result",
	}, []string{"operation", "result"})

	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settle_operation_latency_seconds",
		Help:    "Engine operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// SettlementsTotal counts completed sales by path (buy, bid, offer...).
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_settlements_total",
		Help: "Total completed sales",
	}, []string{"kind"})

	// SettlementVolume tracks gross sale volume per payment token, in
	// smallest units.
	SettlementVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_settlement_volume_total",
		Help: "Cumulative gross sale volume in smallest units",
	}, []string{"token"})

	// ActiveAuctions tracks the number of live listings.
	ActiveAuctions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settle_active_auctions",
		Help: "Number of live auctions",
	})

	EscrowedPayments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settle_escrowed_payments_total",
		Help: "Payments redirected to claimable balances",
	})

	EscrowClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settle_escrow_claims_total",
		Help: "Claimable balances paid out",
	})

	// GlobalOfferLimitRejections counts global offers refused by the
	// per-owner limiter.
	GlobalOfferLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settle_global_offer_limit_rejections_total",
		Help: "Global offers rejected by the offer limiter",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settle_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settle_http_request_duration_seconds",
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
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps label cardinality bounded.
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
