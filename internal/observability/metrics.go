package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts requests by route, method and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration observes request duration by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// PriceFetchTotal counts provider fetch attempts by provider and outcome.
	PriceFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_fetch_total",
			Help: "Total number of spot price provider fetches",
		},
		[]string{"provider", "outcome"},
	)
	// PriceFetchDuration observes provider fetch duration.
	PriceFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_fetch_duration_seconds",
			Help:    "Spot price provider fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	// LLMRequestsTotal counts LLM completions by model and outcome.
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of LLM completion requests",
		},
		[]string{"model", "outcome"},
	)
	// LLMRequestDuration observes LLM completion latency.
	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"model"},
	)

	// CacheOpsTotal counts cache lookups by kind and hit/miss.
	CacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_ops_total",
			Help: "Total number of cache lookups by kind and result",
		},
		[]string{"kind", "result"},
	)

	// AuditQueueDepth gauges the pending audit log items.
	AuditQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_queue_depth",
			Help: "Number of audit log items waiting to be persisted",
		},
	)
	// AuditDroppedTotal counts audit records dropped after repeated store failures.
	AuditDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_dropped_total",
			Help: "Total number of audit records dropped",
		},
	)
)

// InitMetrics registers all collectors once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(PriceFetchTotal)
	prometheus.MustRegister(PriceFetchDuration)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(CacheOpsTotal)
	prometheus.MustRegister(AuditQueueDepth)
	prometheus.MustRegister(AuditDroppedTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}
