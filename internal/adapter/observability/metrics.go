package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	ProviderChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_checks_total",
			Help: "Total number of provider probes by provider and status",
		},
		[]string{"provider", "status"},
	)
	ProviderCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_check_duration_seconds",
			Help:    "Provider probe duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	ScansSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scans_submitted_total",
			Help: "Total number of scan jobs submitted",
		},
	)
	ScansRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scans_running",
			Help: "Number of scan jobs currently running",
		},
	)
	ScansCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_completed_total",
			Help: "Total number of scan jobs reaching a terminal state",
		},
		[]string{"state"},
	)

	AvatarFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatar_fetches_total",
			Help: "Total number of avatar downloads by outcome",
		},
		[]string{"outcome"},
	)
	RateLimitWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ratelimit_wait_duration_seconds",
			Help:    "Time spent waiting for the global and per-host limits",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
		},
	)
)

// InitMetrics registers all Prometheus collectors once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ProviderChecksTotal)
	prometheus.MustRegister(ProviderCheckDuration)
	prometheus.MustRegister(ScansSubmittedTotal)
	prometheus.MustRegister(ScansRunning)
	prometheus.MustRegister(ScansCompletedTotal)
	prometheus.MustRegister(AvatarFetchesTotal)
	prometheus.MustRegister(RateLimitWaitDuration)
}

// HTTPMetricsMiddleware records request counts and latency per chi route.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
