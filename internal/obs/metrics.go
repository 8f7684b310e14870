package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_gate_decisions_total",
			Help: "Access gate outcomes per portal.",
		},
		[]string{"portal", "outcome"},
	)

	sessionRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_session_refreshes_total",
			Help: "Session tokens re-issued because they were close to expiry.",
		},
		[]string{"portal"},
	)

	rateLimitBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_blocks_total",
			Help: "Identifiers placed under an extended block.",
		},
		[]string{"limiter"},
	)

	activityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_log_events_total",
			Help: "Activity log entries by delivery outcome.",
		},
		[]string{"outcome"},
	)

	registerOnce sync.Once
)

// InitMetrics registers the service metrics in the default registry. Safe to call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			gateDecisions, sessionRefreshes, rateLimitBlocks, activityEvents,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGate counts one access gate decision.
func ObserveGate(portal, outcome string) {
	gateDecisions.WithLabelValues(portal, outcome).Inc()
}

// ObserveRefresh counts a re-issued session token.
func ObserveRefresh(portal string) {
	sessionRefreshes.WithLabelValues(portal).Inc()
}

// ObserveBlock counts an escalated block.
func ObserveBlock(limiter string) {
	rateLimitBlocks.WithLabelValues(limiter).Inc()
}

// ObserveActivity counts an activity entry outcome: written, dropped or failed.
func ObserveActivity(outcome string) {
	activityEvents.WithLabelValues(outcome).Inc()
}

// Instrument records RPS, latency and in-flight requests. Mount it inside the chi router so
// the matched route pattern is available as the label.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := RoutePattern(r)
		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

// RoutePattern returns the chi route pattern matched for r, or "unmatched". Raw paths are never
// used as labels so ids do not explode cardinality.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.code = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
