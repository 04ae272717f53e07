package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics holds the Prometheus metrics owned by the HTTP layer.
// Pipeline internals (enrichment retries, call latency) are recorded by
// package metrics against the same registry.
type serverMetrics struct {
	// askRequestsTotal counts /api/ask requests by outcome: "ok",
	// "not_ready", "timeout" or "error".
	askRequestsTotal *prometheus.CounterVec

	askDurationSeconds *prometheus.HistogramVec

	// askInFlight is the number of /api/ask requests being answered.
	askInFlight prometheus.Gauge

	// httpRequestsTotal counts every request by method, route pattern and
	// status code.
	httpRequestsTotal *prometheus.CounterVec

	httpDurationSeconds *prometheus.HistogramVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Completed /api/ask requests, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/ask requests.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		askInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pdfrag",
			Subsystem: "ask",
			Name:      "in_flight",
			Help:      "Number of /api/ask requests currently being answered.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, partitioned by method, route and status code.",
		}, []string{"method", "route", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// observeAsk records one finished /api/ask request.
func (m *serverMetrics) observeAsk(outcome string, start time.Time) {
	m.askRequestsTotal.WithLabelValues(outcome).Inc()
	m.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// instrument records request counts and latency for every request served by
// mux. The route label is the matched ServeMux pattern so that arbitrary
// paths cannot blow up label cardinality.
func (m *serverMetrics) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := wrapResponseWriter(w)
		start := time.Now()
		mux.ServeHTTP(rw, r)

		_, route := mux.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
