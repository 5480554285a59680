// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by the logical endpoint name rather
// than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// answerRequestsTotal counts completed /api/answer requests, partitioned
	// by outcome: "ok", "timeout", or "error".
	answerRequestsTotal *prometheus.CounterVec

	// answerDurationSeconds records the wall-clock duration of each
	// /api/answer request through the full pipeline.
	answerDurationSeconds *prometheus.HistogramVec

	// ingestItemsTotal counts ingested items, partitioned by result:
	// "ok" or "failed".
	ingestItemsTotal *prometheus.CounterVec

	// poolRecomputesTotal counts per-context pool rebuilds, partitioned by
	// result: "ok" or "failed".
	poolRecomputesTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		answerRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyrag",
			Subsystem: "answer",
			Name:      "requests_total",
			Help:      "Total number of /api/answer requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		answerDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replyrag",
			Subsystem: "answer",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/answer requests through the full pipeline.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		ingestItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyrag",
			Subsystem: "ingest",
			Name:      "items_total",
			Help:      "Total number of ingested items, partitioned by result.",
		}, []string{"result"}),

		poolRecomputesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyrag",
			Subsystem: "pools",
			Name:      "recomputes_total",
			Help:      "Total number of per-context relevance pool rebuilds, partitioned by result.",
		}, []string{"result"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replyrag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument wraps a route handler with per-endpoint request count and
// latency metrics under the given logical handler name.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}
