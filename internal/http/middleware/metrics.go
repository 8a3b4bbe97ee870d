// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Prometheus instrumentation. Request series are labelled by method, the
// registered route template and status; requests that matched no route share
// the "unmatched" path label so scanners cannot blow up cardinality.
// WebSocket sessions are long-lived and are measured by their own gauge
// instead of the latency histogram.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedPath = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "Current number of in-flight HTTP requests.",
	})

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8), // 256B .. 4MiB
		},
		[]string{"method", "path"},
	)

	wsSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_ws_sessions",
		Help: "Open realtime WebSocket sessions on this instance.",
	})

	wsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_ws_events_sent_total",
		Help: "Events written to realtime WebSocket sessions.",
	})

	idemReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_replays_total",
			Help: "Requests answered from a stored Idempotency-Key result.",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, wsSessions, wsSent, idemReplays)
}

// Metrics returns middleware that records http_requests_total,
// http_request_duration_seconds, http_requests_inflight and
// http_response_size_bytes. Mount /metrics with promhttp.Handler().
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.IsWebsocket() {
			// Counted once the session ends; no latency sample.
			c.Next()
			httpReqs.WithLabelValues(c.Request.Method, routeLabel(c), strconv.Itoa(c.Writer.Status())).Inc()
			return
		}

		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		method, path := c.Request.Method, routeLabel(c)
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

// WSSessionOpened bumps the open-session gauge and returns the matching
// close func.
func WSSessionOpened() (closed func()) {
	wsSessions.Inc()
	return wsSessions.Dec
}

// WSEventSent counts one event written to a WebSocket client.
func WSEventSent() { wsSent.Inc() }

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedPath
}
