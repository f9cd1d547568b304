// Package metrics provides Prometheus instrumentation for the PulseGraph service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsegraph",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status bucket.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pulsegraph",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ShardLoadsTotal counts day-shard load attempts by result.
	ShardLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsegraph",
			Name:      "shard_loads_total",
			Help:      "Total day-shard load attempts by result (hit, miss).",
		},
		[]string{"result"},
	)

	// ShardRowsRead counts transaction rows read from day shards.
	ShardRowsRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulsegraph",
			Name:      "shard_rows_read_total",
			Help:      "Total transaction rows read from day shards.",
		},
	)

	// GraphBuildsTotal counts relationship-graph constructions by kind.
	GraphBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsegraph",
			Name:      "graph_builds_total",
			Help:      "Total relationship graph builds by kind (full, ego, high_risk).",
		},
		[]string{"kind"},
	)

	// PatternLabelsTotal counts fraud-pattern labels assigned by category.
	PatternLabelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsegraph",
			Name:      "pattern_labels_total",
			Help:      "Total structural fraud-pattern labels assigned by category.",
		},
		[]string{"category"},
	)

	// ScoresComputedTotal counts risk scores produced by transform.
	ScoresComputedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsegraph",
			Name:      "scores_computed_total",
			Help:      "Total risk scores computed by transform (scorecard, composite).",
		},
		[]string{"transform"},
	)

	// BaselineAmount exposes the cached global amount baseline (A0).
	BaselineAmount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsegraph",
		Name:      "baseline_amount",
		Help:      "Cached amount-percentile baseline used for score normalization.",
	})

	// ActiveWebSocketClients tracks connected alert-stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsegraph",
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected alert-stream clients.",
	})

	// AlertsBroadcastTotal counts alerts pushed to stream clients by type.
	AlertsBroadcastTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsegraph",
			Name:      "alerts_broadcast_total",
			Help:      "Total alerts broadcast to stream clients by event type.",
		},
		[]string{"type"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsegraph", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsegraph", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsegraph", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ShardLoadsTotal,
		ShardRowsRead,
		GraphBuildsTotal,
		PatternLabelsTotal,
		ScoresComputedTotal,
		BaselineAmount,
		ActiveWebSocketClients,
		AlertsBroadcastTotal,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
