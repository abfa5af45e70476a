// Package telemetry provides application-level observability for the team
// directory service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<TEAMDIR_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Team listing latency and search usage counters
//   - Pin/unpin operation counters
//   - Avatar upload counters
//   - LDAP sync duration and error counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/pin/:contactRef)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as contact IDs or search strings.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening:
//
//	import _ "github.com/team-directory/team-directory/internal/telemetry"
//
// Or import it directly and use an exported var:
//
//	telemetry.PinOperationsTotal.WithLabelValues("pin").Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/v1/pin/:contactRef),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Team directory metrics, recorded by the team listing handler.
//
// TeamListDuration observes the end-to-end latency of one merged team listing,
// including the settings read and avatar URL resolution.
//
// TeamListRequestsTotal is a CounterVec with label {filtered} ("true" when the
// request carried a search string). The ratio of filtered to unfiltered
// requests shows how much the search box is actually used.
//
// Example PromQL queries:
//   - p95 listing latency:  histogram_quantile(0.95, rate(team_list_duration_seconds_bucket[5m]))
//   - Search usage share:   sum(rate(team_list_requests_total{filtered="true"}[1h])) / sum(rate(team_list_requests_total[1h]))
var (
	TeamListDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "team_list_duration_seconds",
			Help:    "Duration of one merged team directory listing.",
			Buckets: prometheus.DefBuckets,
		},
	)

	TeamListRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "team_list_requests_total",
			Help: "Total number of team directory listings, by whether a search filter was applied.",
		},
		[]string{"filtered"},
	)
)

// PinOperationsTotal is a CounterVec with label {operation} ("pin" or "unpin")
// incremented once per successful pin mutation.
//
// Example PromQL queries:
//   - Pin activity:  sum by (operation) (rate(pin_operations_total[1h]))
var PinOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pin_operations_total",
		Help: "Total number of successful pin mutations, by operation.",
	},
	[]string{"operation"},
)

// AvatarUploadsTotal is a CounterVec with label {subject} ("user" or "contact")
// incremented once per stored avatar.
var AvatarUploadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "avatar_uploads_total",
		Help: "Total number of avatar images stored, by subject kind.",
	},
	[]string{"subject"},
)

// LDAP sync metrics, recorded by the LDAP user sync background job.
//
// LDAPSyncDuration observes one complete sync cycle.  LDAPSyncErrorsTotal is a
// plain Counter; an alert on increase(ldap_sync_errors_total[30m]) > 3 catches
// upstream directory outages early.  LDAPUsersSynced is a Gauge holding the
// number of accounts seen in the last successful cycle.
var (
	LDAPSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ldap_sync_duration_seconds",
			Help:    "Duration of a single LDAP user sync cycle.",
			Buckets: prometheus.DefBuckets,
		},
	)

	LDAPSyncErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ldap_sync_errors_total",
			Help: "Total number of failed LDAP sync cycles.",
		},
	)

	LDAPUsersSynced = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ldap_users_synced",
			Help: "Number of user accounts seen in the last successful LDAP sync cycle.",
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <TEAMDIR_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
