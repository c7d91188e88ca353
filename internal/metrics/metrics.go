// Package metrics exposes Prometheus metrics for a running Cluster:
// per-endpoint availability, query/insert latency, reconnect backoff,
// and pool exhaustion on a dedicated registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every Prometheus metric this client exposes.
type Collector struct {
	Registry *prometheus.Registry

	endpointAvailable *prometheus.GaugeVec
	endpointConnected *prometheus.GaugeVec
	queryDuration     *prometheus.HistogramVec
	insertDuration    *prometheus.HistogramVec
	queryErrors       *prometheus.CounterVec
	insertErrors      *prometheus.CounterVec
	poolExhaustedTotal prometheus.Counter
	reconnectAttempts *prometheus.CounterVec
	reconnectBackoff  *prometheus.GaugeVec
	authFailuresTotal prometheus.Counter
	pingFailures      *prometheus.CounterVec
}

// New creates and registers every metric on its own registry. Safe to
// call more than once (e.g. across config reloads); each call produces
// an independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		endpointAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "siridb_endpoint_available",
				Help: "Whether an endpoint is currently available for selection (1=available, 0=not)",
			},
			[]string{"endpoint"},
		),
		endpointConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "siridb_endpoint_connected",
				Help: "Whether an endpoint has a live authenticated connection (1=connected, 0=not)",
			},
			[]string{"endpoint"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siridb_query_duration_seconds",
				Help:    "Duration of successful QUERY requests",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"endpoint"},
		),
		insertDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siridb_insert_duration_seconds",
				Help:    "Duration of successful INSERT requests",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"endpoint"},
		),
		queryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siridb_query_errors_total",
				Help: "QUERY requests that returned an error, by error kind",
			},
			[]string{"endpoint", "kind"},
		),
		insertErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siridb_insert_errors_total",
				Help: "INSERT requests that returned an error, by error kind",
			},
			[]string{"endpoint", "kind"},
		),
		poolExhaustedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "siridb_pool_exhausted_total",
				Help: "Times endpoint selection found no endpoint it could pick",
			},
		),
		reconnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siridb_reconnect_attempts_total",
				Help: "Reconnect attempts per endpoint",
			},
			[]string{"endpoint"},
		),
		reconnectBackoff: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "siridb_reconnect_backoff_seconds",
				Help: "Current reconnect backoff wait, per endpoint",
			},
			[]string{"endpoint"},
		),
		authFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "siridb_auth_failures_total",
				Help: "Authentication handshake failures across all endpoints",
			},
		),
		pingFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siridb_keepalive_ping_failures_total",
				Help: "Keep-alive PING failures per endpoint, each one closes the connection",
			},
			[]string{"endpoint"},
		),
	}

	reg.MustRegister(
		c.endpointAvailable,
		c.endpointConnected,
		c.queryDuration,
		c.insertDuration,
		c.queryErrors,
		c.insertErrors,
		c.poolExhaustedTotal,
		c.reconnectAttempts,
		c.reconnectBackoff,
		c.authFailuresTotal,
		c.pingFailures,
	)

	return c
}

// SetEndpointState records an endpoint's connected/available flags.
func (c *Collector) SetEndpointState(endpoint string, connected, available bool) {
	c.endpointConnected.WithLabelValues(endpoint).Set(boolToFloat(connected))
	c.endpointAvailable.WithLabelValues(endpoint).Set(boolToFloat(available))
}

// QueryCompleted observes a successful query's duration.
func (c *Collector) QueryCompleted(endpoint string, d time.Duration) {
	c.queryDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// InsertCompleted observes a successful insert's duration.
func (c *Collector) InsertCompleted(endpoint string, d time.Duration) {
	c.insertDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// QueryFailed increments the query error counter for the given kind
// (e.g. "QueryError", "ServerError", "PoolError").
func (c *Collector) QueryFailed(endpoint, kind string) {
	c.queryErrors.WithLabelValues(endpoint, kind).Inc()
}

// InsertFailed increments the insert error counter for the given kind.
func (c *Collector) InsertFailed(endpoint, kind string) {
	c.insertErrors.WithLabelValues(endpoint, kind).Inc()
}

// PoolExhausted increments the pool-exhaustion counter.
func (c *Collector) PoolExhausted() {
	c.poolExhaustedTotal.Inc()
}

// ReconnectAttempt records a reconnect attempt and the backoff wait
// that preceded it.
func (c *Collector) ReconnectAttempt(endpoint string, wait time.Duration) {
	c.reconnectAttempts.WithLabelValues(endpoint).Inc()
	c.reconnectBackoff.WithLabelValues(endpoint).Set(wait.Seconds())
}

// AuthFailure increments the authentication failure counter.
func (c *Collector) AuthFailure() {
	c.authFailuresTotal.Inc()
}

// PingFailure records a keep-alive PING failure for an endpoint.
func (c *Collector) PingFailure(endpoint string) {
	c.pingFailures.WithLabelValues(endpoint).Inc()
}

// RemoveEndpoint drops every metric series for an endpoint.
func (c *Collector) RemoveEndpoint(endpoint string) {
	c.endpointAvailable.DeleteLabelValues(endpoint)
	c.endpointConnected.DeleteLabelValues(endpoint)
	c.queryDuration.DeleteLabelValues(endpoint)
	c.insertDuration.DeleteLabelValues(endpoint)
	c.queryErrors.DeletePartialMatch(prometheus.Labels{"endpoint": endpoint})
	c.insertErrors.DeletePartialMatch(prometheus.Labels{"endpoint": endpoint})
	c.reconnectAttempts.DeleteLabelValues(endpoint)
	c.reconnectBackoff.DeleteLabelValues(endpoint)
	c.pingFailures.DeleteLabelValues(endpoint)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
