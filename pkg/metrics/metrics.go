// Package metrics registers the Prometheus collectors exposed on the
// monitoring endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escala_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// InviteEvents counts invitation lifecycle events by action
	// (created|accepted|cancelled|regenerated|expired) and result (success|failure).
	InviteEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escala_invite_events_total",
			Help: "Total number of invitation lifecycle events",
		},
		[]string{"action", "result"},
	)

	// RealtimeConnections tracks currently open realtime websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "escala_realtime_connections",
			Help: "Number of open realtime connections",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escala_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
