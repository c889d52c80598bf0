package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timecapsule_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// CapsulesCreated counts capsules created by privacy mode.
	CapsulesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timecapsule_capsules_created_total",
			Help: "Total number of capsules created",
		},
		[]string{"privacy"},
	)

	// CapsuleTransitions counts lifecycle transitions by action (open|abort) and result.
	CapsuleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timecapsule_capsule_transitions_total",
			Help: "Total number of capsule open and abort requests",
		},
		[]string{"action", "result"},
	)

	// NotificationsGenerated counts notification rows written by kind (scheduled|immediate).
	NotificationsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timecapsule_notifications_generated_total",
			Help: "Total number of notifications generated",
		},
		[]string{"kind"},
	)

	// NotificationsPromoted counts pending notifications flipped to sent by source (read|cron).
	NotificationsPromoted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timecapsule_notifications_promoted_total",
			Help: "Total number of scheduled notifications promoted to sent",
		},
		[]string{"source"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "timecapsule_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// RealtimeConnections tracks open websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "timecapsule_realtime_connections",
			Help: "Number of open realtime websocket connections",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timecapsule_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// MaintenanceRuns counts maintenance job executions by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timecapsule_maintenance_runs_total",
			Help: "Total number of maintenance job executions",
		},
		[]string{"job", "result"},
	)
)
