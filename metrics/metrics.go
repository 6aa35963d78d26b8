package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostsentry_events_published_total",
			Help: "Total number of events published to the bus",
		},
		[]string{"source"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostsentry_events_dropped_total",
			Help: "Total number of events dropped due to a full bus buffer",
		},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostsentry_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"severity"},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostsentry_alerts_suppressed_total",
			Help: "Total number of rule matches suppressed by deduplication",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostsentry_evaluation_duration_seconds",
			Help:    "Time taken to evaluate one event against all rules",
			Buckets: prometheus.DefBuckets,
		},
	)

	RiskScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostsentry_risk_score",
			Help: "Current aggregate risk score",
		},
	)

	PersistenceRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostsentry_persistence_retries_total",
			Help: "Total number of retried store writes",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostsentry_websocket_clients",
			Help: "Number of connected WebSocket subscribers",
		},
	)
)
