package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal tracks attempts per kind and outcome
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_attempts_total",
			Help: "Total number of upstream attempts",
		},
		[]string{"kind", "outcome"},
	)

	// RetriesScheduledTotal tracks scheduled retries per kind and mode (auto/manual)
	RetriesScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_retries_scheduled_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"kind", "mode"},
	)

	// SessionsTerminalTotal tracks sessions reaching a terminal state
	SessionsTerminalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_sessions_terminal_total",
			Help: "Total number of sessions closed, by terminal state",
		},
		[]string{"state"},
	)

	// UpstreamLatency tracks inference call latency
	UpstreamLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analyzer_upstream_latency_seconds",
			Help:    "Upstream inference call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ActiveSessions tracks sessions not yet in a terminal state
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analyzer_active_sessions",
			Help: "Number of sessions currently in a non-terminal state",
		},
	)
)
