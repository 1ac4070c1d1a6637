package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthindexer_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// Signups counts account registrations by result (success|duplicate|error).
	Signups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthindexer_signups_total",
			Help: "Total number of signup attempts",
		},
		[]string{"result"},
	)

	// AnalysisRequests counts inference submissions by outcome (success|failure).
	AnalysisRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthindexer_analysis_requests_total",
			Help: "Total number of analysis submissions",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthindexer_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
