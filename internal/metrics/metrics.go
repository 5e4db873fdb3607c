// Package metrics declares the Prometheus collectors shared by the server,
// worker and bot. They register on the default registry and are served by
// promhttp at GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "referrals"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPResponseTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_time_seconds",
			Help:      "Histogram of HTTP response times",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// JoinsRecorded counts RecordJoin calls by result: created, duplicate.
	JoinsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_recorded_total",
			Help:      "Member joins seen by the ledger",
		},
		[]string{"result"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Referral status changes applied, by target status",
		},
		[]string{"status"},
	)

	InvalidTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_transitions_total",
			Help:      "Status changes refused by the referral lifecycle",
		},
	)

	ValidationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_runs_total",
			Help:      "ValidateAll batches by outcome: completed, aborted",
		},
		[]string{"outcome"},
	)

	ValidationRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_run_duration_seconds",
			Help:      "Wall time of ValidateAll batches",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
	)

	LookupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "member_lookup_failures_total",
			Help:      "Member directory lookups that failed and left a referral pending",
		},
	)

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Member events handled by the worker, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CommandsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_handled_total",
			Help:      "Chat commands dispatched, by command and outcome",
		},
		[]string{"command", "outcome"},
	)
)
