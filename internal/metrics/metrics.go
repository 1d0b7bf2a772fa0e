// ABOUTME: Prometheus collectors for the sync engine and its outbox
// ABOUTME: Registered once on the default registry and served by the API's /metrics route

// Package metrics exposes Prometheus collectors for the sync engine and its outbox.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconciliation outcomes
const (
	OutcomeLocal    = "local"    // served from local without remote I/O
	OutcomeMerged   = "merged"   // remote read succeeded and was merged
	OutcomeDegraded = "degraded" // remote failed, local value served
	OutcomeDefault  = "default"  // both absent, default constructed
	OutcomeAbsent   = "absent"   // both absent, no default exists
	OutcomeFailed   = "failed"   // remote failed, nothing usable locally
)

var (
	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "om",
			Subsystem: "engine",
			Name:      "reconciliations_total",
			Help:      "Record loads by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	RemoteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "om",
			Subsystem: "engine",
			Name:      "remote_errors_total",
			Help:      "Remote store failures by operation and class.",
		},
		[]string{"op", "class"},
	)

	OutboxSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "om",
			Subsystem: "outbox",
			Name:      "submissions_total",
			Help:      "Remote writes accepted for execution.",
		},
		[]string{"shard"},
	)

	OutboxQueueFull = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "om",
			Subsystem: "outbox",
			Name:      "queue_full_total",
			Help:      "Enqueue attempts that timed out because the shard was full.",
		},
		[]string{"shard"},
	)

	OutboxDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "om",
			Subsystem: "outbox",
			Name:      "dropped_total",
			Help:      "Remote writes abandoned after irrecoverable errors or exhausted retries.",
		},
		[]string{"shard"},
	)

	OutboxRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "om",
			Subsystem: "outbox",
			Name:      "run_duration_seconds",
			Help:      "Remote write latency per attempt.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"shard"},
	)

	// OutboxDepth is only written from the owning shard worker
	OutboxDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "om",
			Subsystem: "outbox",
			Name:      "queue_depth",
			Help:      "Current depth of each shard queue.",
		},
		[]string{"shard"},
	)
)

// ShardLabel formats a shard index as a label value
func ShardLabel(i int) string { return strconv.Itoa(i) }
