// Package metrics provides Prometheus metrics for loom: counters, gauges,
// and histograms for the task lifecycle and reservation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// TasksCreated tracks created tasks by type.
var TasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "loom",
	Name:      "tasks_created_total",
	Help:      "Total tasks created.",
}, []string{"type"})

// TasksReserved tracks successful reservations.
var TasksReserved = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "loom",
	Name:      "tasks_reserved_total",
	Help:      "Total successful task reservations.",
})

// TasksCompleted tracks completed tasks by type.
var TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "loom",
	Name:      "tasks_completed_total",
	Help:      "Total completed tasks.",
}, []string{"type"})

// TasksUnlocked tracks explicit releases back to the queue.
var TasksUnlocked = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "loom",
	Name:      "tasks_unlocked_total",
	Help:      "Total explicit task releases.",
})

// TasksReclaimed tracks timeout-driven releases.
var TasksReclaimed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "loom",
	Name:      "tasks_reclaimed_total",
	Help:      "Total stale reservations reclaimed.",
})

// TasksInProgress tracks currently reserved tasks.
var TasksInProgress = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "loom",
	Name:      "tasks_in_progress",
	Help:      "Number of currently reserved tasks.",
})

// ─── Contention ─────────────────────────────────────────────────────────────

// ReserveConflicts tracks reservation attempts that lost a race or targeted
// an already-reserved task.
var ReserveConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "loom",
	Name:      "reserve_conflicts_total",
	Help:      "Total reservation attempts rejected because the task was taken.",
})

// ─── Latency ────────────────────────────────────────────────────────────────

// CompletionLatency tracks time from reservation to completion.
var CompletionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "loom",
	Name:      "completion_latency_seconds",
	Help:      "Time from task reservation to completion.",
	Buckets:   []float64{1, 10, 60, 300, 900, 3600, 14400, 86400},
})
