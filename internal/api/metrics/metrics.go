// Package metrics defines and registers all custom Prometheus metrics for the
// MobiStudy API. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry through promauto
// at package initialisation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mobistudy"

// ── Ingestion metrics ─────────────────────────────────────────────────────────

// IngestionsTotal counts health data submissions by outcome.
// Label:
//   - result: "stored", "rejected" (4xx class) or "failed"
var IngestionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "healthdata_ingestions_total",
		Help:      "Total number of health data submissions, by outcome.",
	},
	[]string{"result"},
)

// IngestionDuration measures one ingestion from request decode to response.
var IngestionDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "healthdata_ingestion_duration_seconds",
		Help:      "Duration of the health data ingestion pipeline.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)

// ── Enrollment metrics ────────────────────────────────────────────────────────

// EnrollmentUpdatesTotal counts accepted enrollment updates.
// Label:
//   - status: the resulting enrollment status, or "reset" when removed
var EnrollmentUpdatesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrollment_updates_total",
		Help:      "Total number of enrollment updates, by resulting status.",
	},
	[]string{"status"},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotificationsTotal counts status change notifications.
// Label:
//   - result: "sent", "failed" or "dropped"
var NotificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total number of status change notifications, by result.",
	},
	[]string{"result"},
)

// NotificationQueueDepth tracks pending notices in each dispatcher worker.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var NotificationQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notification_queue_depth",
		Help:      "Current number of notices pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ── Maintenance metrics ───────────────────────────────────────────────────────

// ReconciledRecordsTotal counts stale pending records removed by the sweeper.
var ReconciledRecordsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciled_records_total",
		Help:      "Total number of stale pending health data records removed.",
	},
)

// DeletionJobsTotal counts participant deletion jobs by outcome.
// Label:
//   - result: "completed" or "failed"
var DeletionJobsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deletion_jobs_total",
		Help:      "Total number of participant deletion jobs, by outcome.",
	},
	[]string{"result"},
)
