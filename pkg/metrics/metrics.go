package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Drain cycle metrics
	EventsProcessed   prometheus.Counter
	EventsFailed      prometheus.Counter
	CyclesSkipped     prometheus.Counter
	CycleDuration     prometheus.Histogram
	QueueDepth        prometheus.Gauge
	EventsByField     *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec

	// Provisioning metrics
	ProjectsProvisioned prometheus.Counter
	ProvisionFailures   prometheus.Counter
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		EventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_processed_total",
			Help:      "Total number of successfully processed webhook events",
		}),
		EventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_failed_total",
			Help:      "Total number of webhook events marked FAILED",
		}),
		CyclesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_skipped_total",
			Help:      "Drain cycles skipped because another cycle held the lock",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent in one drain cycle",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Events claimed by the most recent cycle",
		}),
		EventsByField: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_by_field_total",
			Help:      "Processed change records by field discriminator",
		}, []string{"field"}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		ProjectsProvisioned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "projects_provisioned_total",
			Help:      "Projects auto-created from webhook events",
		}),
		ProvisionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "provision_failures_total",
			Help:      "Auto-provisioning attempts that failed",
		}),
	}
}

// New creates an unregistered metrics set, useful in tests where promauto
// registration would collide.
func New(namespace string) *Metrics {
	return &Metrics{
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of webhook events processed",
		}),
		EventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of webhook events that failed processing",
		}),
		CyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_skipped_total",
			Help:      "Drain cycles skipped on lock contention",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent in one drain cycle",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Events claimed by the most recent cycle",
		}),
		EventsByField: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_by_field_total",
			Help:      "Processed change records by field discriminator",
		}, []string{"field"}),
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		ProjectsProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projects_provisioned_total",
			Help:      "Projects auto-created from webhook events",
		}),
		ProvisionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provision_failures_total",
			Help:      "Auto-provisioning attempts that failed",
		}),
	}
}
