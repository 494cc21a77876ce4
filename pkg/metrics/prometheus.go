package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons for NotificationsSkipped
const (
	SkipIndexed = "indexed"
	SkipExists  = "exists"
	SkipNoKind  = "no_kind"
)

// Metrics holds all prometheus metrics
type Metrics struct {
	NotificationsCreated *prometheus.CounterVec
	NotificationsSkipped *prometheus.CounterVec
	OrphansDeleted       prometheus.Counter
	OverdueTransitions   prometheus.Counter
	SweepDuration        *prometheus.HistogramVec
	ActiveSessions       prometheus.Gauge
	ErrorsCount          *prometheus.CounterVec
}

// NewMetrics creates new prometheus metrics registered on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		NotificationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "The total number of notifications created",
		}, []string{"kind"}),
		NotificationsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_skipped_total",
			Help:      "Change events that did not produce a new notification",
		}, []string{"reason"}),
		OrphansDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphans_deleted_total",
			Help:      "The total number of orphaned notifications removed",
		}),
		OverdueTransitions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overdue_transitions_total",
			Help:      "The total number of bookings reclassified as Overdue",
		}),
		SweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Time taken by reconciliation sweeps",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sweep"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Owner reconciliation sessions currently running",
		}),
		ErrorsCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "The total number of errors",
		}, []string{"operation"}),
	}
}
