package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	AssessmentsCreated   prometheus.Counter
	AssessmentsSubmitted prometheus.Counter
	ReviewsCompleted     prometheus.Counter
	FinalReviews         prometheus.Counter
	LabelSyncRuns        prometheus.Counter
	LabelSyncFailures    prometheus.Counter
	NotificationsSent    prometheus.Counter
	NotificationFailures prometheus.Counter
}

// New creates the application metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AssessmentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "geiq_assessments_created_total",
			Help: "Total number of assessments created",
		}),
		AssessmentsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "geiq_assessments_submitted_total",
			Help: "Total number of assessments submitted",
		}),
		ReviewsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "geiq_assessments_reviewed_total",
			Help: "Total number of first-tier reviews completed",
		}),
		FinalReviews: factory.NewCounter(prometheus.CounterOpts{
			Name: "geiq_assessments_final_reviewed_total",
			Help: "Total number of final reviews completed",
		}),
		LabelSyncRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "geiq_label_sync_runs_total",
			Help: "Total number of Label registry sync runs",
		}),
		LabelSyncFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "geiq_label_sync_failures_total",
			Help: "Total number of failed Label registry sync runs",
		}),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "geiq_notifications_sent_total",
			Help: "Total number of outbox notifications delivered",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "geiq_notification_failures_total",
			Help: "Total number of outbox notification delivery failures",
		}),
	}
}
