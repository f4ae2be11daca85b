// Package metrics holds the Prometheus collectors for the monitor, the
// transition engine and the notification relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Monitor pass metrics
	MonitorPasses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_monitor_passes_total",
		Help: "Total number of monitor passes, by trigger (timer or manual)",
	}, []string{"trigger"})
	MonitorPassesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_monitor_passes_skipped_total",
		Help: "Timer ticks skipped because the previous pass was still running",
	})
	MonitorPassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "warden_monitor_pass_duration_seconds",
		Help:    "Duration of monitor passes",
		Buckets: prometheus.DefBuckets,
	})
	ScanErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_scan_errors_total",
		Help: "Scanner passes that failed as a whole",
	}, []string{"scanner"})
	ItemErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_scan_item_errors_total",
		Help: "Individual work items whose transition failed",
	}, []string{"scanner"})

	// Transition engine metrics
	EscalationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_escalations_created_total",
		Help: "Escalations written, by work item class, level and action",
	}, []string{"class", "level", "action"})
	Reescalations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_reescalations_total",
		Help: "Escalations raised to the next level by the timeout scanner",
	}, []string{"priority"})
	IdempotentCollisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_idempotent_collisions_total",
		Help: "Transitions suppressed because a concurrent writer got there first",
	}, []string{"operation"})
	EscalationsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_escalations_resolved_total",
		Help: "Escalations resolved by an operator",
	}, []string{"class"})

	// Notification relay metrics
	NotificationsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_notifications_delivered_total",
		Help: "Notifications accepted by a sink",
	}, []string{"sink"})
	NotificationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_notifications_failed_total",
		Help: "Notification deliveries rejected by a sink",
	}, []string{"sink"})
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_mail_send_failure_total",
		Help: "Total number of failed mail sends",
	}, []string{"host"})
)

func init() {
	prometheus.MustRegister(MonitorPasses)
	prometheus.MustRegister(MonitorPassesSkipped)
	prometheus.MustRegister(MonitorPassDuration)
	prometheus.MustRegister(ScanErrors)
	prometheus.MustRegister(ItemErrors)
	prometheus.MustRegister(EscalationsCreated)
	prometheus.MustRegister(Reescalations)
	prometheus.MustRegister(IdempotentCollisions)
	prometheus.MustRegister(EscalationsResolved)
	prometheus.MustRegister(NotificationsDelivered)
	prometheus.MustRegister(NotificationsFailed)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
