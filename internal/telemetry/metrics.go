package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the dispatch collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	notifications *prometheus.CounterVec
	emails        *prometheus.CounterVec
	runDuration   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsletter",
			Name:      "notifications_dispatched_total",
			Help:      "Notifications processed by dispatch runs, by result status.",
		}, []string{"status"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsletter",
			Name:      "emails_total",
			Help:      "Individual notification emails attempted, by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "newsletter",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time of a dispatch run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.notifications, m.emails, m.runDuration)
	return m
}

func (m *Metrics) NotificationProcessed(status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status).Inc()
}

func (m *Metrics) EmailsAttempted(sent, failed int) {
	if m == nil {
		return
	}
	m.emails.WithLabelValues("sent").Add(float64(sent))
	m.emails.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) RunFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}
