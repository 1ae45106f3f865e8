package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.NotificationProcessed("sent")
	m.NotificationProcessed("sent")
	m.NotificationProcessed("error")
	m.EmailsAttempted(3, 1)
	m.RunFinished(250 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.emails.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("failed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.NotificationProcessed("sent")
		m.EmailsAttempted(1, 0)
		m.RunFinished(time.Second)
	})
}
