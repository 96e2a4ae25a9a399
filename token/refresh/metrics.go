package refresh

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts and times refresh grants. A nil *Metrics records nothing.
type Metrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the refresh collectors with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlauth_token_refresh_total",
			Help: "Refresh token grants by trigger and result.",
		}, []string{"trigger", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hlauth_token_refresh_duration_seconds",
			Help:    "Latency of refresh token grants.",
			Buckets: prometheus.DefBuckets,
		}, []string{"trigger"}),
	}
	if reg != nil {
		reg.MustRegister(m.total, m.duration)
	}
	return m
}

func (m *Metrics) observe(trigger Trigger, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.total.WithLabelValues(string(trigger), result).Inc()
	m.duration.WithLabelValues(string(trigger)).Observe(elapsed.Seconds())
}
