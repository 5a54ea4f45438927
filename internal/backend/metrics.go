// ABOUTME: Prometheus instrumentation for backend calls
// ABOUTME: Counts requests per operation and outcome and records call latency

package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Call outcomes recorded in metrics
const (
	outcomeOK        = "ok"
	outcomeStatus    = "status_error"
	outcomeTransport = "transport_error"
)

// Metrics holds the backend client collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates and registers the backend collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyconsole",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Backend API calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keyconsole",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Backend API call latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *Metrics) observe(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}
