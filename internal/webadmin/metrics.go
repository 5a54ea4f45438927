// ABOUTME: Prometheus instrumentation for the console
// ABOUTME: Counts login outcomes and key actions and reports live clients

package webadmin

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Login outcomes recorded in metrics
const (
	loginSucceeded   = "success"
	loginMFARequired = "mfa_required"
	loginFailed      = "failed"
	loginInvalid     = "invalid"
	loginThrottled   = "throttled"
)

// Metrics holds the console collectors. A nil *Metrics records nothing.
type Metrics struct {
	logins     *prometheus.CounterVec
	keyActions *prometheus.CounterVec
}

// NewMetrics creates and registers the console collectors. clients reports
// the number of live console clients.
func NewMetrics(reg prometheus.Registerer, clients func() int) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyconsole",
			Subsystem: "console",
			Name:      "logins_total",
			Help:      "Login submissions by outcome.",
		}, []string{"outcome"}),
		keyActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyconsole",
			Subsystem: "console",
			Name:      "key_actions_total",
			Help:      "License key actions by action and outcome.",
		}, []string{"action", "outcome"}),
	}
	clientsGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "keyconsole",
		Subsystem: "console",
		Name:      "clients",
		Help:      "Console clients currently held in memory.",
	}, func() float64 { return float64(clients()) })

	reg.MustRegister(m.logins, m.keyActions, clientsGauge)
	return m
}

func (m *Metrics) login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) keyAction(action string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.keyActions.WithLabelValues(action, outcome).Inc()
}
