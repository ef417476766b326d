package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records command outcomes and projection gauges.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	commands        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	expenseFailures prometheus.Counter
	pending         *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchard",
			Subsystem: "workflow",
			Name:      "commands_total",
			Help:      "Workflow commands by command name and outcome code.",
		}, []string{"command", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orchard",
			Subsystem: "workflow",
			Name:      "command_duration_seconds",
			Help:      "Workflow command latency including store round-trips.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		expenseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orchard",
			Subsystem: "workflow",
			Name:      "expense_record_failures_total",
			Help:      "Expense callbacks that failed after a prescription was applied.",
		}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orchard",
			Subsystem: "workflow",
			Name:      "pending_prescriptions",
			Help:      "Prescriptions in PENDING per orchard, as of the last reload.",
		}, []string{"orchard"}),
	}
	reg.MustRegister(m.commands, m.duration, m.expenseFailures, m.pending)
	return m
}

func (m *Metrics) observe(command string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(CodeOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.commands.WithLabelValues(command, outcome).Inc()
	m.duration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *Metrics) expenseFailed() {
	if m == nil {
		return
	}
	m.expenseFailures.Inc()
}

// SetPending publishes the pending-prescription count for an orchard.
func (m *Metrics) SetPending(orchardID string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(orchardID).Set(float64(n))
}

// ForgetPending drops the pending-prescription series for an orchard.
func (m *Metrics) ForgetPending(orchardID string) {
	if m == nil {
		return
	}
	m.pending.DeleteLabelValues(orchardID)
}
