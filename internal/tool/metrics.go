package tool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const statusSuccess = "success"

// Metrics records tool invocations. A nil *Metrics records nothing.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the tool metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gmail_mcp",
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations by tool and outcome.",
		}, []string{"tool", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gmail_mcp",
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"tool"}),
	}

	reg.MustRegister(m.calls, m.duration)

	return m
}

// Calls returns the invocation counter, labelled by tool and status.
func (m *Metrics) Calls() *prometheus.CounterVec {
	return m.calls
}

func (m *Metrics) observe(tool, status string, d time.Duration) {
	if m == nil {
		return
	}

	m.calls.WithLabelValues(tool, status).Inc()
	m.duration.WithLabelValues(tool).Observe(d.Seconds())
}
