package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionMetrics — метрики очистки истёкших сессий.
type SessionMetrics struct {
	runs        prometheus.Counter
	swept       prometheus.Counter
	lastRemoved prometheus.Gauge
}

// NewSessionMetrics регистрирует метрики в DefaultRegisterer.
func NewSessionMetrics() *SessionMetrics {
	return NewSessionMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSessionMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewSessionMetricsWithRegisterer(registerer prometheus.Registerer) *SessionMetrics {
	return &SessionMetrics{
		runs: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_sweep_runs_total",
			Help:      "Total number of expired session sweeps.",
		}), "session_sweep_runs_total"),
		swept: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_swept_total",
			Help:      "Total number of removed expired sessions.",
		}), "session_swept_total"),
		lastRemoved: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_sweep_last_removed",
			Help:      "Number of sessions removed during the last sweep.",
		}), "session_sweep_last_removed"),
	}
}

// RecordSweep учитывает один проход очистки.
func (m *SessionMetrics) RecordSweep(removed int) {
	if m == nil {
		return
	}
	m.runs.Inc()
	m.lastRemoved.Set(float64(removed))
	if removed > 0 {
		m.swept.Add(float64(removed))
	}
}
