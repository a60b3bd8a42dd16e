package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics — метрики публикации transactional outbox.
type OutboxMetrics struct {
	attempts         *prometheus.CounterVec
	pendingRecords   prometheus.Gauge
	oldestPendingAge prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики в DefaultRegisterer.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		attempts: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_attempts_total",
			Help:      "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}), "outbox_publish_attempts_total"),
		pendingRecords: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending_records",
			Help:      "Current number of pending records in transactional outbox.",
		}), "outbox_pending_records"),
		oldestPendingAge: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_oldest_pending_age_seconds",
			Help:      "Age in seconds of the oldest pending outbox record.",
		}), "outbox_oldest_pending_age_seconds"),
	}
}

// RecordAttempt увеличивает счётчик попыток с результатом
// sent, retry_error, failed или dlq_failed.
func (m *OutboxMetrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер очереди и возраст самого старого сообщения.
func (m *OutboxMetrics) SetBacklog(pending int, oldest time.Time, now time.Time) {
	if m == nil {
		return
	}
	m.pendingRecords.Set(float64(pending))
	if pending == 0 || oldest.IsZero() {
		m.oldestPendingAge.Set(0)
		return
	}
	age := now.Sub(oldest).Seconds()
	if age < 0 {
		age = 0
	}
	m.oldestPendingAge.Set(age)
}
