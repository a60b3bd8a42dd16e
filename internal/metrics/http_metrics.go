package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics — метрики REST API. route — шаблон маршрута chi, а не сырой путь,
// чтобы id в URL не раздували кардинальность.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewHTTPMetrics регистрирует метрики в DefaultRegisterer.
func NewHTTPMetrics() *HTTPMetrics {
	return NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewHTTPMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewHTTPMetricsWithRegisterer(registerer prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		requests: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests grouped by method, route and status code.",
		}, []string{"method", "route", "status"}), "http_requests_total"),
		duration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency grouped by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}), "http_request_duration_seconds"),
		inFlight: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests being served.",
		}), "http_requests_in_flight"),
	}
}

// Started отмечает начало обработки запроса.
func (m *HTTPMetrics) Started() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// Observe фиксирует завершённый запрос.
func (m *HTTPMetrics) Observe(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.inFlight.Dec()
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(took.Seconds())
}
