package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Результаты оформления заказа для метки result.
const (
	ResultCreated    = "created"
	ResultInvalid    = "invalid"
	ResultNotFound   = "not_found"
	ResultOutOfStock = "out_of_stock"
	ResultError      = "error"
)

// OrderMetrics — метрики процесса оформления заказа.
type OrderMetrics struct {
	placements    *prometheus.CounterVec
	duration      prometheus.Histogram
	orderTotal    prometheus.Histogram
	itemsPerOrder prometheus.Histogram
	unitsSold     prometheus.Counter
}

// NewOrderMetrics регистрирует метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		placements: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_placements_total",
			Help:      "Order placement attempts grouped by result.",
		}, []string{"result"}), "order_placements_total"),
		duration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_placement_duration_seconds",
			Help:      "Duration of the order placement unit of work.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}), "order_placement_duration_seconds"),
		orderTotal: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_total_amount",
			Help:      "Total amount of created orders.",
			Buckets:   prometheus.ExponentialBuckets(10, 2.5, 8),
		}), "order_total_amount"),
		itemsPerOrder: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_items_per_order",
			Help:      "Number of line items in created orders.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}), "order_items_per_order"),
		unitsSold: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_units_sold_total",
			Help:      "Total number of product units taken from stock by orders.",
		}), "order_units_sold_total"),
	}
}

// RecordPlaced учитывает успешно созданный заказ.
func (m *OrderMetrics) RecordPlaced(total decimal.Decimal, items, units int, took time.Duration) {
	if m == nil {
		return
	}
	m.placements.WithLabelValues(ResultCreated).Inc()
	m.duration.Observe(took.Seconds())
	m.orderTotal.Observe(total.InexactFloat64())
	m.itemsPerOrder.Observe(float64(items))
	m.unitsSold.Add(float64(units))
}

// RecordRejected учитывает отказ в оформлении с указанным результатом.
func (m *OrderMetrics) RecordRejected(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.placements.WithLabelValues(result).Inc()
	m.duration.Observe(took.Seconds())
}
