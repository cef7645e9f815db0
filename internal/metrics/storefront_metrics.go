package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины неудачного оформления заказа (label reason).
const (
	ReasonValidation  = "validation"
	ReasonNotFound    = "not_found"
	ReasonInactive    = "inactive"
	ReasonOutOfStock  = "insufficient_stock"
	ReasonNumberClash = "number_collision"
	ReasonInternal    = "internal"
)

// StorefrontMetrics содержит метрики витрины: оформление заказов,
// жизненный цикл и HTTP-слой.
type StorefrontMetrics struct {
	ordersPlaced      prometheus.Counter
	ordersFailed      *prometheus.CounterVec
	placementDuration prometheus.Histogram
	stockConflicts    prometheus.Counter
	numberRetries     prometheus.Counter

	statusTransitions *prometheus.CounterVec
	paymentsRecorded  prometheus.Counter
	productViews      prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewStorefrontMetrics регистрирует метрики в DefaultRegisterer.
func NewStorefrontMetrics() *StorefrontMetrics {
	return NewStorefrontMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStorefrontMetricsWithRegisterer регистрирует метрики в переданном реестре.
// Повторная регистрация переиспользует уже существующие коллекторы.
func NewStorefrontMetricsWithRegisterer(registerer prometheus.Registerer) *StorefrontMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StorefrontMetrics{
		ordersPlaced: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders committed",
		})),
		ordersFailed: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_orders_failed_total",
			Help: "Total number of rejected order placements by reason",
		}, []string{"reason"})),
		placementDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_order_placement_duration_seconds",
			Help:    "Duration of the order placement transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		})),
		stockConflicts: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_stock_reservation_conflicts_total",
			Help: "Total number of stock reservations rejected for insufficient stock",
		})),
		numberRetries: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_order_number_retries_total",
			Help: "Total number of regenerated order numbers after a collision",
		})),
		statusTransitions: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_status_transitions_total",
			Help: "Total number of order status changes by target status",
		}, []string{"status"})),
		paymentsRecorded: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_payments_recorded_total",
			Help: "Total number of payments recorded on orders",
		})),
		productViews: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_product_views_total",
			Help: "Total number of product view counter increments",
		})),
		httpRequests: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"})),
		httpDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})),
	}
}

// register регистрирует коллектор или возвращает ранее зарегистрированный того же типа.
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type: %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordOrderPlaced фиксирует успешно оформленный заказ.
func (m *StorefrontMetrics) RecordOrderPlaced(duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
	m.placementDuration.Observe(duration.Seconds())
}

// RecordOrderFailed фиксирует отказ в оформлении.
func (m *StorefrontMetrics) RecordOrderFailed(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersFailed.WithLabelValues(reason).Inc()
	m.placementDuration.Observe(duration.Seconds())
	if reason == ReasonOutOfStock {
		m.stockConflicts.Inc()
	}
}

// RecordOrderNumberRetry фиксирует повторную генерацию номера заказа.
func (m *StorefrontMetrics) RecordOrderNumberRetry() {
	if m == nil {
		return
	}
	m.numberRetries.Inc()
}

// RecordStatusTransition фиксирует смену статуса заказа.
func (m *StorefrontMetrics) RecordStatusTransition(status string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(status).Inc()
}

// RecordPayment фиксирует зарегистрированную оплату.
func (m *StorefrontMetrics) RecordPayment() {
	if m == nil {
		return
	}
	m.paymentsRecorded.Inc()
}

// RecordProductView фиксирует просмотр карточки товара.
func (m *StorefrontMetrics) RecordProductView() {
	if m == nil {
		return
	}
	m.productViews.Inc()
}

// RecordHTTPRequest фиксирует обработанный HTTP-запрос.
func (m *StorefrontMetrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, fmt.Sprintf("%d", status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
