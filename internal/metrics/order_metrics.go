package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения метки result.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Значения метки operation.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// OrderMetrics содержит метрики мутаций заказов и публикации событий.
type OrderMetrics struct {
	mutations       *prometheus.CounterVec
	published       *prometheus.CounterVec
	publishDuration prometheus.Histogram
	publishInFlight prometheus.Gauge
}

// NewOrderMetrics регистрирует метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в заданном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		mutations: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_orders_mutations_total",
			Help: "Total number of order mutations by operation and result",
		}, []string{"operation", "result"})),
		published: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_order_events_published_total",
			Help: "Total number of order event publish attempts by result",
		}, []string{"result"})),
		publishDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oms_order_event_publish_duration_seconds",
			Help:    "Duration of order event publish attempts in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		})),
		publishInFlight: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oms_order_event_publish_inflight",
			Help: "Number of detached order event publishes in flight",
		})),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordMutation учитывает create/update/delete с результатом.
func (m *OrderMetrics) RecordMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(operation, resultOf(err)).Inc()
}

// RecordPublishStarted отмечает начало фоновой публикации.
func (m *OrderMetrics) RecordPublishStarted() {
	if m == nil {
		return
	}
	m.publishInFlight.Inc()
}

// RecordPublishFinished фиксирует исход и длительность публикации.
func (m *OrderMetrics) RecordPublishFinished(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.publishInFlight.Dec()
	m.publishDuration.Observe(duration.Seconds())
	m.published.WithLabelValues(resultOf(err)).Inc()
}

// RecordPublishSkipped учитывает публикацию, не запущенную из-за остановки.
func (m *OrderMetrics) RecordPublishSkipped() {
	if m == nil {
		return
	}
	m.published.WithLabelValues(ResultSkipped).Inc()
}

// PublishedCounter возвращает счётчик публикаций с заданным результатом.
func (m *OrderMetrics) PublishedCounter(result string) prometheus.Counter {
	return m.published.WithLabelValues(result)
}

func resultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
