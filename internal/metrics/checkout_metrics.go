package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики checkout-оркестратора.
type CheckoutMetrics struct {
	// Счётчики жизненного цикла сессий
	checkoutStarted   prometheus.Counter
	checkoutSucceeded prometheus.Counter
	checkoutFailed    prometheus.Counter
	checkoutAbandoned prometheus.Counter
	staleResponses    prometheus.Counter
	revisionConflicts prometheus.Counter
	orderRecordFailed prometheus.Counter

	// Гистограммы времени выполнения
	checkoutDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec

	// Gauge для активных сессий
	activeSessions prometheus.Gauge
}

// NewCheckoutMetrics создаёт новый экземпляр метрик checkout.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_started_total",
			Help: "Total number of checkout sessions started",
		}),
		checkoutSucceeded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_succeeded_total",
			Help: "Total number of checkout sessions finished successfully",
		}),
		checkoutFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_failed_total",
			Help: "Total number of checkout sessions finished with a failure",
		}),
		checkoutAbandoned: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_abandoned_total",
			Help: "Total number of checkout sessions abandoned by the user",
		}),
		staleResponses: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_stale_responses_total",
			Help: "Total number of in-flight gateway responses discarded due to session generation mismatch",
		}),
		revisionConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_revision_conflicts_total",
			Help: "Total number of sessions invalidated by cart revision changes",
		}),
		orderRecordFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_order_recording_failed_total",
			Help: "Total number of captured payments whose order recording failed",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout sessions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		activeSessions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_checkout_active_sessions",
			Help: "Number of currently active checkout sessions",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCheckoutStarted увеличивает счётчик запущенных сессий и активные сессии.
func (m *CheckoutMetrics) RecordCheckoutStarted() {
	m.checkoutStarted.Inc()
	m.activeSessions.Inc()
}

// RecordCheckoutSucceeded фиксирует успешное завершение сессии.
func (m *CheckoutMetrics) RecordCheckoutSucceeded() {
	m.checkoutSucceeded.Inc()
	m.activeSessions.Dec()
}

// RecordCheckoutFailed фиксирует неудачное завершение сессии.
func (m *CheckoutMetrics) RecordCheckoutFailed() {
	m.checkoutFailed.Inc()
	m.activeSessions.Dec()
}

// RecordCheckoutAbandoned фиксирует отмену сессии пользователем.
func (m *CheckoutMetrics) RecordCheckoutAbandoned() {
	m.checkoutAbandoned.Inc()
	m.activeSessions.Dec()
}

// RecordStaleResponse увеличивает счётчик отброшенных устаревших ответов шлюза.
func (m *CheckoutMetrics) RecordStaleResponse() {
	m.staleResponses.Inc()
}

// RecordRevisionConflict увеличивает счётчик инвалидаций по ревизии корзины.
func (m *CheckoutMetrics) RecordRevisionConflict() {
	m.revisionConflicts.Inc()
}

// RecordOrderRecordingFailed увеличивает счётчик незаписанных заказов при захваченном платеже.
func (m *CheckoutMetrics) RecordOrderRecordingFailed() {
	m.orderRecordFailed.Inc()
}

// RecordCheckoutDuration записывает длительность сессии.
func (m *CheckoutMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordStepDuration записывает длительность шага checkout.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}
