package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewCheckoutMetrics(t *testing.T) {
	metrics := NewCheckoutMetrics()

	if metrics == nil {
		t.Fatal("NewCheckoutMetrics should not return nil")
	}

	if metrics.checkoutStarted == nil {
		t.Error("checkoutStarted counter should not be nil")
	}
	if metrics.checkoutSucceeded == nil {
		t.Error("checkoutSucceeded counter should not be nil")
	}
	if metrics.checkoutFailed == nil {
		t.Error("checkoutFailed counter should not be nil")
	}
	if metrics.checkoutAbandoned == nil {
		t.Error("checkoutAbandoned counter should not be nil")
	}
	if metrics.staleResponses == nil {
		t.Error("staleResponses counter should not be nil")
	}
	if metrics.revisionConflicts == nil {
		t.Error("revisionConflicts counter should not be nil")
	}
	if metrics.orderRecordFailed == nil {
		t.Error("orderRecordFailed counter should not be nil")
	}
	if metrics.checkoutDuration == nil {
		t.Error("checkoutDuration histogram should not be nil")
	}
	if metrics.stepDuration == nil {
		t.Error("stepDuration histogram vec should not be nil")
	}
	if metrics.activeSessions == nil {
		t.Error("activeSessions gauge should not be nil")
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	return metric.Gauge.GetValue()
}

func isolatedMetrics(t *testing.T) *CheckoutMetrics {
	t.Helper()
	return newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())
}

func TestRecordCheckoutStarted(t *testing.T) {
	metrics := isolatedMetrics(t)

	metrics.RecordCheckoutStarted()

	if got := counterValue(t, metrics.checkoutStarted); got != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", got)
	}
	if got := gaugeValue(t, metrics.activeSessions); got != 1.0 {
		t.Errorf("expected active sessions 1.0, got %f", got)
	}
}

func TestTerminalRecordsReleaseActiveSession(t *testing.T) {
	cases := []struct {
		name   string
		record func(m *CheckoutMetrics)
		read   func(m *CheckoutMetrics) prometheus.Counter
	}{
		{"succeeded", (*CheckoutMetrics).RecordCheckoutSucceeded, func(m *CheckoutMetrics) prometheus.Counter { return m.checkoutSucceeded }},
		{"failed", (*CheckoutMetrics).RecordCheckoutFailed, func(m *CheckoutMetrics) prometheus.Counter { return m.checkoutFailed }},
		{"abandoned", (*CheckoutMetrics).RecordCheckoutAbandoned, func(m *CheckoutMetrics) prometheus.Counter { return m.checkoutAbandoned }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := isolatedMetrics(t)
			metrics.RecordCheckoutStarted()
			tc.record(metrics)

			if got := counterValue(t, tc.read(metrics)); got != 1.0 {
				t.Errorf("expected counter 1.0, got %f", got)
			}
			if got := gaugeValue(t, metrics.activeSessions); got != 0.0 {
				t.Errorf("expected active sessions back to 0, got %f", got)
			}
		})
	}
}

func TestRecordConflictCounters(t *testing.T) {
	metrics := isolatedMetrics(t)

	metrics.RecordStaleResponse()
	metrics.RecordStaleResponse()
	metrics.RecordRevisionConflict()
	metrics.RecordOrderRecordingFailed()

	if got := counterValue(t, metrics.staleResponses); got != 2.0 {
		t.Errorf("expected stale responses 2.0, got %f", got)
	}
	if got := counterValue(t, metrics.revisionConflicts); got != 1.0 {
		t.Errorf("expected revision conflicts 1.0, got %f", got)
	}
	if got := counterValue(t, metrics.orderRecordFailed); got != 1.0 {
		t.Errorf("expected order recording failures 1.0, got %f", got)
	}
}

func TestRecordDurations(t *testing.T) {
	metrics := isolatedMetrics(t)

	metrics.RecordCheckoutDuration(150 * time.Millisecond)
	metrics.RecordStepDuration("create_intent", 20*time.Millisecond)
	metrics.RecordStepDuration("confirm", 35*time.Millisecond)

	metric := &dto.Metric{}
	if err := metrics.checkoutDuration.Write(metric); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 duration sample, got %d", metric.Histogram.GetSampleCount())
	}
}

func TestNewCheckoutMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := newCheckoutMetricsWithRegisterer(reg)
	second := newCheckoutMetricsWithRegisterer(reg)

	// Повторная регистрация должна вернуть существующие коллекторы, не панику.
	first.RecordCheckoutStarted()
	second.RecordCheckoutStarted()

	if got := counterValue(t, first.checkoutStarted); got != 2.0 {
		t.Errorf("expected shared counter 2.0, got %f", got)
	}
}
