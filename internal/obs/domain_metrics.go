package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ConnectURLTotal counts hosted-page URL builds by request type and result.
	ConnectURLTotal *prometheus.CounterVec
	// WebhookValidationTotal counts inbound signature checks by outcome.
	WebhookValidationTotal *prometheus.CounterVec
	// WebhookEventsTotal counts accepted webhook events by resource type and action.
	WebhookEventsTotal *prometheus.CounterVec
	// ConfirmResourceTotal counts resource confirmation calls by outcome.
	ConfirmResourceTotal *prometheus.CounterVec
	// ConfirmLatency records confirm call latency in milliseconds.
	ConfirmLatency prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ConnectURLTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_url_total",
			Help:      "Count of signed hosted-page URL builds by outcome.",
		}, []string{"type", "result"})
		WebhookValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_validation_total",
			Help:      "Count of inbound webhook and redirect signature checks by outcome.",
		}, []string{"result"})
		WebhookEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Count of processed webhook events by resource type and action.",
		}, []string{"resource_type", "action"})
		ConfirmResourceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirm_resource_total",
			Help:      "Count of resource confirmation calls by outcome.",
		}, []string{"result"})
		ConfirmLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confirm_resource_duration_ms",
			Help:      "Latency for resource confirmation calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		})

		mustRegisterCollector(reg, ConnectURLTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ConnectURLTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookValidationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WebhookValidationTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookEventsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WebhookEventsTotal = v
			}
		})
		mustRegisterCollector(reg, ConfirmResourceTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ConfirmResourceTotal = v
			}
		})
		mustRegisterCollector(reg, ConfirmLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				ConfirmLatency = v
			}
		})
	})
}

// CountConnectURL increments ConnectURLTotal when domain metrics are registered.
func CountConnectURL(requestType, result string) {
	if ConnectURLTotal != nil {
		ConnectURLTotal.WithLabelValues(requestType, result).Inc()
	}
}

// CountWebhookValidation increments WebhookValidationTotal when registered.
func CountWebhookValidation(result string) {
	if WebhookValidationTotal != nil {
		WebhookValidationTotal.WithLabelValues(result).Inc()
	}
}

// CountWebhookEvent increments WebhookEventsTotal when registered.
func CountWebhookEvent(resourceType, action string) {
	if WebhookEventsTotal != nil {
		WebhookEventsTotal.WithLabelValues(labelOrUnknown(resourceType), labelOrUnknown(action)).Inc()
	}
}

// ObserveConfirm records a confirmation outcome and its latency in milliseconds.
func ObserveConfirm(result string, millis float64) {
	if ConfirmResourceTotal != nil {
		ConfirmResourceTotal.WithLabelValues(result).Inc()
	}
	if ConfirmLatency != nil {
		ConfirmLatency.Observe(millis)
	}
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
