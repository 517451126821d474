// Package metrics exposes Prometheus instruments for the HTTP edge, the
// quota hot path, and billing flows. Instruments register once on the
// default registerer; tests reset the singletons.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics captures request rates and latency per route.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	httpMetricsOnce sync.Once
	httpMetrics     *HTTPMetrics
)

// HTTP returns the singleton HTTP metrics registry.
func HTTP() *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpMetrics = newHTTPMetrics(prometheus.DefaultRegisterer)
	})
	return httpMetrics
}

func newHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundleworks_http_requests_total",
			Help: "HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bundleworks_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	registerer.MustRegister(m.requests, m.duration)
	return m
}

// Observe records one finished request.
func (m *HTTPMetrics) Observe(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Middleware instruments gin handlers with the HTTP metrics.
func Middleware() gin.HandlerFunc {
	m := HTTP()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.Observe(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// QuotaMetrics counts enforcement decisions by outcome.
type QuotaMetrics struct {
	decisions *prometheus.CounterVec
}

var (
	quotaMetricsOnce sync.Once
	quotaMetrics     *QuotaMetrics
)

// Quota returns the singleton quota metrics registry.
func Quota() *QuotaMetrics {
	quotaMetricsOnce.Do(func() {
		quotaMetrics = newQuotaMetrics(prometheus.DefaultRegisterer)
	})
	return quotaMetrics
}

func newQuotaMetrics(registerer prometheus.Registerer) *QuotaMetrics {
	m := &QuotaMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundleworks_quota_decisions_total",
			Help: "Quota decisions by feature and outcome.",
		}, []string{"feature", "outcome"}),
	}
	registerer.MustRegister(m.decisions)
	return m
}

const (
	QuotaOutcomeAllowed      = "allowed"
	QuotaOutcomeDenied       = "denied"
	QuotaOutcomeDeduplicated = "deduplicated"
	QuotaOutcomeUnknown      = "unknown_feature"
)

// IncDecision counts one enforcement decision.
func (m *QuotaMetrics) IncDecision(feature, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(feature, outcome).Inc()
}

// BillingMetrics counts enterprise billing outcomes.
type BillingMetrics struct {
	records *prometheus.CounterVec
	charges *prometheus.CounterVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the singleton billing metrics registry.
func Billing() *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer)
	})
	return billingMetrics
}

func newBillingMetrics(registerer prometheus.Registerer) *BillingMetrics {
	m := &BillingMetrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundleworks_billing_records_total",
			Help: "Billing records created per sweep outcome.",
		}, []string{"outcome"}),
		charges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundleworks_billing_charges_total",
			Help: "Charge attempts by result.",
		}, []string{"result"}),
	}
	registerer.MustRegister(m.records, m.charges)
	return m
}

func (m *BillingMetrics) IncRecord(outcome string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(outcome).Inc()
}

func (m *BillingMetrics) IncCharge(result string) {
	if m == nil {
		return
	}
	m.charges.WithLabelValues(result).Inc()
}

// RevenueMetrics counts revenue-event intake.
type RevenueMetrics struct {
	events *prometheus.CounterVec
}

var (
	revenueMetricsOnce sync.Once
	revenueMetrics     *RevenueMetrics
)

// Revenue returns the singleton revenue metrics registry.
func Revenue() *RevenueMetrics {
	revenueMetricsOnce.Do(func() {
		revenueMetrics = newRevenueMetrics(prometheus.DefaultRegisterer)
	})
	return revenueMetrics
}

func newRevenueMetrics(registerer prometheus.Registerer) *RevenueMetrics {
	m := &RevenueMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundleworks_revenue_events_total",
			Help: "Revenue events recorded by source and outcome.",
		}, []string{"source", "outcome"}),
	}
	registerer.MustRegister(m.events)
	return m
}

const (
	RevenueOutcomeRecorded  = "recorded"
	RevenueOutcomeDuplicate = "duplicate"
	RevenueOutcomeDeferred  = "deferred"
)

// IncEvent counts one recorded revenue event.
func (m *RevenueMetrics) IncEvent(source, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(source, outcome).Inc()
}

// ResetForTest resets the metric singletons so each test registers onto a
// fresh registry.
func ResetForTest(registerer prometheus.Registerer) {
	httpMetricsOnce = sync.Once{}
	httpMetrics = newHTTPMetrics(registerer)
	httpMetricsOnce.Do(func() {})

	quotaMetricsOnce = sync.Once{}
	quotaMetrics = newQuotaMetrics(registerer)
	quotaMetricsOnce.Do(func() {})

	billingMetricsOnce = sync.Once{}
	billingMetrics = newBillingMetrics(registerer)
	billingMetricsOnce.Do(func() {})

	revenueMetricsOnce = sync.Once{}
	revenueMetrics = newRevenueMetrics(registerer)
	revenueMetricsOnce.Do(func() {})

	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = newSchedulerMetrics(registerer)
	schedulerMetricsOnce.Do(func() {})
}
