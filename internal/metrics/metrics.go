// Package metrics collects and exposes Prometheus metrics for the purchase
// and progress flows.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded for checkouts and webhook events.
const (
	OutcomeOK        = "ok"
	OutcomeConflict  = "conflict"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeReplayed  = "replayed"
	OutcomeNotFound  = "not_found"
	OutcomeDeferred  = "deferred"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// MetricsCollector is what services record against. Tests pass NopCollector.
type MetricsCollector interface {
	RecordCheckout(outcome string)
	RecordWebhookEvent(eventType, outcome string)
	RecordPurchaseCompleted()
	RecordEntitlementsBackfilled(count int)
	RecordLectureViewed()
	RecordGatewayLatency(duration time.Duration)
}

type Collector struct {
	checkouts          *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	purchasesCompleted prometheus.Counter
	backfilled         prometheus.Counter
	lectureViews       prometheus.Counter
	gatewayLatency     prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ourcourses_checkouts_total",
			Help: "Checkout session attempts by outcome.",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ourcourses_webhook_events_total",
			Help: "Payment gateway events by type and outcome.",
		}, []string{"type", "outcome"}),
		purchasesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ourcourses_purchases_completed_total",
			Help: "Purchases that transitioned to completed.",
		}),
		backfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ourcourses_entitlements_backfilled_total",
			Help: "Completed purchases whose entitlements were re-applied.",
		}),
		lectureViews: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ourcourses_lecture_views_total",
			Help: "Recorded lecture views.",
		}),
		gatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ourcourses_gateway_latency_seconds",
			Help:    "Latency of checkout session creation at the payment gateway.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.checkouts,
		c.webhookEvents,
		c.purchasesCompleted,
		c.backfilled,
		c.lectureViews,
		c.gatewayLatency,
	)

	return c
}

func (c *Collector) RecordCheckout(outcome string) {
	c.checkouts.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (c *Collector) RecordPurchaseCompleted() {
	c.purchasesCompleted.Inc()
}

func (c *Collector) RecordEntitlementsBackfilled(count int) {
	c.backfilled.Add(float64(count))
}

func (c *Collector) RecordLectureViewed() {
	c.lectureViews.Inc()
}

func (c *Collector) RecordGatewayLatency(duration time.Duration) {
	c.gatewayLatency.Observe(duration.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type NopCollector struct{}

func (NopCollector) RecordCheckout(string) {}
func (NopCollector) RecordWebhookEvent(string, string) {}
func (NopCollector) RecordPurchaseCompleted() {}
func (NopCollector) RecordEntitlementsBackfilled(int) {}
func (NopCollector) RecordLectureViewed() {}
func (NopCollector) RecordGatewayLatency(time.Duration) {}
