package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal counts Stripe webhook deliveries by event type and
	// response status.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_webhook_events_total",
		Help: "Stripe webhook deliveries by event type and HTTP status.",
	}, []string{"type", "status"})

	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studyhub_webhook_duration_seconds",
		Help:    "Stripe webhook processing duration by event type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// GenerateRequestsTotal counts AI proxy calls by outcome: ok, blocked,
	// empty, upstream_error, payment_required, bad_request, store_error.
	GenerateRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_generate_requests_total",
		Help: "Gated AI generation requests by outcome.",
	}, []string{"outcome"})

	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_checkout_sessions_total",
		Help: "Stripe checkout session creations by outcome.",
	}, []string{"outcome"})

	LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studyhub_live_entitlement_subscribers",
		Help: "Currently connected live entitlement feed clients.",
	})
)
