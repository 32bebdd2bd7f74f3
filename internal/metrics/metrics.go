// Package metrics defines the Prometheus metrics exported at /metrics.
// Every Record method is safe on a nil *Metrics so components can run
// without instrumentation in tests and CLI tools.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Webhook metrics
	WebhookRequestsTotal   *prometheus.CounterVec
	WebhookDurationSeconds *prometheus.HistogramVec
	WebhookEventsTotal     *prometheus.CounterVec

	// Dispatch metrics
	DispatchTotal *prometheus.CounterVec

	// Delivery metrics
	DeliveriesTotal         *prometheus.CounterVec
	DeliveryDurationSeconds *prometheus.HistogramVec

	// Profile API metrics
	ProfileUpdatesTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterWaitDuration *prometheus.HistogramVec
	RateLimiterDropped      *prometheus.CounterVec

	// Conversation metrics
	ConversationsActive prometheus.Gauge

	// Catalog metrics
	CatalogReloadsTotal    *prometheus.CounterVec
	CatalogTriggers        prometheus.Gauge
	CatalogResponses       prometheus.Gauge
	SingleflightDedupTotal *prometheus.CounterVec

	// Journal metrics
	JournalPrunedTotal prometheus.Counter
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		WebhookRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menubot_webhook_requests_total",
				Help: "Total webhook HTTP requests by channel and status",
			},
			[]string{"channel", "status"}, // status: ok, not_page, bad_request, bad_signature, verify_ok, verify_denied
		),

		WebhookDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menubot_webhook_batch_duration_seconds",
				Help:    "Time to dispatch every event in one webhook delivery",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"channel"},
		),

		WebhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menubot_webhook_events_total",
				Help: "Inbound events by channel, variant and status",
			},
			[]string{"channel", "variant", "status"}, // status: accepted, malformed, attachment, rate_limited, no_catalog
		),

		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menubot_dispatch_total",
				Help: "Dispatch outcomes by channel",
			},
			[]string{"channel", "outcome"}, // outcome: matched, fallback, captured, invalid_input, dropped
		),

		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menubot_deliveries_total",
				Help: "Outbound sends by channel, response kind and status",
			},
			[]string{"channel", "kind", "status"}, // status: delivered, failed
		),

		DeliveryDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menubot_delivery_duration_seconds",
				Help:    "Outbound send latency by channel and response kind",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}, // Upper bound matches default send timeout
			},
			[]string{"channel", "kind"},
		),

		ProfileUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menubot_profile_updates_total",
				Help: "Messenger Profile API calls by field and status",
			},
			[]string{"field", "status"},
		),

		RateLimiterWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menubot_rate_limiter_wait_duration_seconds",
				Help:    "Time spent waiting for a rate limiter token by limiter type",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"limiter_type"}, // limiter_type: graph_api
		),

		RateLimiterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menubot_rate_limiter_dropped_total",
				Help: "Total number of events dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: sender
		),

		ConversationsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "menubot_conversations_active",
				Help: "Senders with an open input capture",
			},
		),

		CatalogReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menubot_catalog_reloads_total",
				Help: "Catalog load attempts by status",
			},
			[]string{"status"}, // status: success, unchanged, invalid, fetch_error
		),

		CatalogTriggers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "menubot_catalog_triggers",
				Help: "Triggers in the live catalog",
			},
		),

		CatalogResponses: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "menubot_catalog_responses",
				Help: "Responses in the live catalog",
			},
		),

		SingleflightDedupTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menubot_singleflight_dedup_total",
				Help: "Calls that waited on an in-flight duplicate instead of executing",
			},
			[]string{"module"},
		),

		JournalPrunedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "menubot_journal_pruned_total",
				Help: "Delivery journal rows removed by retention cleanup",
			},
		),
	}
}

// RecordWebhook records a webhook HTTP request outcome
func (m *Metrics) RecordWebhook(channel, status string) {
	if m == nil {
		return
	}
	m.WebhookRequestsTotal.WithLabelValues(channel, status).Inc()
}

// RecordWebhookBatch records how long a webhook delivery took to dispatch
func (m *Metrics) RecordWebhookBatch(channel string, duration float64) {
	if m == nil {
		return
	}
	m.WebhookDurationSeconds.WithLabelValues(channel).Observe(duration)
}

// RecordEvent records one inbound event
func (m *Metrics) RecordEvent(channel, variant, status string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(channel, variant, status).Inc()
}

// RecordDispatch records a dispatch outcome
func (m *Metrics) RecordDispatch(channel, outcome string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(channel, outcome).Inc()
}

// RecordDelivery records a send with status
func (m *Metrics) RecordDelivery(channel, kind, status string, duration float64) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(channel, kind, status).Inc()
	m.DeliveryDurationSeconds.WithLabelValues(channel, kind).Observe(duration)
}

// RecordProfileUpdate records a Messenger Profile API call
func (m *Metrics) RecordProfileUpdate(field, status string) {
	if m == nil {
		return
	}
	m.ProfileUpdatesTotal.WithLabelValues(field, status).Inc()
}

// RecordRateLimiterWait records time spent waiting for rate limiter
func (m *Metrics) RecordRateLimiterWait(limiterType string, duration float64) {
	if m == nil {
		return
	}
	m.RateLimiterWaitDuration.WithLabelValues(limiterType).Observe(duration)
}

// RecordRateLimiterDrop records an event dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	if m == nil {
		return
	}
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// SetActiveConversations sets the open capture gauge
func (m *Metrics) SetActiveConversations(n int) {
	if m == nil {
		return
	}
	m.ConversationsActive.Set(float64(n))
}

// RecordCatalogReload records a catalog load attempt
func (m *Metrics) RecordCatalogReload(status string) {
	if m == nil {
		return
	}
	m.CatalogReloadsTotal.WithLabelValues(status).Inc()
}

// SetCatalogSize sets the live catalog size gauges
func (m *Metrics) SetCatalogSize(triggers, responses int) {
	if m == nil {
		return
	}
	m.CatalogTriggers.Set(float64(triggers))
	m.CatalogResponses.Set(float64(responses))
}

// RecordSingleflightDedup records a deduplicated call
func (m *Metrics) RecordSingleflightDedup(module string) {
	if m == nil {
		return
	}
	m.SingleflightDedupTotal.WithLabelValues(module).Inc()
}

// RecordJournalPruned records rows removed by retention cleanup
func (m *Metrics) RecordJournalPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.JournalPrunedTotal.Add(float64(n))
}
