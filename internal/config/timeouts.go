// Package config provides centralized timeout constants for the application.
//
// # Messenger Platform Constraints
//
// The Messenger Platform retries a webhook delivery when the endpoint does
// not answer 200 within 20 seconds, so ingress acknowledges before any send.
// Send API calls are bounded individually so one slow send cannot hold the
// rest of a trigger's sequence forever.
package config

import "time"

// Webhook timeouts
const (
	// WebhookBatchProcessing bounds dispatching every event in one webhook delivery.
	WebhookBatchProcessing = 60 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout for webhook requests.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout.
	WebhookHTTPWrite = 15 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second

	// WebhookMaxBodyBytes caps inbound webhook payloads.
	WebhookMaxBodyBytes = 1 << 20
)

// Delivery timeouts
const (
	// DeliveryPerSend is the default bound on a single Send API call.
	DeliveryPerSend = 10 * time.Second

	// ProfileRequest bounds one Messenger Profile API call.
	ProfileRequest = 15 * time.Second
)

// Probe and admin timeouts
const (
	// ReadinessCheckTimeout bounds the dependency checks behind /readyz.
	ReadinessCheckTimeout = 3 * time.Second

	// AdminRequest bounds one admin API call. It stays under WebhookHTTPWrite
	// so the caller still gets an answer.
	AdminRequest = 12 * time.Second
)

// Catalog timeouts
const (
	// CatalogFetch bounds fetching a catalog from its source.
	CatalogFetch = 30 * time.Second
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 5 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Background job intervals
const (
	// ConversationSweepInterval is how often expired conversation state is removed.
	ConversationSweepInterval = time.Minute

	// RateLimiterCleanupInterval is how often idle sender limiters are removed.
	RateLimiterCleanupInterval = 5 * time.Minute

	// MetricsUpdateInterval is how often gauge metrics are refreshed.
	MetricsUpdateInterval = 30 * time.Second
)

// Graceful shutdown
const (
	// GracefulShutdown is the default timeout for graceful server shutdown.
	GracefulShutdown = 30 * time.Second
)
