// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Messenger (Required)
	EnvPageAccessToken = "MENUBOT_PAGE_ACCESS_TOKEN"
	EnvVerifyToken     = "MENUBOT_VERIFY_TOKEN"
	EnvAppSecret       = "MENUBOT_APP_SECRET"
	EnvGraphAPIVersion = "MENUBOT_GRAPH_API_VERSION"
	EnvGraphAPIBaseURL = "MENUBOT_GRAPH_API_BASE_URL"

	// Server
	EnvPort            = "MENUBOT_PORT"
	EnvLogLevel        = "MENUBOT_LOG_LEVEL"
	EnvShutdownTimeout = "MENUBOT_SHUTDOWN_TIMEOUT"

	// Data
	EnvDataDir                = "MENUBOT_DATA_DIR"
	EnvJournalRetention       = "MENUBOT_JOURNAL_RETENTION"
	EnvJournalCleanupSchedule = "MENUBOT_JOURNAL_CLEANUP_SCHEDULE"

	// Catalog
	EnvCatalogPath         = "MENUBOT_CATALOG_PATH"
	EnvCatalogPollInterval = "MENUBOT_CATALOG_POLL_INTERVAL"

	// Remote catalog on R2
	EnvCatalogR2Enabled         = "MENUBOT_CATALOG_R2_ENABLED"
	EnvCatalogR2AccountID       = "MENUBOT_CATALOG_R2_ACCOUNT_ID"
	EnvCatalogR2AccessKeyID     = "MENUBOT_CATALOG_R2_ACCESS_KEY_ID"
	EnvCatalogR2SecretAccessKey = "MENUBOT_CATALOG_R2_SECRET_ACCESS_KEY"
	EnvCatalogR2BucketName      = "MENUBOT_CATALOG_R2_BUCKET_NAME"
	EnvCatalogR2Key             = "MENUBOT_CATALOG_R2_KEY"
	EnvCatalogR2Endpoint        = "MENUBOT_CATALOG_R2_ENDPOINT"

	// Delivery
	EnvDeliveryTimeout = "MENUBOT_DELIVERY_TIMEOUT"
	EnvDeliveryRPS     = "MENUBOT_DELIVERY_RPS"

	// Rate Limits
	EnvUserRateBurst  = "MENUBOT_USER_RATE_BURST"
	EnvUserRateRefill = "MENUBOT_USER_RATE_REFILL"

	// Conversation state
	EnvConversationTTL = "MENUBOT_CONVERSATION_TTL"

	// LINE channel (optional)
	EnvLineChannelAccessToken = "MENUBOT_LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "MENUBOT_LINE_CHANNEL_SECRET"

	// Sentry Feature
	EnvSentryDSN              = "MENUBOT_SENTRY_DSN"
	EnvSentryEnvironment      = "MENUBOT_SENTRY_ENVIRONMENT"
	EnvSentryRelease          = "MENUBOT_SENTRY_RELEASE"
	EnvSentrySampleRate       = "MENUBOT_SENTRY_SAMPLE_RATE"
	EnvSentryTracesSampleRate = "MENUBOT_SENTRY_TRACES_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackToken    = "MENUBOT_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "MENUBOT_BETTERSTACK_ENDPOINT"

	// Admin API
	EnvAdminUsername = "MENUBOT_ADMIN_USERNAME"
	EnvAdminPassword = "MENUBOT_ADMIN_PASSWORD"

	// Metrics Auth Feature
	EnvMetricsUsername = "MENUBOT_METRICS_USERNAME"
	EnvMetricsPassword = "MENUBOT_METRICS_PASSWORD"
)
