// Package config provides application configuration management.
// It loads settings from environment variables (optionally seeded from a
// .env file) and applies defaults for the server and the operator CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	domerrors "github.com/garyellow/menubot-go/internal/errors"
)

// ValidationMode selects which settings are required.
type ValidationMode int

const (
	// ServerMode requires everything the webhook server needs.
	ServerMode ValidationMode = iota
	// ProfileMode requires only the page token (catalogctl profile).
	ProfileMode
	// PublishMode requires only the R2 settings (catalogctl push).
	PublishMode
	// OfflineMode requires nothing (catalogctl validate).
	OfflineMode
)

// Config holds all application configuration
type Config struct {
	// Messenger Configuration
	PageAccessToken string
	VerifyToken     string
	AppSecret       string // Empty disables X-Hub-Signature-256 verification
	GraphAPIVersion string
	GraphAPIBaseURL string

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Data Configuration
	DataDir                string
	JournalRetention       time.Duration
	JournalCleanupSchedule string // Cron expression

	// Catalog Configuration
	CatalogPath         string        // Empty = embedded default catalog
	CatalogPollInterval time.Duration // 0 = no polling
	CatalogR2           R2Config

	// Delivery Configuration
	DeliveryTimeout time.Duration
	DeliveryRPS     float64

	// Rate Limits (Token Bucket Algorithm)
	UserRateBurst  float64
	UserRateRefill float64 // Tokens per second

	// Conversation state
	ConversationTTL time.Duration

	// LINE channel (optional; both values enable it)
	LineChannelToken  string
	LineChannelSecret string

	// Sentry
	SentryDSN              string
	SentryEnvironment      string
	SentryRelease          string
	SentrySampleRate       float64
	SentryTracesSampleRate float64

	// Better Stack
	BetterStackToken    string
	BetterStackEndpoint string

	// Admin API Basic Auth (empty password disables admin routes)
	AdminUsername string
	AdminPassword string

	// Metrics Basic Auth (empty password = no auth)
	MetricsUsername string
	MetricsPassword string
}

// R2Config locates the remote catalog object.
type R2Config struct {
	Enabled         bool
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Key             string
	Endpoint        string // Overrides the account endpoint (S3-compatible stores)
}

// Load reads server configuration from environment variables.
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	return LoadForMode(ServerMode)
}

// LoadForMode reads configuration and validates it for the given mode.
func LoadForMode(mode ValidationMode) (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		PageAccessToken: getEnv(EnvPageAccessToken, ""),
		VerifyToken:     getEnv(EnvVerifyToken, ""),
		AppSecret:       getEnv(EnvAppSecret, ""),
		GraphAPIVersion: getEnv(EnvGraphAPIVersion, "v21.0"),
		GraphAPIBaseURL: strings.TrimRight(getEnv(EnvGraphAPIBaseURL, "https://graph.facebook.com"), "/"),

		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),

		DataDir:                getEnv(EnvDataDir, getDefaultDataDir()),
		JournalRetention:       getDurationEnv(EnvJournalRetention, 30*24*time.Hour),
		JournalCleanupSchedule: getEnv(EnvJournalCleanupSchedule, "0 4 * * *"),

		CatalogPath:         getEnv(EnvCatalogPath, ""),
		CatalogPollInterval: getDurationEnv(EnvCatalogPollInterval, 0),
		CatalogR2: R2Config{
			Enabled:         getBoolEnv(EnvCatalogR2Enabled, false),
			AccountID:       getEnv(EnvCatalogR2AccountID, ""),
			AccessKeyID:     getEnv(EnvCatalogR2AccessKeyID, ""),
			SecretAccessKey: getEnv(EnvCatalogR2SecretAccessKey, ""),
			BucketName:      getEnv(EnvCatalogR2BucketName, ""),
			Key:             getEnv(EnvCatalogR2Key, "catalog/catalog.yaml.zst"),
			Endpoint:        getEnv(EnvCatalogR2Endpoint, ""),
		},

		DeliveryTimeout: getDurationEnv(EnvDeliveryTimeout, DeliveryPerSend),
		DeliveryRPS:     getFloatEnv(EnvDeliveryRPS, 40),

		UserRateBurst:  getFloatEnv(EnvUserRateBurst, 10),
		UserRateRefill: getFloatEnv(EnvUserRateRefill, 0.5),

		ConversationTTL: getDurationEnv(EnvConversationTTL, 10*time.Minute),

		LineChannelToken:  getEnv(EnvLineChannelAccessToken, ""),
		LineChannelSecret: getEnv(EnvLineChannelSecret, ""),

		SentryDSN:              getEnv(EnvSentryDSN, ""),
		SentryEnvironment:      getEnv(EnvSentryEnvironment, "production"),
		SentryRelease:          getEnv(EnvSentryRelease, ""),
		SentrySampleRate:       getFloatEnv(EnvSentrySampleRate, 1.0),
		SentryTracesSampleRate: getFloatEnv(EnvSentryTracesSampleRate, 0),

		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),

		AdminUsername: getEnv(EnvAdminUsername, "admin"),
		AdminPassword: getEnv(EnvAdminPassword, ""),

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),
	}

	if err := cfg.ValidateForMode(mode); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for server mode.
func (c *Config) Validate() error {
	return c.ValidateForMode(ServerMode)
}

// ValidateForMode reports every problem at once. The result wraps
// ErrConfiguration so callers can tell it apart from runtime failures.
func (c *Config) ValidateForMode(mode ValidationMode) error {
	var errs []error

	switch mode {
	case ServerMode:
		errs = append(errs, c.validateMessenger(true)...)
		errs = append(errs, c.validateServer()...)
		if c.CatalogR2.Enabled {
			errs = append(errs, c.CatalogR2.validate()...)
		}
		if (c.LineChannelToken == "") != (c.LineChannelSecret == "") {
			errs = append(errs, fmt.Errorf("%s and %s must be set together", EnvLineChannelAccessToken, EnvLineChannelSecret))
		}
	case ProfileMode:
		errs = append(errs, c.validateMessenger(false)...)
	case PublishMode:
		errs = append(errs, c.CatalogR2.validate()...)
	case OfflineMode:
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domerrors.ErrConfiguration, errors.Join(errs...))
}

func (c *Config) validateMessenger(needVerifyToken bool) []error {
	var errs []error
	if c.PageAccessToken == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvPageAccessToken))
	}
	if needVerifyToken && c.VerifyToken == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvVerifyToken))
	}
	if !strings.HasPrefix(c.GraphAPIVersion, "v") {
		errs = append(errs, fmt.Errorf("%s must look like v21.0, got %q", EnvGraphAPIVersion, c.GraphAPIVersion))
	}
	if !strings.HasPrefix(c.GraphAPIBaseURL, "http://") && !strings.HasPrefix(c.GraphAPIBaseURL, "https://") {
		errs = append(errs, fmt.Errorf("%s must be an http(s) URL, got %q", EnvGraphAPIBaseURL, c.GraphAPIBaseURL))
	}
	return errs
}

func (c *Config) validateServer() []error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvPort))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvDataDir))
	}
	if c.DeliveryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvDeliveryTimeout, c.DeliveryTimeout))
	}
	if c.DeliveryRPS <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvDeliveryRPS, c.DeliveryRPS))
	}
	if c.UserRateBurst < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %v", EnvUserRateBurst, c.UserRateBurst))
	}
	if c.UserRateRefill <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvUserRateRefill, c.UserRateRefill))
	}
	if c.ConversationTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvConversationTTL, c.ConversationTTL))
	}
	if c.JournalRetention <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvJournalRetention, c.JournalRetention))
	}
	if _, err := cron.ParseStandard(c.JournalCleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("%s is not a valid cron expression: %w", EnvJournalCleanupSchedule, err))
	}
	if c.CatalogPollInterval < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %v", EnvCatalogPollInterval, c.CatalogPollInterval))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvShutdownTimeout, c.ShutdownTimeout))
	}
	if c.SentrySampleRate < 0 || c.SentrySampleRate > 1 {
		errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", EnvSentrySampleRate, c.SentrySampleRate))
	}
	return errs
}

func (r R2Config) validate() []error {
	var errs []error
	required := map[string]string{
		EnvCatalogR2AccessKeyID:     r.AccessKeyID,
		EnvCatalogR2SecretAccessKey: r.SecretAccessKey,
		EnvCatalogR2BucketName:      r.BucketName,
		EnvCatalogR2Key:             r.Key,
	}
	for _, key := range []string{EnvCatalogR2AccessKeyID, EnvCatalogR2SecretAccessKey, EnvCatalogR2BucketName, EnvCatalogR2Key} {
		if required[key] == "" {
			errs = append(errs, fmt.Errorf("%s is required for the R2 catalog source", key))
		}
	}
	if r.AccountID == "" && r.Endpoint == "" {
		errs = append(errs, fmt.Errorf("%s or %s is required for the R2 catalog source", EnvCatalogR2AccountID, EnvCatalogR2Endpoint))
	}
	return errs
}

// EndpointURL returns the S3 endpoint for the bucket.
func (r R2Config) EndpointURL() string {
	if r.Endpoint != "" {
		return r.Endpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.AccountID)
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "menubot.db")
}

// LINEEnabled reports whether the optional LINE channel is configured.
func (c *Config) LINEEnabled() bool {
	return c.LineChannelToken != "" && c.LineChannelSecret != ""
}

// SignatureCheckEnabled reports whether webhook payload signatures are verified.
func (c *Config) SignatureCheckEnabled() bool {
	return c.AppSecret != ""
}

// AdminEnabled reports whether admin routes are mounted.
func (c *Config) AdminEnabled() bool {
	return c.AdminPassword != ""
}

// SentryEnabled reports whether errors are reported to Sentry.
func (c *Config) SentryEnabled() bool {
	return c.SentryDSN != ""
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}
