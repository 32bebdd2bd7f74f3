// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/garyellow/menubot-go/internal/buildinfo"
	"github.com/garyellow/menubot-go/internal/catalog"
	"github.com/garyellow/menubot-go/internal/config"
	"github.com/garyellow/menubot-go/internal/conversation"
	"github.com/garyellow/menubot-go/internal/dispatch"
	"github.com/garyellow/menubot-go/internal/event"
	"github.com/garyellow/menubot-go/internal/line"
	"github.com/garyellow/menubot-go/internal/logger"
	"github.com/garyellow/menubot-go/internal/messenger"
	"github.com/garyellow/menubot-go/internal/metrics"
	"github.com/garyellow/menubot-go/internal/r2client"
	"github.com/garyellow/menubot-go/internal/ratelimit"
	"github.com/garyellow/menubot-go/internal/sentry"
	"github.com/garyellow/menubot-go/internal/storage"
	"github.com/garyellow/menubot-go/internal/webhook"
)

// profileAPI is the part of *messenger.Client used by the admin routes.
type profileAPI interface {
	SetGetStarted(ctx context.Context, payload string) error
	SetGreeting(ctx context.Context, text string) error
	SetPersistentMenu(ctx context.Context, items []catalog.Button) error
	SetWhitelistedDomains(ctx context.Context, domains []string) error
	DeleteProfileFields(ctx context.Context, fields ...string) error
	ApplyProfile(ctx context.Context, p catalog.Profile) error
}

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg            *config.Config
	logger         *logger.Logger
	db             *storage.DB
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	catalogs       *catalog.Store
	catalogSource  catalog.Source
	dispatcher     *dispatch.Dispatcher
	conversations  *conversation.Store
	userLimiter    *ratelimit.KeyedLimiter
	profile        profileAPI
	webhookHandler *webhook.Handler
	lineHandler    *line.Handler // nil when LINE is not configured
	router         *gin.Engine
	server         *http.Server
	wg             sync.WaitGroup // Track background goroutines for graceful shutdown
}

// Initialize creates and initializes a new application with all dependencies.
// A configuration problem or an unloadable catalog is fatal.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})

	log = log.WithField("service", "menubot-go")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Set as default logger so package-level slog.*Context() calls pick up
	// sender, channel and request ids through ContextHandler.
	slog.SetDefault(log.Logger)

	log.WithField("version", buildinfo.String()).Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		Release:          releaseName(cfg),
		SampleRate:       cfg.SentrySampleRate,
		TracesSampleRate: cfg.SentryTracesSampleRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed; continuing without error reporting")
	} else if cfg.SentryEnabled() {
		log.WithField("environment", cfg.SentryEnvironment).Info("Sentry error reporting enabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	db, err := storage.New(ctx, cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	source, err := newCatalogSource(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog source: %w", err)
	}
	catalogs := catalog.NewStore(source, log, m)
	loadCtx, cancel := context.WithTimeout(ctx, config.CatalogFetch)
	err = catalogs.Load(loadCtx)
	cancel()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: %w", err)
	}

	client, err := messenger.New(messenger.Config{
		BaseURL:         cfg.GraphAPIBaseURL,
		Version:         cfg.GraphAPIVersion,
		PageAccessToken: cfg.PageAccessToken,
		AppSecret:       cfg.AppSecret,
		RPS:             cfg.DeliveryRPS,
		Logger:          log,
		Metrics:         m,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("messenger: %w", err)
	}

	router := dispatch.NewRouter()
	router.Register(event.ChannelMessenger, client)
	if cfg.LINEEnabled() {
		gw, err := line.NewGateway(cfg.LineChannelToken, log)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("line: %w", err)
		}
		router.Register(event.ChannelLINE, gw)
	}

	userLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "sender",
		Burst:         cfg.UserRateBurst,
		RefillRate:    cfg.UserRateRefill,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})
	conversations := conversation.NewStore(cfg.ConversationTTL)

	dispatcher := dispatch.New(dispatch.Config{
		Catalog:         catalogs,
		Gateway:         router,
		Conversations:   conversations,
		Limiter:         userLimiter,
		Journal:         db,
		DeliveryTimeout: cfg.DeliveryTimeout,
		Logger:          log,
		Metrics:         m,
	})

	webhookOpts := []webhook.HandlerOption{}
	if cfg.SignatureCheckEnabled() {
		webhookOpts = append(webhookOpts, webhook.WithAppSecret(cfg.AppSecret))
		log.Info("Webhook signature verification enabled")
	}
	webhookHandler := webhook.NewHandler(cfg.VerifyToken, dispatcher, log, m, webhookOpts...)

	app := &Application{
		cfg:            cfg,
		logger:         log,
		db:             db,
		metrics:        m,
		registry:       registry,
		catalogs:       catalogs,
		catalogSource:  source,
		dispatcher:     dispatcher,
		conversations:  conversations,
		userLimiter:    userLimiter,
		profile:        client,
		webhookHandler: webhookHandler,
	}

	if cfg.LINEEnabled() {
		app.lineHandler = line.NewHandler(line.HandlerConfig{
			ChannelSecret: cfg.LineChannelSecret,
			Dispatcher:    dispatcher,
			Logger:        log,
			Metrics:       m,
			FollowPayload: app.getStartedPayload,
		})
		log.Info("LINE channel enabled")
	}

	app.router = app.newRouter()
	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadHeaderTimeout: config.WebhookHTTPRead,
		ReadTimeout:       config.WebhookHTTPRead,
		WriteTimeout:      config.WebhookHTTPWrite,
		IdleTimeout:       config.WebhookHTTPIdle,
	}

	app.recordGauges()
	log.WithField("catalog_version", catalogs.Current().Version()).
		WithField("catalog_source", source.Name()).
		Info("Initialization complete")
	return app, nil
}

// newCatalogSource picks R2, then a local file, then the embedded catalog.
func newCatalogSource(ctx context.Context, cfg *config.Config) (catalog.Source, error) {
	switch {
	case cfg.CatalogR2.Enabled:
		client, err := r2client.New(ctx, r2client.Config{
			Endpoint:    cfg.CatalogR2.EndpointURL(),
			AccessKeyID: cfg.CatalogR2.AccessKeyID,
			SecretKey:   cfg.CatalogR2.SecretAccessKey,
			BucketName:  cfg.CatalogR2.BucketName,
		})
		if err != nil {
			return nil, err
		}
		return catalog.R2Source{Store: client, Key: cfg.CatalogR2.Key}, nil
	case cfg.CatalogPath != "":
		return catalog.FileSource{Path: cfg.CatalogPath}, nil
	default:
		return catalog.EmbeddedSource{}, nil
	}
}

func releaseName(cfg *config.Config) string {
	if cfg.SentryRelease != "" {
		return cfg.SentryRelease
	}
	if buildinfo.Version != "" {
		return "menubot-go@" + buildinfo.Version
	}
	return ""
}

// getStartedPayload is the live catalog's get-started payload.
func (a *Application) getStartedPayload() string {
	if c := a.catalogs.Current(); c != nil && c.Profile().GetStarted != "" {
		return c.Profile().GetStarted
	}
	return "get_started"
}

// Handler returns the HTTP handler serving every route.
func (a *Application) Handler() http.Handler {
	return a.router
}

// Run starts the HTTP server and background jobs.
//
// Graceful shutdown sequence:
//  1. Receive shutdown signal (SIGINT/SIGTERM)
//  2. Cancel context so background jobs stop
//  3. Wait for background jobs to complete
//  4. Stop the HTTP server, drain in-flight webhook batches, then close
//     the database (the journal is written until the last batch ends)
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	serverErr := a.startHTTPServer()

	select {
	case sig := <-a.waitForShutdownSignal():
		a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErr:
		a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
	}

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startHTTPServer starts the HTTP server in a goroutine. The returned
// channel receives an error if the server fails to serve.
func (a *Application) startHTTPServer() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

// waitForShutdownSignal delivers SIGINT/SIGTERM.
func (a *Application) waitForShutdownSignal() <-chan os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return quit
}

// shutdown performs graceful shutdown of HTTP server and resources.
// It must run after background jobs have stopped.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Waiting for webhook events to complete...")
	if err := a.webhookHandler.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Webhook handler shutdown timeout")
	}
	if a.lineHandler != nil {
		if err := a.lineHandler.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("LINE handler shutdown timeout")
		}
	}

	a.logger.Info("Closing resources...")
	a.userLimiter.Stop()

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}

	if sentry.IsEnabled() && !sentry.Flush(5*time.Second) {
		a.logger.Warn("Sentry flush timed out")
	}

	a.logger.Info("Shutdown complete")
	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown: %v\n", err)
	}
	return nil
}
