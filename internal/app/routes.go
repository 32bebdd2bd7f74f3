package app

import (
	"context"
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyellow/menubot-go/internal/buildinfo"
	"github.com/garyellow/menubot-go/internal/config"
	"github.com/garyellow/menubot-go/internal/sentry"
)

func (a *Application) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if sentry.IsEnabled() {
		// Repanic hands the panic back to gin.Recovery after capture.
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true, Timeout: 2 * time.Second}))
	}
	router.Use(securityHeadersMiddleware())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(a.logger))

	router.GET("/", a.info)
	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)

	router.GET("/webhook", a.webhookHandler.Verify)
	router.POST("/webhook", a.webhookHandler.Receive)
	if a.lineHandler != nil {
		router.POST("/callback", a.lineHandler.Handle)
	}

	router.GET("/metrics",
		basicAuthMiddleware("metrics", a.cfg.MetricsPassword != "", a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	if a.cfg.AdminEnabled() {
		admin := router.Group("/admin", basicAuthMiddleware("admin", true, a.cfg.AdminUsername, a.cfg.AdminPassword))
		admin.POST("/profile/sync", a.syncProfile)
		admin.POST("/profile/get-started", a.setGetStarted)
		admin.POST("/profile/persistent-menu", a.setPersistentMenu)
		admin.POST("/profile/whitelist", a.setWhitelist)
		admin.DELETE("/profile", a.clearProfile)
		admin.POST("/catalog/reload", a.reloadCatalog)
		admin.GET("/deliveries/failures", a.recentFailures)
	}

	return router
}

func (a *Application) info(c *gin.Context) {
	cat := a.catalogs.Current()
	c.JSON(http.StatusOK, gin.H{
		"service":         "menubot-go",
		"version":         buildinfo.String(),
		"catalog_version": cat.Version(),
		"channels":        a.channels(),
	})
}

func (a *Application) channels() []string {
	channels := []string{"messenger"}
	if a.lineHandler != nil {
		channels = append(channels, "line")
	}
	return channels
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheckTimeout)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: database unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}

	cat := a.catalogs.Current()
	if cat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "catalog not loaded",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"database": "connected",
		"catalog": gin.H{
			"version":   cat.Version(),
			"source":    a.catalogSource.Name(),
			"triggers":  len(cat.Triggers()),
			"responses": len(cat.Responses()),
			"loaded_at": a.catalogs.LoadedAt().UTC().Format(time.RFC3339),
		},
		"conversations": a.conversations.Len(),
		"channels":      a.channels(),
	})
}
