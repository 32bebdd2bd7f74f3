package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/menubot-go/internal/catalog"
	"github.com/garyellow/menubot-go/internal/config"
	domerrors "github.com/garyellow/menubot-go/internal/errors"
	"github.com/garyellow/menubot-go/internal/messenger"
	"github.com/garyellow/menubot-go/internal/storage"
)

const (
	defaultFailureLimit = 50
	maxFailureLimit     = 500
)

type getStartedRequest struct {
	Payload string `json:"payload"`
}

type menuRequest struct {
	Items []catalog.Button `json:"items"`
}

type whitelistRequest struct {
	Domains []string `json:"domains"`
}

// bindOptionalJSON decodes the body into req; an empty body keeps req's zero value.
func bindOptionalJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func adminContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), config.AdminRequest)
}

// profileFailed answers a failed Graph API call.
func (a *Application) profileFailed(c *gin.Context, field string, err error) {
	a.logger.WithError(err).WithField("field", field).Error("Profile update failed")
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "field": field})
}

// unknownPayloads lists postback payloads with no trigger in the live catalog.
func (a *Application) unknownPayloads(payloads ...string) []string {
	cat := a.catalogs.Current()
	var unknown []string
	for _, p := range payloads {
		if _, ok := cat.Lookup(catalog.TriggerKey(p)); !ok {
			unknown = append(unknown, p)
		}
	}
	return unknown
}

// syncProfile pushes the catalog's whole profile section.
func (a *Application) syncProfile(c *gin.Context) {
	ctx, cancel := adminContext(c)
	defer cancel()

	p := a.catalogs.Current().Profile()
	if err := a.profile.ApplyProfile(ctx, p); err != nil {
		a.profileFailed(c, "profile", err)
		return
	}
	a.logger.Info("Messenger profile synced from catalog")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "profile": p})
}

func (a *Application) setGetStarted(c *gin.Context) {
	var req getStartedRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.Payload == "" {
		req.Payload = a.getStartedPayload()
	}
	if unknown := a.unknownPayloads(req.Payload); len(unknown) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "payload has no trigger", "unknown": unknown})
		return
	}

	ctx, cancel := adminContext(c)
	defer cancel()
	if err := a.profile.SetGetStarted(ctx, req.Payload); err != nil {
		a.profileFailed(c, messenger.FieldGetStarted, err)
		return
	}
	if greeting := a.catalogs.Current().Profile().Greeting; greeting != "" {
		if err := a.profile.SetGreeting(ctx, greeting); err != nil {
			a.profileFailed(c, messenger.FieldGreeting, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "payload": req.Payload})
}

func (a *Application) setPersistentMenu(c *gin.Context) {
	var req menuRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if len(req.Items) == 0 {
		req.Items = a.catalogs.Current().Profile().PersistentMenu
	}
	if len(req.Items) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no persistent menu items in request or catalog"})
		return
	}

	var payloads []string
	for _, item := range req.Items {
		if item.Action == catalog.ActionPostback {
			payloads = append(payloads, item.Payload)
		}
	}
	if unknown := a.unknownPayloads(payloads...); len(unknown) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "menu payloads have no trigger", "unknown": unknown})
		return
	}

	ctx, cancel := adminContext(c)
	defer cancel()
	if err := a.profile.SetPersistentMenu(ctx, req.Items); err != nil {
		a.profileFailed(c, messenger.FieldPersistentMenu, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "items": len(req.Items)})
}

func (a *Application) setWhitelist(c *gin.Context) {
	var req whitelistRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if len(req.Domains) == 0 {
		req.Domains = a.catalogs.Current().Profile().WhitelistedDomains
	}
	if len(req.Domains) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no domains in request or catalog"})
		return
	}

	ctx, cancel := adminContext(c)
	defer cancel()
	if err := a.profile.SetWhitelistedDomains(ctx, req.Domains); err != nil {
		a.profileFailed(c, messenger.FieldWhitelistedDomains, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "domains": req.Domains})
}

// clearProfile deletes profile fields: ?fields=a,b or every managed field.
func (a *Application) clearProfile(c *gin.Context) {
	var fields []string
	if raw := c.Query("fields"); raw != "" {
		for f := range strings.SplitSeq(raw, ",") {
			f = strings.TrimSpace(f)
			if !slices.Contains(messenger.AllProfileFields, f) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown profile field", "field": f})
				return
			}
			fields = append(fields, f)
		}
	}

	ctx, cancel := adminContext(c)
	defer cancel()
	if err := a.profile.DeleteProfileFields(ctx, fields...); err != nil {
		a.profileFailed(c, "delete", err)
		return
	}
	if len(fields) == 0 {
		fields = messenger.AllProfileFields
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "cleared": fields})
}

func (a *Application) reloadCatalog(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.CatalogFetch)
	defer cancel()

	cat, changed, err := a.catalogs.Reload(ctx)
	if err != nil {
		defects := domerrors.IntegrityErrors(err)
		if len(defects) == 0 {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   err.Error(),
				"version": a.catalogs.Current().Version(),
			})
			return
		}
		msgs := make([]string, len(defects))
		for i, d := range defects {
			msgs[i] = d.Error()
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "catalog rejected; previous catalog stays live",
			"defects": msgs,
			"version": a.catalogs.Current().Version(),
		})
		return
	}

	a.recordGauges()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   cat.Version(),
		"changed":   changed,
		"triggers":  len(cat.Triggers()),
		"responses": len(cat.Responses()),
	})
}

func (a *Application) recentFailures(c *gin.Context) {
	limit := defaultFailureLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxFailureLimit)
	}

	ctx := c.Request.Context()
	failures, err := a.db.RecentFailures(ctx, limit)
	if err != nil {
		a.logger.WithError(err).Error("Failed to read delivery failures")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
		return
	}
	total, err := a.db.CountDeliveries(ctx, storage.StatusFailed)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to count delivery failures")
	}
	if failures == nil {
		failures = []storage.Delivery{}
	}
	c.JSON(http.StatusOK, gin.H{"failures": failures, "total_failed": total})
}
