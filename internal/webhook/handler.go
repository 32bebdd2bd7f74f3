// Package webhook implements the Messenger webhook: the subscription
// handshake and event ingress.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyellow/menubot-go/internal/config"
	"github.com/garyellow/menubot-go/internal/ctxutil"
	"github.com/garyellow/menubot-go/internal/dispatch"
	"github.com/garyellow/menubot-go/internal/event"
	"github.com/garyellow/menubot-go/internal/logger"
	"github.com/garyellow/menubot-go/internal/messenger"
	"github.com/garyellow/menubot-go/internal/metrics"
)

const (
	// defaultMaxEvents caps events per delivery.
	defaultMaxEvents = 100

	channel = string(event.ChannelMessenger)
)

// Dispatcher handles one event to completion. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Handle(ctx context.Context, ev event.Event) dispatch.Result
}

// Handler serves GET and POST /webhook.
type Handler struct {
	verifyToken  string
	appSecret    string
	dispatcher   Dispatcher
	logger       *logger.Logger
	metrics      *metrics.Metrics
	wg           sync.WaitGroup // in-flight batches
	maxEvents    int
	batchTimeout time.Duration
	maxBodyBytes int64
}

// NewHandler creates a Messenger webhook handler.
func NewHandler(verifyToken string, d Dispatcher, log *logger.Logger, m *metrics.Metrics, opts ...HandlerOption) *Handler {
	h := &Handler{
		verifyToken:  verifyToken,
		dispatcher:   d,
		logger:       log.WithModule("webhook"),
		metrics:      m,
		maxEvents:    defaultMaxEvents,
		batchTimeout: config.WebhookBatchProcessing,
		maxBodyBytes: config.WebhookMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Verify answers the subscription handshake: the challenge is echoed back
// only for mode "subscribe" with a matching verify token.
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) == 1 {
		h.metrics.RecordWebhook(channel, "verify_ok")
		h.logger.Info("Webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}

	h.metrics.RecordWebhook(channel, "verify_denied")
	h.logger.WithField("mode", mode).Warn("Webhook verification denied")
	c.Status(http.StatusForbidden)
}

// Receive acknowledges a delivery and dispatches its events in the
// background. The 200 is written before any event is dispatched.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.RecordWebhook(channel, "too_large")
			h.logger.WithField("limit", h.maxBodyBytes).Warn("Webhook body too large")
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		h.metrics.RecordWebhook(channel, "bad_request")
		h.logger.WithError(err).Warn("Failed to read webhook body")
		c.Status(http.StatusBadRequest)
		return
	}

	if h.appSecret != "" {
		if err := messenger.VerifySignature(h.appSecret, body, c.GetHeader(messenger.SignatureHeader)); err != nil {
			h.metrics.RecordWebhook(channel, "bad_signature")
			h.logger.Warn("Invalid webhook signature")
			c.Status(http.StatusForbidden)
			return
		}
	}

	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		h.metrics.RecordWebhook(channel, "bad_request")
		h.logger.WithError(err).Warn("Malformed webhook body")
		c.Status(http.StatusBadRequest)
		return
	}

	if cb.Object != "page" {
		h.metrics.RecordWebhook(channel, "not_page")
		h.logger.WithField("object", cb.Object).Debug("Ignoring non-page webhook")
		c.Status(http.StatusNotFound)
		return
	}

	c.String(http.StatusOK, "EVENT_RECEIVED")
	h.metrics.RecordWebhook(channel, "ok")

	events := h.collect(cb)
	if len(events) == 0 {
		return
	}

	requestID, ok := ctxutil.GetRequestID(c.Request.Context())
	if !ok || requestID == "" {
		requestID = uuid.NewString()
	}
	start := time.Now()
	h.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.batchTimeout)
		defer cancel()
		ctx = ctxutil.WithRequestID(ctx, requestID)

		// Sequential so one sender's events keep their order.
		for _, ev := range events {
			h.handleEvent(ctx, ev)
		}

		h.metrics.RecordWebhookBatch(channel, time.Since(start).Seconds())
		h.logger.WithRequestID(requestID).
			WithField("events", len(events)).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Debug("Webhook batch processed")
	})
}

// handleEvent dispatches one event, recovering from panics so the rest of
// the batch still runs.
func (h *Handler) handleEvent(ctx context.Context, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithField("panic", r).
				WithField("stack", string(debug.Stack())).
				WithField("variant", string(ev.Variant)).
				ErrorContext(ctx, "Panic in async event processing")
		}
	}()
	h.dispatcher.Handle(ctx, ev)
}

// collect extracts user events from every messaging item of every entry.
func (h *Handler) collect(cb Callback) []event.Event {
	var events []event.Event
	for _, entry := range cb.Entry {
		for _, m := range entry.Messaging {
			ev, ok := toEvent(m)
			if !ok {
				continue
			}
			if err := ev.Validate(); err != nil {
				h.metrics.RecordEvent(channel, string(ev.Variant), "malformed")
				h.logger.WithError(err).WithField("entry_id", entry.ID).Warn("Dropping malformed messaging item")
				continue
			}
			events = append(events, ev)
		}
	}

	if len(events) > h.maxEvents {
		h.logger.WithField("event_count", len(events)).
			WithField("limit", h.maxEvents).
			Warn("Too many events in webhook batch; truncating")
		events = events[:h.maxEvents]
	}
	return events
}

// Shutdown waits for all async event processing to complete.
// It returns an error if the context is canceled before completion.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
