package line

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/garyellow/menubot-go/internal/config"
	"github.com/garyellow/menubot-go/internal/ctxutil"
	"github.com/garyellow/menubot-go/internal/dispatch"
	"github.com/garyellow/menubot-go/internal/event"
	"github.com/garyellow/menubot-go/internal/logger"
	"github.com/garyellow/menubot-go/internal/metrics"
)

// defaultFollowPayload is dispatched when a user adds the bot.
const defaultFollowPayload = "get_started"

// Dispatcher handles one event to completion. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Handle(ctx context.Context, ev event.Event) dispatch.Result
}

// HandlerConfig holds configuration for creating a new Handler
type HandlerConfig struct {
	ChannelSecret string
	Dispatcher    Dispatcher
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
	// FollowPayload returns the postback dispatched for follow events.
	// Defaults to "get_started".
	FollowPayload func() string
	MaxEvents     int
	BatchTimeout  time.Duration
}

// Handler serves POST /callback.
type Handler struct {
	channelSecret string
	dispatcher    Dispatcher
	logger        *logger.Logger
	metrics       *metrics.Metrics
	followPayload func() string
	maxEvents     int
	batchTimeout  time.Duration
	wg            sync.WaitGroup
}

// NewHandler creates a LINE webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		channelSecret: cfg.ChannelSecret,
		dispatcher:    cfg.Dispatcher,
		logger:        cfg.Logger.WithModule("line"),
		metrics:       cfg.Metrics,
		followPayload: cfg.FollowPayload,
		maxEvents:     cfg.MaxEvents,
		batchTimeout:  cfg.BatchTimeout,
	}
	if h.followPayload == nil {
		h.followPayload = func() string { return defaultFollowPayload }
	}
	if h.maxEvents <= 0 {
		h.maxEvents = 100
	}
	if h.batchTimeout <= 0 {
		h.batchTimeout = config.WebhookBatchProcessing
	}
	return h
}

// Handle is the Gin handler for the callback endpoint
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.metrics.RecordWebhook(channel, "bad_signature")
			h.logger.Warn("Invalid webhook signature")
		} else {
			h.metrics.RecordWebhook(channel, "bad_request")
			h.logger.WithError(err).Warn("Failed to parse webhook request")
		}
		c.Status(http.StatusBadRequest)
		return
	}

	// LINE expects a fast 200; events are dispatched afterwards.
	c.Status(http.StatusOK)
	h.metrics.RecordWebhook(channel, "ok")

	events := h.collect(cb.Events)
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

		for _, ev := range events {
			h.handleEvent(ctx, ev)
		}
		h.metrics.RecordWebhookBatch(channel, time.Since(start).Seconds())
	})
}

func (h *Handler) handleEvent(ctx context.Context, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithField("panic", r).
				WithField("stack", string(debug.Stack())).
				ErrorContext(ctx, "Panic in async event processing")
		}
	}()
	h.dispatcher.Handle(ctx, ev)
}

func (h *Handler) collect(raw []webhook.EventInterface) []event.Event {
	events := make([]event.Event, 0, len(raw))
	for _, e := range raw {
		ev, ok := h.toEvent(e)
		if !ok {
			continue
		}
		if err := ev.Validate(); err != nil {
			h.metrics.RecordEvent(channel, string(ev.Variant), "malformed")
			h.logger.WithError(err).Warn("Dropping malformed LINE event")
			continue
		}
		events = append(events, ev)
	}

	if len(events) > h.maxEvents {
		h.logger.WithField("event_count", len(events)).
			WithField("limit", h.maxEvents).
			Warn("Too many events in webhook batch; truncating")
		events = events[:h.maxEvents]
	}
	return events
}

// toEvent maps message, postback and follow events. Other event types are skipped.
func (h *Handler) toEvent(raw webhook.EventInterface) (event.Event, bool) {
	var (
		ev        event.Event
		source    webhook.SourceInterface
		timestamp int64
	)
	switch e := raw.(type) {
	case webhook.MessageEvent:
		source = e.Source
		sender := userID(source)
		if text, ok := e.Message.(webhook.TextMessageContent); ok {
			ev = event.NewText(event.ChannelLINE, sender, text.Text)
			ev.MessageID = text.Id
		} else {
			ev = event.NewAttachment(event.ChannelLINE, sender, event.Attachment{Type: e.Message.GetType()})
		}
		timestamp = e.Timestamp
	case webhook.PostbackEvent:
		data := ""
		if e.Postback != nil {
			data = e.Postback.Data
		}
		source = e.Source
		ev = event.NewPostback(event.ChannelLINE, userID(source), data)
		timestamp = e.Timestamp
	case webhook.FollowEvent:
		source = e.Source
		ev = event.NewPostback(event.ChannelLINE, userID(source), h.followPayload())
		timestamp = e.Timestamp
	default:
		h.logger.WithField("event_type", raw.GetType()).Debug("Unsupported event type")
		return event.Event{}, false
	}

	if chat := chatID(source); chat != "" && chat != ev.SenderID {
		ev.ReplyTo = chat
	}
	if timestamp > 0 {
		ev.Timestamp = time.UnixMilli(timestamp)
	}
	return ev, true
}

// userID returns the speaking user. Group and room sources omit it when
// the user has not consented to profile access; the chat id stands in.
func userID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		if s.UserId != "" {
			return s.UserId
		}
		return s.GroupId
	case webhook.RoomSource:
		if s.UserId != "" {
			return s.UserId
		}
		return s.RoomId
	}
	return ""
}

// chatID returns the reply target: the user for 1:1 chats, otherwise the group or room.
func chatID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.GroupId
	case webhook.RoomSource:
		return s.RoomId
	}
	return ""
}

// Shutdown waits for all async event processing to complete.
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
