// Package dispatch maps inbound events to catalog triggers and delivers the
// resulting responses in order through a channel gateway.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/garyellow/menubot-go/internal/catalog"
	"github.com/garyellow/menubot-go/internal/config"
	"github.com/garyellow/menubot-go/internal/conversation"
	"github.com/garyellow/menubot-go/internal/ctxutil"
	domerrors "github.com/garyellow/menubot-go/internal/errors"
	"github.com/garyellow/menubot-go/internal/event"
	"github.com/garyellow/menubot-go/internal/logger"
	"github.com/garyellow/menubot-go/internal/metrics"
	"github.com/garyellow/menubot-go/internal/ratelimit"
	"github.com/garyellow/menubot-go/internal/sentry"
	"github.com/garyellow/menubot-go/internal/storage"
)

// Outcome classifies how an event was handled.
type Outcome string

// Dispatch outcomes, also used as metric labels.
const (
	OutcomeMatched  Outcome = "matched"
	OutcomeFallback Outcome = "fallback"
	OutcomeCaptured Outcome = "captured"
	OutcomeInvalid  Outcome = "invalid_input"
	OutcomeDropped  Outcome = "dropped"
)

// DeliveryOutcome is the result of one send.
type DeliveryOutcome struct {
	ResponseID catalog.ResponseID
	Err        error
	Duration   time.Duration
}

// Result describes what Handle did with one event.
type Result struct {
	Outcome    Outcome
	Trigger    catalog.TriggerKey
	Reason     string // why the event was dropped
	Deliveries []DeliveryOutcome
}

// Failed returns the number of failed deliveries.
func (r Result) Failed() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// Config holds dependencies for a Dispatcher.
// Journal and Limiter are optional.
type Config struct {
	Catalog         CatalogSource
	Gateway         Gateway
	Conversations   *conversation.Store
	Limiter         *ratelimit.KeyedLimiter
	Journal         Journal
	DeliveryTimeout time.Duration
	Logger          *logger.Logger
	Metrics         *metrics.Metrics
}

// Dispatcher turns events into ordered deliveries. It holds no global
// state; conversation state belongs to its own Store.
type Dispatcher struct {
	catalog         CatalogSource
	gateway         Gateway
	conversations   *conversation.Store
	limiter         *ratelimit.KeyedLimiter
	journal         Journal
	deliveryTimeout time.Duration
	logger          *logger.Logger
	metrics         *metrics.Metrics
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	timeout := cfg.DeliveryTimeout
	if timeout <= 0 {
		timeout = config.DeliveryPerSend
	}
	convs := cfg.Conversations
	if convs == nil {
		convs = conversation.NewStore(0)
	}
	return &Dispatcher{
		catalog:         cfg.Catalog,
		gateway:         cfg.Gateway,
		conversations:   convs,
		limiter:         cfg.Limiter,
		journal:         cfg.Journal,
		deliveryTimeout: timeout,
		logger:          cfg.Logger.WithModule("dispatch"),
		metrics:         cfg.Metrics,
	}
}

// Conversations exposes the dispatcher's conversation store.
func (d *Dispatcher) Conversations() *conversation.Store {
	return d.conversations
}

// plan is the routing decision for one event.
type plan struct {
	key       catalog.TriggerKey
	trigger   *catalog.Trigger // nil when replying to invalid capture input
	responses []catalog.ResponseID
	vars      map[string]string
	outcome   Outcome
}

// Handle processes one event to completion. Deliveries run sequentially;
// each is awaited before the next starts. Failures are logged and never
// abort the remaining sends.
func (d *Dispatcher) Handle(ctx context.Context, ev event.Event) Result {
	ch := string(ev.Channel)
	ctx = ctxutil.WithChannel(ctx, ch)
	ctx = ctxutil.WithSenderID(ctx, ev.SenderID)
	log := d.logger.WithField("variant", string(ev.Variant))

	if err := ev.Validate(); err != nil {
		log.WithError(err).Warn("Dropping malformed event")
		return d.drop(ev, "malformed")
	}

	if ev.Variant == event.VariantAttachment {
		log.WithField("attachments", len(ev.Attachments)).Info("Attachment received; nothing to dispatch")
		return d.drop(ev, "attachment")
	}

	from := ev.From()
	if d.limiter != nil && !d.limiter.Allow(ch+":"+ev.SenderID) {
		log.Warn("Sender rate limit exceeded; dropping event")
		return d.drop(ev, "rate_limited")
	}

	cat := d.catalog.Current()
	if cat == nil {
		log.Error("No catalog loaded; dropping event")
		return d.drop(ev, "no_catalog")
	}

	d.metrics.RecordEvent(ch, string(ev.Variant), "accepted")

	p := d.route(cat, ev)
	ctx = ctxutil.WithTrigger(ctx, string(p.key))
	d.metrics.RecordDispatch(ch, string(p.outcome))

	res := Result{Outcome: p.outcome, Trigger: p.key}
	to := ev.ReplyTarget()
	for _, id := range p.responses {
		res.Deliveries = append(res.Deliveries, d.deliver(ctx, cat, to, p, id))
	}

	if p.trigger != nil && p.trigger.Capture != nil {
		// Open only when the prompt, the last response, reached the user.
		if n := len(res.Deliveries); n > 0 && res.Deliveries[n-1].Err == nil {
			d.conversations.Set(from, p.trigger.Key, *p.trigger.Capture)
			log.WithField("capture", p.trigger.Capture.Name).Debug("Capture opened")
		} else {
			log.WithField("capture", p.trigger.Capture.Name).Warn("Capture not opened: prompt was not delivered")
		}
	}

	log.WithField("trigger", string(p.key)).
		WithField("outcome", string(p.outcome)).
		WithField("responses", len(p.responses)).
		WithField("failed", res.Failed()).
		InfoContext(ctx, "Event dispatched")
	return res
}

func (d *Dispatcher) drop(ev event.Event, reason string) Result {
	d.metrics.RecordEvent(string(ev.Channel), string(ev.Variant), reason)
	d.metrics.RecordDispatch(string(ev.Channel), string(OutcomeDropped))
	return Result{Outcome: OutcomeDropped, Reason: reason}
}

func (d *Dispatcher) route(cat *catalog.Catalog, ev event.Event) plan {
	from := ev.From()

	if ev.IsSelection() {
		if d.conversations.Clear(from) {
			d.logger.Debug("Capture cleared by selection")
		}
		if t, ok := cat.Lookup(catalog.TriggerKey(ev.Payload)); ok {
			return matched(t)
		}
		return fallback(cat)
	}

	// A known key always wins over an open capture.
	if t, ok := cat.LookupText(ev.Text); ok {
		if d.conversations.Clear(from) {
			d.logger.WithField("trigger", string(t.Key)).Debug("Capture cancelled by trigger text")
		}
		return matched(t)
	}

	if pending, ok := d.conversations.Get(from); ok {
		return d.routeCapture(cat, from, pending, strings.TrimSpace(ev.Text))
	}

	return fallback(cat)
}

func (d *Dispatcher) routeCapture(cat *catalog.Catalog, from event.Recipient, pending conversation.Pending, input string) plan {
	c := pending.Capture
	if !c.Matches(input) {
		responses := cat.Default().Responses
		if c.Invalid != "" {
			if _, err := cat.Resolve(c.Invalid); err == nil {
				responses = []catalog.ResponseID{c.Invalid}
			}
		}
		return plan{key: pending.Trigger, responses: responses, outcome: OutcomeInvalid}
	}

	d.conversations.Clear(from)
	t, ok := cat.Lookup(c.Then)
	if !ok {
		// The catalog changed under an open capture.
		d.logger.WithField("then", string(c.Then)).Warn("Capture target no longer exists; using fallback")
		return fallback(cat)
	}
	p := matched(t)
	p.vars = map[string]string{c.Name: input}
	p.outcome = OutcomeCaptured
	return p
}

func matched(t *catalog.Trigger) plan {
	return plan{key: t.Key, trigger: t, responses: t.Responses, outcome: OutcomeMatched}
}

func fallback(cat *catalog.Catalog) plan {
	t := cat.Default()
	return plan{key: t.Key, trigger: t, responses: t.Responses, outcome: OutcomeFallback}
}

func (d *Dispatcher) deliver(ctx context.Context, cat *catalog.Catalog, to event.Recipient, p plan, id catalog.ResponseID) DeliveryOutcome {
	start := time.Now()
	out := DeliveryOutcome{ResponseID: id}
	kind := "unknown"

	resp, err := cat.Resolve(id)
	if err == nil {
		kind = string(resp.Kind)
		sendCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
		err = d.gateway.Send(sendCtx, to, catalog.Render(resp, p.vars))
		cancel()
	}
	out.Duration = time.Since(start)
	out.Err = err

	status := storage.StatusDelivered
	if err != nil {
		status = storage.StatusFailed
		var de *domerrors.DeliveryError
		if !errors.As(err, &de) {
			err = domerrors.NewDeliveryError(string(to.Channel), string(id), 0, err)
			out.Err = err
		}
		d.logger.WithError(err).
			WithField("response_id", string(id)).
			WithField("duration_ms", out.Duration.Milliseconds()).
			Error("Delivery failed")
		sentry.CaptureDeliveryFailure(ctx, err)
	}
	d.metrics.RecordDelivery(string(to.Channel), kind, status, out.Duration.Seconds())

	if d.journal != nil {
		requestID, _ := ctxutil.GetRequestID(ctx)
		rec := storage.Delivery{
			RequestID:  requestID,
			Channel:    string(to.Channel),
			Recipient:  to.ID,
			Trigger:    string(p.key),
			ResponseID: string(id),
			Status:     status,
			Duration:   out.Duration,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if jerr := d.journal.RecordDelivery(context.WithoutCancel(ctx), rec); jerr != nil {
			d.logger.WithError(jerr).Warn("Failed to journal delivery")
		}
	}

	return out
}
