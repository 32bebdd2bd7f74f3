// Package sentry wraps the Sentry Go SDK for error reporting.
// Any Sentry-compatible DSN works (Sentry, Better Stack Errors, GlitchTip).
package sentry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	domerrors "github.com/garyellow/menubot-go/internal/errors"
)

// Config holds Sentry configuration.
type Config struct {
	// DSN enables reporting when non-empty.
	DSN string

	// Environment identifies the deployment environment (e.g., "production", "staging").
	Environment string

	// Release identifies the application release version.
	Release string

	// SampleRate controls error sampling (0.0-1.0, default 1.0 = 100%).
	SampleRate float64

	// TracesSampleRate enables performance tracing when positive.
	TracesSampleRate float64

	// Debug enables Sentry SDK debug logging.
	Debug bool
}

// Initialize sets up the Sentry SDK. An empty DSN leaves Sentry disabled.
func Initialize(cfg Config) error {
	if cfg.DSN == "" {
		return nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	return nil
}

// scrubEvent drops platform user identifiers; sender ids must not leave the process.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	delete(event.Tags, "sender_id")
	delete(event.Extra, "sender_id")
	return event
}

// Flush waits for buffered events to be sent to the server.
// Returns true if all events were sent within the timeout.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// IsEnabled returns true if Sentry is initialized and active.
func IsEnabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// CaptureException captures an error and sends it to Sentry.
func CaptureException(err error) {
	sentry.CaptureException(err)
}

// CaptureExceptionWithContext captures an error using the request hub when present.
func CaptureExceptionWithContext(ctx context.Context, err error) {
	hubFromContext(ctx).CaptureException(err)
}

// CaptureDeliveryFailure reports a failed send tagged with channel and response.
func CaptureDeliveryFailure(ctx context.Context, err error) {
	if !IsEnabled() {
		return
	}
	hub := hubFromContext(ctx).Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		var de *domerrors.DeliveryError
		if errors.As(err, &de) {
			scope.SetTag("channel", de.Channel)
			scope.SetTag("response_id", de.ResponseID)
			if de.StatusCode > 0 {
				scope.SetTag("status_code", fmt.Sprint(de.StatusCode))
			}
		}
		scope.SetFingerprint([]string{"delivery-failure", "{{ default }}"})
		hub.CaptureException(err)
	})
}

// CaptureMessage captures a message and sends it to Sentry.
func CaptureMessage(message string) {
	sentry.CaptureMessage(message)
}

func hubFromContext(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}
