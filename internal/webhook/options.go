package webhook

import "time"

// HandlerOption is a functional option for configuring Handler.
type HandlerOption func(*Handler)

// WithAppSecret enables X-Hub-Signature-256 verification.
func WithAppSecret(secret string) HandlerOption {
	return func(h *Handler) {
		h.appSecret = secret
	}
}

// WithMaxEvents caps the events dispatched from one delivery.
func WithMaxEvents(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxEvents = n
		}
	}
}

// WithBatchTimeout bounds processing of one delivery's events.
func WithBatchTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.batchTimeout = d
		}
	}
}

// WithMaxBodyBytes caps the request body size.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}
