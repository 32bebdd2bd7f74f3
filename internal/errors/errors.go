// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrConfiguration indicates a missing or invalid setting. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnknownResponse indicates a response id that the catalog does not define.
	ErrUnknownResponse = errors.New("unknown response")

	// ErrDanglingTrigger indicates a postback payload that no trigger handles.
	ErrDanglingTrigger = errors.New("dangling trigger reference")

	// ErrInvalidCatalog indicates a catalog entry with an invalid shape.
	ErrInvalidCatalog = errors.New("invalid catalog")

	// ErrDeliveryFailed indicates the messaging platform rejected or never received a send.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrMalformedEvent indicates an inbound event missing required fields.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// IntegrityKind classifies a catalog integrity defect.
type IntegrityKind string

// Integrity defect kinds reported by catalog validation.
const (
	KindUnknownResponse  IntegrityKind = "unknown_response"
	KindDanglingTrigger  IntegrityKind = "dangling_trigger"
	KindDuplicateKey     IntegrityKind = "duplicate_key"
	KindInvalidShape     IntegrityKind = "invalid_shape"
	KindMissingDefault   IntegrityKind = "missing_default"
	KindLimitExceeded    IntegrityKind = "limit_exceeded"
	KindInvalidReference IntegrityKind = "invalid_reference"
)

// IntegrityError describes one defect found while validating a catalog.
// Subject is the entry holding the reference and Ref is what it points at.
type IntegrityError struct {
	Kind    IntegrityKind
	Subject string
	Ref     string
	Detail  string
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Subject)
	if e.Ref != "" {
		msg += fmt.Sprintf(" -> %q", e.Ref)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap maps the defect kind onto the matching sentinel.
func (e *IntegrityError) Unwrap() error {
	switch e.Kind {
	case KindUnknownResponse:
		return ErrUnknownResponse
	case KindDanglingTrigger:
		return ErrDanglingTrigger
	default:
		return ErrInvalidCatalog
	}
}

// NewIntegrityError creates a new integrity error.
func NewIntegrityError(kind IntegrityKind, subject, ref, detail string) *IntegrityError {
	return &IntegrityError{
		Kind:    kind,
		Subject: subject,
		Ref:     ref,
		Detail:  detail,
	}
}

// IntegrityErrors returns every *IntegrityError inside err, walking joined
// and wrapped errors in order.
func IntegrityErrors(err error) []*IntegrityError {
	var out []*IntegrityError
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
		case *IntegrityError:
			out = append(out, e)
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(e.Unwrap())
		}
	}
	walk(err)
	return out
}

// DeliveryError represents a failed send to a messaging platform.
type DeliveryError struct {
	Channel    string
	ResponseID string
	StatusCode int
	Code       int // Platform-specific error code, 0 if unknown
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("deliver %s via %s (status=%d, code=%d): %v", e.ResponseID, e.Channel, e.StatusCode, e.Code, e.Err)
	}
	return fmt.Sprintf("deliver %s via %s: %v", e.ResponseID, e.Channel, e.Err)
}

// Unwrap returns both the cause and ErrDeliveryFailed so errors.Is works for either.
func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDeliveryFailed, e.Err}
}

// NewDeliveryError creates a new delivery error.
func NewDeliveryError(channel, responseID string, statusCode int, err error) *DeliveryError {
	return &DeliveryError{
		Channel:    channel,
		ResponseID: responseID,
		StatusCode: statusCode,
		Err:        err,
	}
}

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Unwrap reports validation failures as malformed events.
func (e *ValidationError) Unwrap() error {
	return ErrMalformedEvent
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
