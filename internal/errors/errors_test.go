package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIntegrityErrorUnwrap(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		kind   IntegrityKind
		target error
	}{
		{"unknown response", KindUnknownResponse, ErrUnknownResponse},
		{"dangling trigger", KindDanglingTrigger, ErrDanglingTrigger},
		{"duplicate key", KindDuplicateKey, ErrInvalidCatalog},
		{"missing default", KindMissingDefault, ErrInvalidCatalog},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := NewIntegrityError(tt.kind, "trigger chicken", "chicken-carousel", "")
			joined := errors.Join(errors.New("other"), err)
			if !errors.Is(joined, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false, want true", joined, tt.target)
			}
		})
	}
}

func TestIntegrityErrorMessage(t *testing.T) {
	t.Parallel()
	err := NewIntegrityError(KindDanglingTrigger, "response menu button 2", "pop-meals", "no trigger handles this payload")
	want := `dangling_trigger: response menu button 2 -> "pop-meals": no trigger handles this payload`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDeliveryErrorIs(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection reset")
	err := fmt.Errorf("send: %w", NewDeliveryError("messenger", "greeting-1", 502, cause))

	if !errors.Is(err, ErrDeliveryFailed) {
		t.Error("expected DeliveryError to match ErrDeliveryFailed")
	}
	if !errors.Is(err, cause) {
		t.Error("expected DeliveryError to match its cause")
	}

	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatal("expected errors.As to find DeliveryError")
	}
	if de.StatusCode != 502 {
		t.Errorf("StatusCode = %d, want 502", de.StatusCode)
	}
}

func TestValidationErrorIsMalformed(t *testing.T) {
	t.Parallel()
	err := NewValidationError("sender_id", "must not be empty")
	if !errors.Is(err, ErrMalformedEvent) {
		t.Error("expected ValidationError to match ErrMalformedEvent")
	}
	if got := err.Error(); got != "validation failed on sender_id: must not be empty" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIntegrityErrors(t *testing.T) {
	t.Parallel()

	a := NewIntegrityError(KindDuplicateKey, "trigger menu", "", "")
	b := NewIntegrityError(KindDanglingTrigger, "response menu", "gone", "")
	joined := fmt.Errorf("load catalog: %w", errors.Join(a, errors.New("plain"), b))

	got := IntegrityErrors(joined)
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("IntegrityErrors = %v, want [%v %v]", got, a, b)
	}
	if got := IntegrityErrors(errors.New("plain")); len(got) != 0 {
		t.Errorf("plain error yielded %v", got)
	}
	if got := IntegrityErrors(nil); got != nil {
		t.Errorf("nil error yielded %v", got)
	}
}
