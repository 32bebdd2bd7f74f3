package messenger

import (
	"encoding/hex"
	"errors"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"object":"page","entry":[]}`)
	valid := "sha256=" + hex.EncodeToString(Sign("app-secret", body))

	tests := []struct {
		name    string
		secret  string
		body    []byte
		header  string
		wantErr bool
	}{
		{"valid", "app-secret", body, valid, false},
		{"wrong secret", "other", body, valid, true},
		{"tampered body", "app-secret", []byte(`{"object":"user"}`), valid, true},
		{"missing prefix", "app-secret", body, hex.EncodeToString(Sign("app-secret", body)), true},
		{"sha1 header", "app-secret", body, "sha1=abcdef", true},
		{"not hex", "app-secret", body, "sha256=zz", true},
		{"empty", "app-secret", body, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := VerifySignature(tt.secret, tt.body, tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifySignature() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}
