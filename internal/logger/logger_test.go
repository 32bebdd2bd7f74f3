package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/garyellow/menubot-go/internal/ctxutil"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if i := strings.LastIndex(line, "\n"); i >= 0 {
		line = line[i+1:]
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	return entry
}

func TestNewWithWriter_Levels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"warning", false, false, true},
		{"error", false, false, false},
		{"bogus", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			t.Parallel()
			log := NewWithWriter(tt.level, &bytes.Buffer{})
			ctx := context.Background()
			if got := log.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := log.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := log.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestLogger_JSONShape(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)
	log.Warn("catalog reloaded")

	entry := decodeLine(t, &buf)
	if entry["message"] != "catalog reloaded" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "warning" {
		t.Errorf("level = %v, want warning", entry["level"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp key missing")
	}
}

func TestLogger_FieldHelpers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf).
		WithModule("dispatch").
		WithRequestID("req-1").
		WithError(errors.New("boom")).
		WithField("response_id", "greeting-1").
		WithFields(map[string]any{"attempt": 2})
	log.Debugf("sending %d of %d", 1, 4)

	entry := decodeLine(t, &buf)
	checks := map[string]any{
		"module":      "dispatch",
		"request_id":  "req-1",
		"error":       "boom",
		"response_id": "greeting-1",
		"attempt":     float64(2),
		"message":     "sending 1 of 4",
	}
	for k, want := range checks {
		if entry[k] != want {
			t.Errorf("%s = %v, want %v", k, entry[k], want)
		}
	}
}

func TestLogger_ContextValues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)
	ctx := ctxutil.WithSenderID(context.Background(), "psid-7")
	ctx = ctxutil.WithChannel(ctx, "messenger")
	log.InfoContext(ctx, "handled")

	entry := decodeLine(t, &buf)
	if entry["sender_id"] != "psid-7" || entry["channel"] != "messenger" {
		t.Errorf("context fields missing: %v", entry)
	}
}

func TestLogger_SetLevelPropagates(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	root := NewWithWriter("info", &buf)
	child := root.WithModule("webhook")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level: %s", buf.String())
	}

	root.SetLevel("debug")
	if root.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", root.Level())
	}
	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("child logger should follow root level change: %s", buf.String())
	}
}

func TestLogger_ShutdownWithoutRemote(t *testing.T) {
	t.Parallel()

	log := NewWithWriter("info", &bytes.Buffer{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := log.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() = %v, want nil", err)
	}
}

func TestNewWithOptions_RemoteDoesNotBlockLocal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithOptions("info", &buf, Options{
		BetterStackToken:    "test-token",
		BetterStackEndpoint: "http://127.0.0.1:1",
		Async:               AsyncOptions{BufferSize: 4, FlushTimeout: 50 * time.Millisecond},
	})
	log.Info("local copy")

	if !strings.Contains(buf.String(), "local copy") {
		t.Errorf("local sink missing record: %s", buf.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = log.Shutdown(ctx)
}
