package webhook

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/garyellow/menubot-go/internal/ctxutil"
	"github.com/garyellow/menubot-go/internal/dispatch"
	"github.com/garyellow/menubot-go/internal/event"
	"github.com/garyellow/menubot-go/internal/logger"
	"github.com/garyellow/menubot-go/internal/messenger"
	"github.com/garyellow/menubot-go/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingDispatcher stores every event it receives.
type recordingDispatcher struct {
	mu         sync.Mutex
	events     []event.Event
	requestIDs []string
	block      chan struct{}
	panicOn    string
}

func (d *recordingDispatcher) Handle(ctx context.Context, ev event.Event) dispatch.Result {
	if d.block != nil {
		<-d.block
	}
	if d.panicOn != "" && ev.Text == d.panicOn {
		panic("boom")
	}
	id, _ := ctxutil.GetRequestID(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	d.requestIDs = append(d.requestIDs, id)
	return dispatch.Result{Outcome: dispatch.OutcomeMatched}
}

func (d *recordingDispatcher) snapshot() []event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]event.Event(nil), d.events...)
}

func setupTestHandler(t *testing.T, opts ...HandlerOption) (*Handler, *recordingDispatcher, *gin.Engine) {
	t.Helper()
	d := &recordingDispatcher{}
	m := metrics.New(prometheus.NewRegistry())
	h := NewHandler("verify-me", d, logger.NewWithWriter("error", io.Discard), m, opts...)

	router := gin.New()
	router.GET("/webhook", h.Verify)
	router.POST("/webhook", h.Receive)
	return h, d, router
}

func post(router *gin.Engine, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func drain(t *testing.T, h *Handler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", http.StatusOK, "1158201444"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=1", http.StatusForbidden, ""},
		{"missing params", "", http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, router := setupTestHandler(t)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

const twoEntries = `{
  "object": "page",
  "entry": [
    {"id": "page-1", "time": 1700000000000, "messaging": [
      {"sender": {"id": "u1"}, "recipient": {"id": "page-1"}, "timestamp": 1700000000000,
       "message": {"mid": "m1", "text": "Chicken"}},
      {"sender": {"id": "u1"}, "recipient": {"id": "page-1"}, "timestamp": 1700000000001,
       "message": {"mid": "m2", "text": "Pop meals", "quick_reply": {"payload": "pop-meals"}}}
    ]},
    {"id": "page-1", "time": 1700000000002, "messaging": [
      {"sender": {"id": "u2"}, "recipient": {"id": "page-1"}, "timestamp": 1700000000002,
       "postback": {"title": "Get Started", "payload": "get_started"}},
      {"sender": {"id": "u2"}, "recipient": {"id": "page-1"}, "timestamp": 1700000000003,
       "message": {"mid": "m3", "attachments": [{"type": "image", "payload": {"url": "https://x.example/a.jpg"}}]}}
    ]}
  ]
}`

func TestReceive_DispatchesEveryMessagingItem(t *testing.T) {
	t.Parallel()
	h, d, router := setupTestHandler(t)

	w := post(router, twoEntries)
	if w.Code != http.StatusOK || w.Body.String() != "EVENT_RECEIVED" {
		t.Fatalf("got %d %q, want 200 EVENT_RECEIVED", w.Code, w.Body.String())
	}
	drain(t, h)

	got := d.snapshot()
	if len(got) != 4 {
		t.Fatalf("dispatched %d events, want 4", len(got))
	}

	want := []struct {
		variant event.Variant
		sender  string
		key     string
	}{
		{event.VariantText, "u1", "Chicken"},
		{event.VariantQuickReply, "u1", "pop-meals"},
		{event.VariantPostback, "u2", "get_started"},
		{event.VariantAttachment, "u2", ""},
	}
	for i, w := range want {
		if got[i].Variant != w.variant || got[i].SenderID != w.sender || got[i].Key() != w.key {
			t.Errorf("event %d = %+v, want %+v", i, got[i], w)
		}
		if got[i].Channel != event.ChannelMessenger {
			t.Errorf("event %d channel = %q", i, got[i].Channel)
		}
	}
	if got[0].MessageID != "m1" || got[0].Timestamp.UnixMilli() != 1700000000000 {
		t.Errorf("metadata not carried: %+v", got[0])
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.requestIDs[0] == "" || d.requestIDs[0] != d.requestIDs[3] {
		t.Errorf("batch should share one request id: %v", d.requestIDs)
	}
}

func TestReceive_AcknowledgesBeforeDispatch(t *testing.T) {
	t.Parallel()
	h, d, router := setupTestHandler(t)
	d.block = make(chan struct{})

	w := post(router, twoEntries)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if n := len(d.snapshot()); n != 0 {
		t.Fatalf("dispatched %d events before acknowledgement", n)
	}

	close(d.block)
	drain(t, h)
	if n := len(d.snapshot()); n != 4 {
		t.Errorf("dispatched %d events, want 4", n)
	}
}

func TestReceive_StatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not a page", `{"object":"instagram","entry":[]}`, http.StatusNotFound},
		{"malformed json", `{"object":`, http.StatusBadRequest},
		{"empty page batch", `{"object":"page","entry":[]}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, d, router := setupTestHandler(t)

			if w := post(router, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			drain(t, h)
			if n := len(d.snapshot()); n != 0 {
				t.Errorf("dispatched %d events, want 0", n)
			}
		})
	}
}

func TestReceive_SkipsEchoesReceiptsAndMissingSender(t *testing.T) {
	t.Parallel()
	h, d, router := setupTestHandler(t)

	body := `{"object":"page","entry":[{"id":"p","messaging":[
		{"sender":{"id":"page"},"recipient":{"id":"u1"},"message":{"mid":"e1","text":"echo","is_echo":true}},
		{"sender":{"id":"u1"},"recipient":{"id":"page"},"delivery":{}},
		{"sender":{"id":"u1"},"recipient":{"id":"page"},"read":{}},
		{"sender":{"id":""},"recipient":{"id":"page"},"message":{"mid":"m","text":"no sender"}},
		{"sender":{"id":"u1"},"recipient":{"id":"page"},"message":{"mid":"m2","text":"menu"}}
	]}]}`

	if w := post(router, body); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	drain(t, h)

	got := d.snapshot()
	if len(got) != 1 || got[0].Text != "menu" {
		t.Errorf("expected only the menu message, got %+v", got)
	}
	if v := testutil.ToFloat64(h.metrics.WebhookEventsTotal.WithLabelValues("messenger", "text", "malformed")); v != 1 {
		t.Errorf("malformed counter = %v, want 1", v)
	}
}

func TestReceive_Signature(t *testing.T) {
	t.Parallel()
	body := `{"object":"page","entry":[]}`
	valid := "sha256=" + hex.EncodeToString(messenger.Sign("app-secret", []byte(body)))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", valid, http.StatusOK},
		{"missing", "", http.StatusForbidden},
		{"wrong", "sha256=" + strings.Repeat("0", 64), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, _, router := setupTestHandler(t, WithAppSecret("app-secret"))
			if w := post(router, body, messenger.SignatureHeader, tt.header); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			drain(t, h)
		})
	}
}

func TestReceive_BodyTooLarge(t *testing.T) {
	t.Parallel()
	h, _, router := setupTestHandler(t, WithMaxBodyBytes(64))

	w := post(router, `{"object":"page","entry":[`+strings.Repeat(`{"id":"x"},`, 20)+`{}]}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
	drain(t, h)
}

func TestReceive_TruncatesLargeBatches(t *testing.T) {
	t.Parallel()
	h, d, router := setupTestHandler(t, WithMaxEvents(2))

	w := post(router, twoEntries)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	drain(t, h)
	if n := len(d.snapshot()); n != 2 {
		t.Errorf("dispatched %d events, want 2", n)
	}
}

func TestReceive_RecoversFromPanic(t *testing.T) {
	t.Parallel()
	h, d, router := setupTestHandler(t)
	d.panicOn = "Chicken"

	if w := post(router, twoEntries); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	drain(t, h)
	if n := len(d.snapshot()); n != 3 {
		t.Fatalf("dispatched %d events, want the 3 that did not panic", n)
	}

	d.panicOn = ""
	post(router, twoEntries)
	drain(t, h)
	if n := len(d.snapshot()); n != 7 {
		t.Errorf("dispatched %d events after recovery, want 7", n)
	}
}

func TestShutdown_TimesOut(t *testing.T) {
	t.Parallel()
	h, d, router := setupTestHandler(t)
	d.block = make(chan struct{})
	defer close(d.block)

	post(router, twoEntries)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.Shutdown(ctx); err == nil {
		t.Error("expected Shutdown to time out while a batch is blocked")
	}
}
