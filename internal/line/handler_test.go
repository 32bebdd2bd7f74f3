package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/garyellow/menubot-go/internal/dispatch"
	"github.com/garyellow/menubot-go/internal/event"
	"github.com/garyellow/menubot-go/internal/logger"
	"github.com/garyellow/menubot-go/internal/metrics"
)

const testSecret = "test_channel_secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []event.Event
}

func (d *recordingDispatcher) Handle(_ context.Context, ev event.Event) dispatch.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return dispatch.Result{}
}

func (d *recordingDispatcher) snapshot() []event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]event.Event(nil), d.events...)
}

func setupTestHandler(t *testing.T) (*Handler, *recordingDispatcher, *gin.Engine) {
	t.Helper()
	d := &recordingDispatcher{}
	h := NewHandler(HandlerConfig{
		ChannelSecret: testSecret,
		Dispatcher:    d,
		Logger:        logger.NewWithWriter("error", io.Discard),
		Metrics:       metrics.New(prometheus.NewRegistry()),
		FollowPayload: func() string { return "welcome" },
	})
	router := gin.New()
	router.POST("/callback", h.Handle)
	return h, d, router
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postCallback(router *gin.Engine, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", signature)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func waitIdle(t *testing.T, h *Handler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

const callbackBody = `{
  "destination": "Ubot",
  "events": [
    {"type": "message", "mode": "active", "timestamp": 1700000000000, "webhookEventId": "e1",
     "deliveryContext": {"isRedelivery": false}, "replyToken": "r1",
     "source": {"type": "user", "userId": "U1"},
     "message": {"type": "text", "id": "m1", "quoteToken": "q1", "text": "Chicken"}},
    {"type": "message", "mode": "active", "timestamp": 1700000000001, "webhookEventId": "e2",
     "deliveryContext": {"isRedelivery": false}, "replyToken": "r2",
     "source": {"type": "user", "userId": "U1"},
     "message": {"type": "sticker", "id": "m2", "quoteToken": "q2", "packageId": "1", "stickerId": "1", "stickerResourceType": "STATIC"}},
    {"type": "postback", "mode": "active", "timestamp": 1700000000002, "webhookEventId": "e3",
     "deliveryContext": {"isRedelivery": false}, "replyToken": "r3",
     "source": {"type": "group", "groupId": "G1", "userId": "U2"},
     "postback": {"data": "pop-meals"}},
    {"type": "follow", "mode": "active", "timestamp": 1700000000003, "webhookEventId": "e4",
     "deliveryContext": {"isRedelivery": false}, "replyToken": "r4",
     "source": {"type": "user", "userId": "U3"},
     "follow": {"isUnblocked": false}},
    {"type": "unfollow", "mode": "active", "timestamp": 1700000000004, "webhookEventId": "e5",
     "deliveryContext": {"isRedelivery": false},
     "source": {"type": "user", "userId": "U4"}}
  ]
}`

func TestHandle_MapsEvents(t *testing.T) {
	t.Parallel()
	h, d, router := setupTestHandler(t)

	if w := postCallback(router, callbackBody, sign(callbackBody)); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	waitIdle(t, h)

	got := d.snapshot()
	if len(got) != 4 {
		t.Fatalf("dispatched %d events, want 4 (unfollow skipped): %+v", len(got), got)
	}

	want := []struct {
		variant event.Variant
		sender  string
		replyTo string
		key     string
	}{
		{event.VariantText, "U1", "", "Chicken"},
		{event.VariantAttachment, "U1", "", ""},
		{event.VariantPostback, "U2", "G1", "pop-meals"},
		{event.VariantPostback, "U3", "", "welcome"},
	}
	for i, w := range want {
		ev := got[i]
		if ev.Channel != event.ChannelLINE || ev.Variant != w.variant || ev.SenderID != w.sender || ev.ReplyTo != w.replyTo || ev.Key() != w.key {
			t.Errorf("event %d = %+v, want %+v", i, ev, w)
		}
	}
	if got[1].Attachments[0].Type != "sticker" {
		t.Errorf("attachment type = %q, want sticker", got[1].Attachments[0].Type)
	}
	if got[0].MessageID != "m1" || got[0].Timestamp.UnixMilli() != 1700000000000 {
		t.Errorf("metadata not carried: %+v", got[0])
	}
}

func TestHandle_GroupMembersAreDistinctSenders(t *testing.T) {
	t.Parallel()
	h, d, router := setupTestHandler(t)

	body := `{
  "destination": "Ubot",
  "events": [
    {"type": "message", "mode": "active", "timestamp": 1700000000000, "webhookEventId": "g1",
     "deliveryContext": {"isRedelivery": false}, "replyToken": "r1",
     "source": {"type": "group", "groupId": "G1", "userId": "alice"},
     "message": {"type": "text", "id": "m1", "quoteToken": "q1", "text": "order"}},
    {"type": "message", "mode": "active", "timestamp": 1700000000001, "webhookEventId": "g2",
     "deliveryContext": {"isRedelivery": false}, "replyToken": "r2",
     "source": {"type": "group", "groupId": "G1", "userId": "bob"},
     "message": {"type": "text", "id": "m2", "quoteToken": "q2", "text": "3"}},
    {"type": "message", "mode": "active", "timestamp": 1700000000002, "webhookEventId": "g3",
     "deliveryContext": {"isRedelivery": false}, "replyToken": "r3",
     "source": {"type": "room", "roomId": "R1"},
     "message": {"type": "text", "id": "m3", "quoteToken": "q3", "text": "help"}}
  ]
}`
	if w := postCallback(router, body, sign(body)); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	waitIdle(t, h)

	got := d.snapshot()
	if len(got) != 3 {
		t.Fatalf("dispatched %d events, want 3", len(got))
	}
	alice, bob := got[0], got[1]
	if alice.SenderID != "alice" || bob.SenderID != "bob" {
		t.Errorf("senders = %q, %q; want alice, bob", alice.SenderID, bob.SenderID)
	}
	if alice.From() == bob.From() {
		t.Errorf("group members share state key %+v", alice.From())
	}
	want := event.Recipient{Channel: event.ChannelLINE, ID: "G1"}
	if alice.ReplyTarget() != want || bob.ReplyTarget() != want {
		t.Errorf("reply targets = %+v, %+v; want %+v", alice.ReplyTarget(), bob.ReplyTarget(), want)
	}

	// Without a user id the room itself is the sender.
	if room := got[2]; room.SenderID != "R1" || room.ReplyTo != "" || room.ReplyTarget().ID != "R1" {
		t.Errorf("room event = %+v", room)
	}
}

func TestHandle_InvalidSignature(t *testing.T) {
	t.Parallel()
	h, d, router := setupTestHandler(t)

	if w := postCallback(router, callbackBody, "bogus"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	waitIdle(t, h)
	if n := len(d.snapshot()); n != 0 {
		t.Errorf("dispatched %d events, want 0", n)
	}
}

func TestHandle_DefaultFollowPayload(t *testing.T) {
	t.Parallel()
	d := &recordingDispatcher{}
	h := NewHandler(HandlerConfig{
		ChannelSecret: testSecret,
		Dispatcher:    d,
		Logger:        logger.NewWithWriter("error", io.Discard),
		Metrics:       metrics.New(prometheus.NewRegistry()),
	})
	router := gin.New()
	router.POST("/callback", h.Handle)

	body := `{"destination":"Ubot","events":[{"type":"follow","mode":"active","timestamp":1,"webhookEventId":"e",` +
		`"deliveryContext":{"isRedelivery":false},"replyToken":"r","source":{"type":"user","userId":"U9"},"follow":{"isUnblocked":true}}]}`
	postCallback(router, body, sign(body))
	waitIdle(t, h)

	got := d.snapshot()
	if len(got) != 1 || got[0].Payload != defaultFollowPayload {
		t.Errorf("got %+v, want one get_started postback", got)
	}
}
