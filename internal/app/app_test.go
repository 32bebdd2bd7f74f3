package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/menubot-go/internal/config"
)

// fakeGraph records calls to the Graph API endpoints the app uses.
type fakeGraph struct {
	mu       sync.Mutex
	sends    []map[string]any
	profiles []string // "METHOD body"
	sendCode int
}

func (g *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case strings.HasSuffix(r.URL.Path, "/me/messages"):
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		g.sends = append(g.sends, req)
		if g.sendCode != 0 {
			w.WriteHeader(g.sendCode)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"OAuthException","code":2}}`))
			return
		}
		_, _ = w.Write([]byte(`{"recipient_id":"PSID","message_id":"mid.1"}`))
	case strings.HasSuffix(r.URL.Path, "/me/messenger_profile"):
		g.profiles = append(g.profiles, r.Method+" "+string(body))
		_, _ = w.Write([]byte(`{"result":"success"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (g *fakeGraph) sendCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sends)
}

func (g *fakeGraph) profileCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.profiles...)
}

func testConfig(t *testing.T, graphURL string) *config.Config {
	t.Helper()
	return &config.Config{
		PageAccessToken:        "page-token",
		VerifyToken:            "verify-me",
		GraphAPIVersion:        "v21.0",
		GraphAPIBaseURL:        graphURL,
		Port:                   "0",
		LogLevel:               "error",
		ShutdownTimeout:        5 * time.Second,
		DataDir:                t.TempDir(),
		JournalRetention:       24 * time.Hour,
		JournalCleanupSchedule: "0 4 * * *",
		DeliveryTimeout:        5 * time.Second,
		DeliveryRPS:            1000,
		UserRateBurst:          50,
		UserRateRefill:         10,
		ConversationTTL:        time.Minute,
		AdminUsername:          "ops",
		AdminPassword:          "admin-secret",
		MetricsUsername:        "prometheus",
	}
}

// setupTestApp builds a fully wired Application against a fake Graph API.
func setupTestApp(t *testing.T, mutate ...func(*config.Config)) (*Application, *fakeGraph) {
	t.Helper()

	graph := &fakeGraph{}
	srv := httptest.NewServer(graph)
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, cfg.Validate())

	app, err := Initialize(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.webhookHandler.Shutdown(ctx)
		app.userLimiter.Stop()
		_ = app.db.Close()
	})
	return app, graph
}

func serve(app *Application, method, path string, body string, header ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	app.Handler().ServeHTTP(w, req)
	return w
}

func serveAdmin(app *Application, method, path, body string) *httptest.ResponseRecorder {
	return serve(app, method, path, body, "Authorization", basicAuth("ops", "admin-secret"))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func textEvent(sender, text string) string {
	return `{"object":"page","entry":[{"id":"PAGE","time":1,"messaging":[` +
		`{"sender":{"id":"` + sender + `"},"recipient":{"id":"PAGE"},"timestamp":1700000000000,` +
		`"message":{"mid":"m1","text":"` + text + `"}}]}]}`
}

func TestLivenessCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		w := serve(app, method, "/livez", "")
		assert.Equal(t, http.StatusOK, w.Code, method)
	}
	assert.Equal(t, "alive", decode(t, serve(app, http.MethodGet, "/livez", ""))["status"])
}

func TestReadinessCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	w := serve(app, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "connected", body["database"])

	cat, ok := body["catalog"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, app.catalogs.Current().Version(), cat["version"])
	assert.Equal(t, "embedded", cat["source"])
	assert.NotZero(t, cat["triggers"])
	assert.NotEmpty(t, cat["loaded_at"])
	assert.Equal(t, []any{"messenger"}, body["channels"])
}

func TestReadinessCheck_DatabaseClosed(t *testing.T) {
	app, _ := setupTestApp(t)
	require.NoError(t, app.db.Close())

	w := serve(app, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "database unavailable", decode(t, w)["reason"])
}

func TestInfo(t *testing.T) {
	app, _ := setupTestApp(t)

	w := serve(app, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "menubot-go", body["service"])
	assert.Equal(t, app.catalogs.Current().Version(), body["catalog_version"])
}

func TestMiddleware_SecurityHeadersAndRequestID(t *testing.T) {
	app, _ := setupTestApp(t)

	w := serve(app, http.MethodGet, "/livez", "")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = serve(app, http.MethodGet, "/livez", "", requestIDHeader, "trace-42")
	assert.Equal(t, "trace-42", w.Header().Get(requestIDHeader))

	w = serve(app, http.MethodGet, "/livez", "", requestIDHeader, "bad id\nwith newline")
	assert.NotEqual(t, "bad id\nwith newline", w.Header().Get(requestIDHeader))
}

func TestWebhook_VerifyHandshake(t *testing.T) {
	app, _ := setupTestApp(t)

	w := serve(app, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())

	w = serve(app, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhook_EndToEndDelivery(t *testing.T) {
	app, graph := setupTestApp(t)

	w := serve(app, http.MethodPost, "/webhook", textEvent("PSID-1", "hi"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EVENT_RECEIVED", w.Body.String())

	// "hi" is an alias of get_started, which sends four greetings.
	require.Eventually(t, func() bool { return graph.sendCount() == 4 }, 5*time.Second, 10*time.Millisecond)

	graph.mu.Lock()
	first := graph.sends[0]
	graph.mu.Unlock()
	assert.Equal(t, map[string]any{"id": "PSID-1"}, first["recipient"])
	msg, ok := first["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Welcome to Pop Chicken! 🍗", msg["text"])

	require.Eventually(t, func() bool {
		n, err := app.db.CountDeliveries(context.Background(), "")
		return err == nil && n == 4
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAdmin_RequiresAuth(t *testing.T) {
	app, _ := setupTestApp(t)

	w := serve(app, http.MethodPost, "/admin/catalog/reload", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Basic realm="admin"`, w.Header().Get("WWW-Authenticate"))

	w = serve(app, http.MethodPost, "/admin/catalog/reload", "", "Authorization", basicAuth("ops", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_DisabledWithoutPassword(t *testing.T) {
	app, _ := setupTestApp(t, func(c *config.Config) { c.AdminPassword = "" })

	w := serve(app, http.MethodPost, "/admin/catalog/reload", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_ProfileSync(t *testing.T) {
	app, graph := setupTestApp(t)

	w := serveAdmin(app, http.MethodPost, "/admin/profile/sync", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	calls := graph.profileCalls()
	require.Len(t, calls, 4)
	assert.Contains(t, calls[0], `"get_started":{"payload":"get_started"}`)
	assert.Contains(t, calls[1], `"greeting"`)
	assert.Contains(t, calls[2], `"whitelisted_domains"`)
	assert.Contains(t, calls[3], `"persistent_menu"`)
}

func TestAdmin_SetGetStarted(t *testing.T) {
	app, graph := setupTestApp(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"catalog default", "", http.StatusOK},
		{"explicit payload", `{"payload":"menu"}`, http.StatusOK},
		{"unknown payload", `{"payload":"nope"}`, http.StatusUnprocessableEntity},
		{"malformed body", `{"payload":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveAdmin(app, http.MethodPost, "/admin/profile/get-started", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}

	// Each accepted call sets get_started then the catalog greeting.
	assert.Len(t, graph.profileCalls(), 4)
}

func TestAdmin_SetPersistentMenu(t *testing.T) {
	app, graph := setupTestApp(t)

	w := serveAdmin(app, http.MethodPost, "/admin/profile/persistent-menu", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 3, decode(t, w)["items"])

	body := `{"items":[{"label":"Ghost","action":"postback","payload":"ghost"}]}`
	w = serveAdmin(app, http.MethodPost, "/admin/profile/persistent-menu", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []any{"ghost"}, decode(t, w)["unknown"])

	assert.Len(t, graph.profileCalls(), 1)
}

func TestAdmin_SetWhitelist(t *testing.T) {
	app, graph := setupTestApp(t)

	w := serveAdmin(app, http.MethodPost, "/admin/profile/whitelist", `{"domains":["https://shop.example.com"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	calls := graph.profileCalls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "https://shop.example.com")
}

func TestAdmin_ClearProfile(t *testing.T) {
	app, graph := setupTestApp(t)

	w := serveAdmin(app, http.MethodDelete, "/admin/profile?fields=greeting,get_started", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{"greeting", "get_started"}, decode(t, w)["cleared"])

	w = serveAdmin(app, http.MethodDelete, "/admin/profile?fields=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	calls := graph.profileCalls()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0], http.MethodDelete+" "))
}

func TestAdmin_CatalogReload(t *testing.T) {
	minimal, err := os.ReadFile(filepath.Join("..", "catalog", "testdata", "minimal.json"))
	require.NoError(t, err)
	dangling := []byte(`{"triggers":[{"key":"default","responses":["fallback"]}],` +
		`"responses":[{"id":"fallback","kind":"buttons","text":"Pick",` +
		`"buttons":[{"label":"Ghost","action":"postback","payload":"ghost"}]}]}`)

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, minimal, 0o600))

	app, _ := setupTestApp(t, func(c *config.Config) { c.CatalogPath = path })
	original := app.catalogs.Current().Version()

	w := serveAdmin(app, http.MethodPost, "/admin/catalog/reload", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, false, body["changed"])
	assert.Equal(t, original, body["version"])

	// A catalog with dangling payloads is rejected and the old one stays live.
	require.NoError(t, os.WriteFile(path, dangling, 0o600))
	w = serveAdmin(app, http.MethodPost, "/admin/catalog/reload", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, original, body["version"])
	defects, ok := body["defects"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, defects)
	assert.Equal(t, original, app.catalogs.Current().Version())

	// Growing the valid catalog is picked up.
	grown := bytes.Replace(minimal, []byte(`"Hi"`), []byte(`"Hi there"`), 1)
	require.NoError(t, os.WriteFile(path, grown, 0o600))
	w = serveAdmin(app, http.MethodPost, "/admin/catalog/reload", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, true, body["changed"])
	assert.NotEqual(t, original, body["version"])
}

func TestAdmin_RecentFailures(t *testing.T) {
	app, graph := setupTestApp(t)
	graph.mu.Lock()
	graph.sendCode = http.StatusBadRequest
	graph.mu.Unlock()

	w := serve(app, http.MethodPost, "/webhook", textEvent("PSID-2", "menu"))
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		n, err := app.db.CountDeliveries(context.Background(), "failed")
		return err == nil && n > 0
	}, 5*time.Second, 10*time.Millisecond)

	w = serveAdmin(app, http.MethodGet, "/admin/deliveries/failures?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	failures, ok := body["failures"].([]any)
	require.True(t, ok)
	require.Len(t, failures, 1)

	first := failures[0].(map[string]any)
	assert.Equal(t, "messenger", first["channel"])
	assert.Equal(t, "menu", first["trigger"])
	assert.NotEqual(t, "PSID-2", first["recipient"])

	w = serveAdmin(app, http.MethodGet, "/admin/deliveries/failures?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		app, _ := setupTestApp(t)
		w := serve(app, http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "go_goroutines")
	})

	t.Run("protected", func(t *testing.T) {
		app, _ := setupTestApp(t, func(c *config.Config) { c.MetricsPassword = "scrape" })

		w := serve(app, http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = serve(app, http.MethodGet, "/metrics", "", "Authorization", basicAuth("prometheus", "scrape"))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRecordGauges(t *testing.T) {
	app, _ := setupTestApp(t)

	w := serve(app, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "menubot_catalog_triggers")
	assert.Contains(t, w.Body.String(), "menubot_catalog_responses")
}

func TestPruneJournal(t *testing.T) {
	app, _ := setupTestApp(t)
	ctx := context.Background()

	w := serve(app, http.MethodPost, "/webhook", textEvent("PSID-3", "hi"))
	require.Equal(t, http.StatusOK, w.Code)
	require.Eventually(t, func() bool {
		n, err := app.db.CountDeliveries(ctx, "")
		return err == nil && n == 4
	}, 5*time.Second, 10*time.Millisecond)

	// Fresh rows survive the configured retention.
	app.pruneJournal(ctx)
	n, err := app.db.CountDeliveries(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	app.cfg.JournalRetention = time.Nanosecond
	time.Sleep(5 * time.Millisecond)
	app.pruneJournal(ctx)
	n, err = app.db.CountDeliveries(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBackgroundJobsStopOnCancel(t *testing.T) {
	app, _ := setupTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	app.startBackgroundJobs(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("background jobs did not stop")
	}
}
