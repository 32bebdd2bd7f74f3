// Package messenger delivers catalog responses through the Messenger
// Send API and manages the page's Messenger profile.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/garyellow/menubot-go/internal/catalog"
	"github.com/garyellow/menubot-go/internal/config"
	domerrors "github.com/garyellow/menubot-go/internal/errors"
	"github.com/garyellow/menubot-go/internal/event"
	"github.com/garyellow/menubot-go/internal/logger"
	"github.com/garyellow/menubot-go/internal/metrics"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Config holds configuration for creating a Client.
type Config struct {
	BaseURL         string // e.g. https://graph.facebook.com
	Version         string // e.g. v21.0
	PageAccessToken string
	AppSecret       string  // optional; adds appsecret_proof
	RPS             float64 // outbound request rate, 0 = unlimited
	HTTPClient      *http.Client
	Logger          *logger.Logger
	Metrics         *metrics.Metrics
}

// Client talks to the Graph API on behalf of one page.
type Client struct {
	baseURL   string
	version   string
	token     string
	appSecret string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.PageAccessToken == "" {
		return nil, fmt.Errorf("%w: messenger page access token is required", domerrors.ErrConfiguration)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: invalid graph api base url %q", domerrors.ErrConfiguration, cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.ProfileRequest,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		burst = max(1, int(cfg.RPS))
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		version:   cfg.Version,
		token:     cfg.PageAccessToken,
		appSecret: cfg.AppSecret,
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    cfg.Logger.WithModule("messenger"),
		metrics:   cfg.Metrics,
	}, nil
}

// GraphError is the error object returned by the Graph API.
type GraphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	TraceID      string `json:"fbtrace_id"`
}

func (e *GraphError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("graph api %s (#%d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("graph api (#%d): %s", e.Code, e.Message)
}

// apiError is returned by do for non-2xx responses.
type apiError struct {
	StatusCode int
	Graph      *GraphError
	Body       string
}

func (e *apiError) Error() string {
	if e.Graph != nil {
		return fmt.Sprintf("status %d: %v", e.StatusCode, e.Graph)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

func (e *apiError) Unwrap() error {
	if e.Graph != nil {
		return e.Graph
	}
	return nil
}

// retryable reports whether a failed profile call may succeed later.
func (e *apiError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// endpoint builds the request URL. The page token travels in the
// Authorization header so it never appears in URL-bearing errors.
func (c *Client) endpoint(path string) string {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, c.version, strings.TrimLeft(path, "/"))
	if c.appSecret != "" {
		q := url.Values{}
		q.Set("appsecret_proof", appSecretProof(c.appSecret, c.token))
		u += "?" + q.Encode()
	}
	return u
}

// redactURL strips the query from a transport error's URL.
func redactURL(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	if i := strings.IndexByte(urlErr.URL, '?'); i >= 0 {
		urlErr.URL = urlErr.URL[:i]
	}
	return err
}

// do sends one JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if waited := time.Since(waitStart); waited > time.Millisecond {
		c.metrics.RecordRateLimiterWait("graph_api", waited.Seconds())
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", redactURL(err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", redactURL(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &apiError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		var envelope struct {
			Error *GraphError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			apiErr.Graph = envelope.Error
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// SendRequest is the body of POST /me/messages.
type SendRequest struct {
	Recipient     sendRecipient `json:"recipient"`
	MessagingType string        `json:"messaging_type"`
	Message       *Message      `json:"message"`
}

type sendRecipient struct {
	ID string `json:"id"`
}

// SendResult is the Send API success body.
type SendResult struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// Send renders resp and posts it to the recipient. It is never retried.
// Failures are *errors.DeliveryError.
func (c *Client) Send(ctx context.Context, to event.Recipient, resp *catalog.Response) error {
	msg, err := Render(resp)
	if err != nil {
		return domerrors.NewDeliveryError(string(event.ChannelMessenger), string(resp.ID), 0, err)
	}

	req := SendRequest{
		Recipient:     sendRecipient{ID: to.ID},
		MessagingType: "RESPONSE",
		Message:       msg,
	}

	var result SendResult
	if err := c.do(ctx, http.MethodPost, "me/messages", req, &result); err != nil {
		de := domerrors.NewDeliveryError(string(event.ChannelMessenger), string(resp.ID), 0, err)
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			de.StatusCode = apiErr.StatusCode
			if apiErr.Graph != nil {
				de.Code = apiErr.Graph.Code
			}
		}
		return de
	}

	c.logger.WithField("response_id", string(resp.ID)).
		WithField("message_id", result.MessageID).
		DebugContext(ctx, "Message sent")
	return nil
}
