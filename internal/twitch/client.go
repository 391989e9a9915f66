// Package twitch is a small Helix and OAuth client covering what the follow
// cache and sign-in need.
package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultBatchSize = 100
	maxBatchSize     = 100

	// DefaultHelixURL is the production Helix base.
	DefaultHelixURL = "https://api.twitch.tv/helix"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	ClientID  string
	BatchSize int
	Timeout   time.Duration
}

// Client calls Helix with a caller-supplied bearer token. It surfaces the
// server's rate-limit headers but does not throttle itself; batch sizing keeps
// call counts low.
type Client struct {
	http      *http.Client
	baseURL   string
	clientID  string
	batchSize int
	logger    *slog.Logger

	mu   sync.RWMutex
	last RateLimit
}

// New creates a Helix client.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultHelixURL
	}
	if opts.BatchSize <= 0 || opts.BatchSize > maxBatchSize {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Client{
		http:      &http.Client{Timeout: opts.Timeout},
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		clientID:  opts.ClientID,
		batchSize: opts.BatchSize,
		logger:    logger,
	}
}

// LastRateLimit returns the budget reported on the most recent response.
func (c *Client) LastRateLimit() RateLimit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// BatchSize is the number of ids sent per batched call.
func (c *Client) BatchSize() int {
	return c.batchSize
}

// doRequest issues a GET against Helix and maps the status to a sentinel.
func (c *Client) doRequest(ctx context.Context, token, path string, query url.Values) ([]byte, int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("User-Agent", "starwatch/1.0")
	req.Header.Set("X-Request-Id", requestID)

	c.logger.Debug("helix request", "path", path, "request_id", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	c.recordRateLimit(resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	return body, resp.StatusCode, statusError(resp.StatusCode, body)
}

func (c *Client) recordRateLimit(h http.Header) {
	rl, ok := parseRateLimit(h)
	if !ok {
		return
	}
	c.mu.Lock()
	c.last = rl
	c.mu.Unlock()

	if rl.Remaining < rl.Limit/10 {
		c.logger.Warn("helix rate limit running low",
			"remaining", rl.Remaining,
			"limit", rl.Limit,
			"reset", rl.Reset)
	}
}

func parseRateLimit(h http.Header) (RateLimit, bool) {
	limit, err1 := strconv.Atoi(h.Get("Ratelimit-Limit"))
	remaining, err2 := strconv.Atoi(h.Get("Ratelimit-Remaining"))
	if err1 != nil || err2 != nil {
		return RateLimit{}, false
	}
	rl := RateLimit{Limit: limit, Remaining: remaining}
	if reset, err := strconv.ParseInt(h.Get("Ratelimit-Reset"), 10, 64); err == nil {
		rl.Reset = time.Unix(reset, 0)
	}
	return rl, true
}

func statusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, apiMessage(body))
	case status >= 500:
		return ErrServer
	default:
		return fmt.Errorf("unexpected status %d: %s", status, apiMessage(body))
	}
}

// apiMessage extracts {"message": ...} from an error body.
func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

func decode[T any](op string, status int, body []byte) (T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return out, wrapError(op, status, fmt.Errorf("parse response: %w", err))
	}
	return out, nil
}

// chunks splits ids into batches of size n.
func chunks(ids []string, n int) [][]string {
	var out [][]string
	for len(ids) > 0 {
		end := min(n, len(ids))
		out = append(out, ids[:end])
		ids = ids[end:]
	}
	return out
}
