package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starwatchapp/starwatch/internal/auth"
	"github.com/starwatchapp/starwatch/internal/bus"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/starwatchapp/starwatch/internal/sse"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/validation"
)

type fakeAlarm struct{ fallback bool }

func (f fakeAlarm) UsingFallback() bool { return f.fallback }

type fakeIndex struct{ count uint64 }

func (f fakeIndex) DocumentCount() (uint64, error) { return f.count, nil }

type testServer struct {
	*Server
	manager *sse.Manager
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	tokens, err := auth.NewSurfaceTokens(bytes.Repeat([]byte{7}, 32), time.Hour)
	require.NoError(t, err)

	scope, err := store.OpenLocalInMemory(store.NewHub(logger.Discard()), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = scope.Close() })

	router := bus.NewRouter(validation.New(), logger.Discard())
	bus.Handle(router, "echo", func(_ context.Context, p struct {
		Text string `json:"text" validate:"required"`
	}) (any, error) {
		return p.Text, nil
	})

	manager := sse.NewManager(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = manager.Shutdown(context.Background())
	})

	s := NewServer(Deps{
		Tokens:         tokens,
		Bus:            router,
		Events:         manager,
		Local:          scope,
		Sync:           scope,
		Search:         fakeIndex{count: 3},
		Alarm:          fakeAlarm{},
		AllowedOrigins: []string{"chrome-extension://*"},
	}, opts, logger.Discard())
	t.Cleanup(func() { _ = s.Shutdown() })

	return &testServer{Server: s, manager: manager}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) register(t *testing.T, kind string) SurfaceResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/surfaces", "", map[string]string{"kind": kind})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp SurfaceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t, DefaultOptions())

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, statusHealthy, body.Status)
	assert.Equal(t, "3 channels indexed", body.Components["search"].Message)
	assert.Equal(t, "no connected surfaces", body.Components["sse"].Message)
}

func TestHealthCheck_FallbackAlarmDegrades(t *testing.T) {
	ts := setupTestServer(t, DefaultOptions())
	ts.deps.Alarm = fakeAlarm{fallback: true}

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, statusDegraded, body.Status)
}

func TestRegisterSurface(t *testing.T) {
	ts := setupTestServer(t, DefaultOptions())

	resp := ts.register(t, "popup")
	assert.Equal(t, "popup", resp.Kind)
	assert.True(t, strings.HasPrefix(resp.Token, "v4.local."))
	assert.NotEmpty(t, resp.SurfaceID)

	rec := ts.do(t, http.MethodPost, "/api/v1/surfaces", "", map[string]string{"kind": "toolbar"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRegisterSurface_RateLimited(t *testing.T) {
	ts := setupTestServer(t, Options{MessagesPerSecond: 10, MessageBurst: 10, RegistrationsPerMinute: 1})

	ts.register(t, "popup")
	rec := ts.do(t, http.MethodPost, "/api/v1/surfaces", "", map[string]string{"kind": "popup"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMessages_RequireSurfaceToken(t *testing.T) {
	ts := setupTestServer(t, DefaultOptions())
	msg := bus.Request{Type: "echo", Payload: json.RawMessage(`{"text":"hi"}`)}

	rec := ts.do(t, http.MethodPost, "/api/v1/messages", "", msg)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/messages", "v4.local.garbage", msg)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var apiErr map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "UNAUTHORIZED", apiErr["code"])
}

func TestMessages_Envelope(t *testing.T) {
	ts := setupTestServer(t, DefaultOptions())
	token := ts.register(t, "dashboard").Token

	rec := ts.do(t, http.MethodPost, "/api/v1/messages", token, bus.Request{Type: "echo", Payload: json.RawMessage(`{"text":"hi"}`)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"ok":true,"data":"hi"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/messages", token, bus.Request{Type: "echo"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"text is required","code":"VALIDATION"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/messages", token, bus.Request{Type: "nope"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":false`)
}

func TestMessages_RateLimitedPerSurface(t *testing.T) {
	ts := setupTestServer(t, Options{MessagesPerSecond: 0.001, MessageBurst: 1, RegistrationsPerMinute: 10})
	first := ts.register(t, "content").Token
	second := ts.register(t, "content").Token
	msg := bus.Request{Type: "echo", Payload: json.RawMessage(`{"text":"hi"}`)}

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/messages", first, msg).Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(t, http.MethodPost, "/api/v1/messages", first, msg).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/messages", second, msg).Code)
}

func TestEvents_RequireSurfaceToken(t *testing.T) {
	ts := setupTestServer(t, DefaultOptions())
	rec := ts.do(t, http.MethodGet, "/api/v1/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEvents_StreamsBroadcasts(t *testing.T) {
	ts := setupTestServer(t, DefaultOptions())
	token := ts.register(t, "popup").Token

	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?access_token="+token, nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	waitFor := func(prefix string) string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return lines.Text()
			}
		}
		t.Fatalf("stream ended before %q", prefix)
		return ""
	}

	waitFor("event: connected")
	require.Eventually(t, func() bool { return ts.manager.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	ts.manager.Broadcast(sse.EventBadgeUpdate, sse.BadgeEventData{Text: "2", Count: 2})
	assert.Equal(t, "event: badge:update", waitFor("event: badge:update"))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := bearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "127.0.0.1", clientIP("127.0.0.1:5000"))
	assert.Equal(t, "::1", clientIP("[::1]:5000"))
	assert.Equal(t, "10.0.0.1", clientIP("10.0.0.1"))
}
