// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/config"
	"github.com/tomtom215/streamrelay/internal/logging"
	"github.com/tomtom215/streamrelay/internal/models"
	"github.com/tomtom215/streamrelay/internal/sink"
)

//nolint:gochecknoinits // keep test output quiet
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

type fakeAdapters struct {
	infos []adapter.Info
}

func (f *fakeAdapters) Infos() []adapter.Info { return f.infos }

func (f *fakeAdapters) ConnectedCount() int {
	var n int
	for _, info := range f.infos {
		if info.IsConnected {
			n++
		}
	}
	return n
}

func testAdapters() *fakeAdapters {
	return &fakeAdapters{infos: []adapter.Info{
		{Platform: models.PlatformTwitch, ChannelID: "141981764", IsConnected: true, State: "connected"},
		{Platform: models.PlatformYouTube, ChannelID: "vid-1", State: "reconnecting", ReconnectAttempts: 2},
	}}
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{RateLimitReqs: 100, RateLimitWindow: time.Minute}
}

type testResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) testResponse {
	t.Helper()
	var resp testResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func serve(handler http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()
	handler := NewRouter(testServerConfig(), testAdapters(), nil).SetupChi()

	rec := serve(handler, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id response header")
	}

	resp := decodeResponse(t, rec)
	var health HealthStatus
	if err := json.Unmarshal(resp.Data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if !resp.Success || health.Status != "ok" || health.Adapters != 2 || health.ConnectedAdapters != 1 {
		t.Errorf("unexpected health: %+v", health)
	}
	if resp.Meta == nil || resp.Meta.RequestID == "" {
		t.Errorf("meta should carry the request id: %+v", resp.Meta)
	}
}

func TestHealth_EchoesRequestID(t *testing.T) {
	t.Parallel()
	handler := NewRouter(testServerConfig(), nil, nil).SetupChi()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Errorf("X-Request-Id = %q, want req-42", got)
	}
	if resp := decodeResponse(t, rec); resp.Meta.RequestID != "req-42" {
		t.Errorf("meta request id = %q", resp.Meta.RequestID)
	}
}

func TestAdapters(t *testing.T) {
	t.Parallel()
	handler := NewRouter(testServerConfig(), testAdapters(), nil).SetupChi()

	rec := serve(handler, http.MethodGet, "/api/v1/adapters")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}

	resp := decodeResponse(t, rec)
	var infos []adapter.Info
	if err := json.Unmarshal(resp.Data, &infos); err != nil {
		t.Fatalf("decode infos: %v", err)
	}
	if len(infos) != 2 || infos[0].ChannelID != "141981764" || infos[1].ReconnectAttempts != 2 {
		t.Errorf("unexpected infos: %+v", infos)
	}
	if resp.Meta.Count == nil || *resp.Meta.Count != 2 {
		t.Errorf("meta count = %v, want 2", resp.Meta.Count)
	}
	if !strings.Contains(rec.Body.String(), `"channelId":"vid-1"`) {
		t.Errorf("body should use the info JSON names: %s", rec.Body.String())
	}
}

func TestAdapters_EmptyList(t *testing.T) {
	t.Parallel()
	handler := NewRouter(testServerConfig(), &fakeAdapters{}, nil).SetupChi()

	rec := serve(handler, http.MethodGet, "/api/v1/adapters")
	if resp := decodeResponse(t, rec); string(resp.Data) != "[]" {
		t.Errorf("data = %s, want []", resp.Data)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	cfg := config.ServerConfig{RateLimitReqs: 2, RateLimitWindow: time.Minute}
	handler := NewRouter(cfg, testAdapters(), nil).SetupChi()

	for i := 0; i < 2; i++ {
		if rec := serve(handler, http.MethodGet, "/api/v1/adapters"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := serve(handler, http.MethodGet, "/api/v1/adapters")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Error == nil || resp.Error.Code != "RATE_LIMITED" {
		t.Errorf("unexpected error body: %s", rec.Body.String())
	}

	// Health checks are not rate limited.
	if rec := serve(handler, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	t.Parallel()
	cfg := config.ServerConfig{RateLimitReqs: 1, RateLimitWindow: time.Minute, RateLimitDisabled: true}
	handler := NewRouter(cfg, testAdapters(), nil).SetupChi()

	for i := 0; i < 5; i++ {
		if rec := serve(handler, http.MethodGet, "/api/v1/adapters"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	handler := NewRouter(testServerConfig(), testAdapters(), nil).SetupChi()
	_ = serve(handler, http.MethodGet, "/healthz")

	rec := serve(handler, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `endpoint="/healthz"`) {
		t.Error("metrics should include the healthz request counter")
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()
	handler := NewRouter(testServerConfig(), testAdapters(), nil).SetupChi()

	tests := []struct {
		name   string
		method string
		target string
		status int
		code   string
	}{
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound, "NOT_FOUND"},
		{"wrong method", http.MethodPost, "/healthz", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(handler, tt.method, tt.target)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if resp := decodeResponse(t, rec); resp.Success || resp.Error.Code != tt.code {
				t.Errorf("unexpected body: %s", rec.Body.String())
			}
		})
	}
}

func TestOverlay_InvalidFilter(t *testing.T) {
	t.Parallel()
	hub := sink.NewHub(sink.HubConfig{})
	handler := NewRouter(testServerConfig(), testAdapters(), hub).SetupChi()

	rec := serve(handler, http.MethodGet, "/ws/overlay?platform=kick")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error.Code != "VALIDATION_ERROR" || !strings.Contains(rec.Body.String(), "platform must be one of") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestOverlay_NoHub(t *testing.T) {
	t.Parallel()
	handler := NewRouter(testServerConfig(), testAdapters(), nil).SetupChi()

	if rec := serve(handler, http.MethodGet, "/ws/overlay"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func startOverlayServer(t *testing.T, cfg config.ServerConfig) (*sink.Hub, string) {
	t.Helper()
	hub := sink.NewHub(sink.HubConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()

	srv := httptest.NewServer(NewRouter(cfg, testAdapters(), hub).SetupChi())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/overlay"
}

func TestOverlay_DeliversFilteredEvents(t *testing.T) {
	hub, url := startOverlayServer(t, testServerConfig())

	conn, _, err := websocket.DefaultDialer.Dial(url+"?platform=twitch", nil)
	if err != nil {
		t.Fatalf("dial overlay: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("overlay client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ev := models.NewEvent("evt-9", models.EventFollow, models.PlatformTwitch,
		models.Sender{ID: "u1", Nickname: "viewer"}, models.Content{}, models.Metadata{ChannelID: "141981764"})
	_ = hub.Publish(context.Background(), adapter.Notification{Kind: adapter.KindEvent, Platform: models.PlatformTwitch, ChannelID: "141981764", Event: ev})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string                 `json:"type"`
		Data models.NormalizedEvent `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read overlay message: %v", err)
	}
	if msg.Type != "event" || msg.Data.ID != "evt-9" || msg.Data.Type != models.EventFollow {
		t.Errorf("unexpected overlay message: %+v", msg)
	}
}

func TestOverlay_OriginCheck(t *testing.T) {
	cfg := testServerConfig()
	cfg.CORSOrigins = []string{"https://overlay.example"}
	_, url := startOverlayServer(t, cfg)

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"allowed origin", "https://overlay.example", true},
		{"no origin", "", true},
		{"foreign origin", "https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tt.ok {
				if err != nil {
					t.Fatalf("dial error = %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("dial should fail for a foreign origin")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("handshake response = %v, want 403", resp)
			}
		})
	}
}
