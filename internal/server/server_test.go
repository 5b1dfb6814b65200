package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexRelay/internal/domain"
	"dexRelay/internal/ports"
	"dexRelay/internal/ratelimit"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockProcessor struct {
	result   *domain.AggregatedResult
	err      error
	draining bool
	lastSig  *domain.Signal
}

func (p *mockProcessor) Process(ctx context.Context, sig *domain.Signal) (*domain.AggregatedResult, error) {
	p.lastSig = sig
	if p.err != nil {
		return nil, p.err
	}
	if p.result != nil {
		return p.result, nil
	}
	return &domain.AggregatedResult{
		SignalID: sig.ID,
		Outcome:  domain.OutcomeSuccess,
		Attempts: []*domain.ExecutionAttempt{
			{SignalID: sig.ID, VenueID: "mockA", Status: domain.AttemptFilled},
			{SignalID: sig.ID, VenueID: "mockB", Status: domain.AttemptFilled},
		},
	}, nil
}

func (p *mockProcessor) Draining() bool { return p.draining }

type mockHealth struct {
	venues []domain.VenueHealth
}

func (h *mockHealth) Snapshot() []domain.VenueHealth { return h.venues }

func newTestServer(t *testing.T, proc *mockProcessor) *Server {
	t.Helper()
	srv, err := New(Config{
		Addr:      ":0",
		Tokens:    map[string]string{"secret-token": "alice"},
		Limiter:   ratelimit.New(100, 100, clock.New()),
		Processor: proc,
		Health:    &mockHealth{},
		Logger:    &mockLogger{},
	})
	require.NoError(t, err)
	return srv
}

func postWebhook(t *testing.T, srv *Server, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	url := "/webhook"
	if token != "" {
		url += "?token=" + token
	}
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestNew_Validation(t *testing.T) {
	valid := Config{
		Tokens:    map[string]string{"t": "u"},
		Limiter:   ratelimit.New(1, 1, clock.New()),
		Processor: &mockProcessor{},
		Health:    &mockHealth{},
		Logger:    &mockLogger{},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing logger", func(c *Config) { c.Logger = nil }},
		{"missing processor", func(c *Config) { c.Processor = nil }},
		{"missing limiter", func(c *Config) { c.Limiter = nil }},
		{"missing health", func(c *Config) { c.Health = nil }},
		{"no tokens", func(c *Config) { c.Tokens = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
		})
	}
}

func TestBoundaryStatus_MapsSentinelsToTaxonomy(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{fmt.Errorf("token lookup failed: %w", ports.ErrInvalidToken), http.StatusUnauthorized, "INVALID_TOKEN"},
		{fmt.Errorf("user alice: %w", ports.ErrRateLimited), http.StatusTooManyRequests, "RATE_LIMITED"},
		{ports.ErrShuttingDown, http.StatusServiceUnavailable, "SHUTTING_DOWN"},
		{fmt.Errorf("size must be positive: %w", ports.ErrInvalidSignal), http.StatusBadRequest, "INVALID_SIGNAL"},
		{errors.New("ledger on fire"), http.StatusInternalServerError, "DEX_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			status, code := boundaryStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestWebhook_AcceptsValidSignal(t *testing.T) {
	proc := &mockProcessor{}
	srv := newTestServer(t, proc)

	rec := postWebhook(t, srv, "secret-token", `{"symbol":"ETH-PERP","side":"buy","size":1.0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "received", resp.Status)
	assert.NotEmpty(t, resp.SignalID)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "mockA", resp.Results[0].Venue)
	assert.Equal(t, "filled", resp.Results[0].Status)
	assert.Equal(t, "mockB", resp.Results[1].Venue)

	require.NotNil(t, proc.lastSig)
	assert.Equal(t, "ETH-PERP", proc.lastSig.Symbol)
	assert.Equal(t, domain.Long, proc.lastSig.Side)
	assert.Equal(t, "alice", proc.lastSig.SourceUser)
	assert.True(t, proc.lastSig.Size.Equal(decimal.NewFromInt(1)))
}

func TestWebhook_SideAliases(t *testing.T) {
	tests := []struct {
		side string
		want domain.Side
	}{
		{"buy", domain.Long},
		{"sell", domain.Short},
		{"long", domain.Long},
		{"short", domain.Short},
	}
	for _, tt := range tests {
		t.Run(tt.side, func(t *testing.T) {
			proc := &mockProcessor{}
			srv := newTestServer(t, proc)
			rec := postWebhook(t, srv, "secret-token", `{"symbol":"BTCUSDT","side":"`+tt.side+`","size":1}`)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, proc.lastSig.Side)
		})
	}
}

func TestWebhook_RejectsInvalidToken(t *testing.T) {
	proc := &mockProcessor{}
	srv := newTestServer(t, proc)

	for _, token := range []string{"", "wrong-token"} {
		rec := postWebhook(t, srv, token, `{"symbol":"BTCUSDT","side":"buy","size":1}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, "INVALID_TOKEN", resp.Code)
		assert.NotEmpty(t, resp.Timestamp)
	}
	assert.Nil(t, proc.lastSig, "unauthenticated requests never reach the processor")
}

func TestWebhook_RejectsMalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not-json`},
		{"unknown side", `{"symbol":"BTCUSDT","side":"hold","size":1}`},
		{"size not numeric", `{"symbol":"BTCUSDT","side":"buy","size":"abc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &mockProcessor{}
			srv := newTestServer(t, proc)
			rec := postWebhook(t, srv, "secret-token", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_SIGNAL", decodeError(t, rec).Code)
			assert.Nil(t, proc.lastSig)
		})
	}
}

func TestWebhook_RejectsNonPost(t *testing.T) {
	srv := newTestServer(t, &mockProcessor{})
	req := httptest.NewRequest(http.MethodGet, "/webhook?token=secret-token", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhook_RateLimitsPerUser(t *testing.T) {
	proc := &mockProcessor{}
	srv, err := New(Config{
		Tokens:    map[string]string{"secret-token": "alice"},
		Limiter:   ratelimit.New(2, 0.001, clock.NewMock()),
		Processor: proc,
		Health:    &mockHealth{},
		Logger:    &mockLogger{},
	})
	require.NoError(t, err)

	body := `{"symbol":"BTCUSDT","side":"buy","size":1}`
	assert.Equal(t, http.StatusOK, postWebhook(t, srv, "secret-token", body).Code)
	assert.Equal(t, http.StatusOK, postWebhook(t, srv, "secret-token", body).Code)

	rec := postWebhook(t, srv, "secret-token", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, rec).Code)
}

func TestWebhook_DuplicateSignal(t *testing.T) {
	proc := &mockProcessor{result: &domain.AggregatedResult{
		SignalID: "sig-1",
		Outcome:  domain.OutcomeDuplicate,
	}}
	srv := newTestServer(t, proc)

	rec := postWebhook(t, srv, "secret-token", `{"symbol":"BTCUSDT","side":"buy","size":1}`)
	require.Equal(t, http.StatusOK, rec.Code, "duplicate replay is idempotent, not an error")

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "duplicate", resp.Status)
	assert.Empty(t, resp.Results)
}

func TestWebhook_ReturnsPerVenueFailures(t *testing.T) {
	proc := &mockProcessor{result: &domain.AggregatedResult{
		SignalID: "sig-1",
		Outcome:  domain.OutcomeSuccess,
		Attempts: []*domain.ExecutionAttempt{
			{VenueID: "venueA", Status: domain.AttemptFilled},
			{VenueID: "venueB", Status: domain.AttemptRejected, ErrorCode: "DEX_REJECTED", Error: "insufficient margin"},
		},
	}}
	srv := newTestServer(t, proc)

	rec := postWebhook(t, srv, "secret-token", `{"symbol":"BTCUSDT","side":"buy","size":1}`)
	require.Equal(t, http.StatusOK, rec.Code, "partial success is still a received signal")

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "rejected", resp.Results[1].Status)
	assert.Equal(t, "DEX_REJECTED", resp.Results[1].ErrorCode)
	assert.Equal(t, "insufficient margin", resp.Results[1].Error)
}

func TestWebhook_NoVenuesAvailable(t *testing.T) {
	proc := &mockProcessor{result: &domain.AggregatedResult{
		SignalID: "sig-1",
		Outcome:  domain.OutcomeNoVenues,
	}}
	srv := newTestServer(t, proc)

	rec := postWebhook(t, srv, "secret-token", `{"symbol":"BTCUSDT","side":"buy","size":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEX_ERROR", decodeError(t, rec).Code)
}

func TestWebhook_RejectsWhileDraining(t *testing.T) {
	proc := &mockProcessor{draining: true}
	srv := newTestServer(t, proc)

	rec := postWebhook(t, srv, "secret-token", `{"symbol":"BTCUSDT","side":"buy","size":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SHUTTING_DOWN", decodeError(t, rec).Code)
	assert.Nil(t, proc.lastSig)
}

func TestWebhook_ShuttingDownMidProcess(t *testing.T) {
	proc := &mockProcessor{err: ports.ErrShuttingDown}
	srv := newTestServer(t, proc)

	rec := postWebhook(t, srv, "secret-token", `{"symbol":"BTCUSDT","side":"buy","size":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SHUTTING_DOWN", decodeError(t, rec).Code)
}

func TestHealthz_ReportsVenueSnapshot(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	srv, err := New(Config{
		Tokens:    map[string]string{"t": "u"},
		Limiter:   ratelimit.New(1, 1, clock.New()),
		Processor: &mockProcessor{},
		Health: &mockHealth{venues: []domain.VenueHealth{
			{VenueID: "venueA", Status: domain.VenueHealthy, LastSuccessAt: now, LastCheckedAt: now, LatencyMS: 12},
			{VenueID: "venueB", Status: domain.VenueOffline, ConsecutiveFailures: 5, LastCheckedAt: now},
		}},
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string `json:"status"`
		Venues []struct {
			VenueID             string `json:"venue_id"`
			Status              string `json:"status"`
			ConsecutiveFailures int    `json:"consecutive_failures"`
			LatencyMS           int64  `json:"latency_ms"`
			LastSuccessAt       string `json:"last_success_at"`
		} `json:"venues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Venues, 2)
	assert.Equal(t, "healthy", resp.Venues[0].Status)
	assert.Equal(t, "2025-06-01T12:00:00Z", resp.Venues[0].LastSuccessAt)
	assert.Equal(t, "offline", resp.Venues[1].Status)
	assert.Equal(t, 5, resp.Venues[1].ConsecutiveFailures)
	assert.Empty(t, resp.Venues[1].LastSuccessAt)
}

func TestHealthz_ReportsDraining(t *testing.T) {
	srv := newTestServer(t, &mockProcessor{draining: true})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "draining", resp.Status)
}
