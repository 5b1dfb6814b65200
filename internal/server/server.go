// Package server exposes the webhook intake endpoint and the liveness surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"dexRelay/internal/domain"
	"dexRelay/internal/ports"
	"dexRelay/internal/ratelimit"
)

// SignalHandler is the slice of the processor the HTTP layer depends on.
type SignalHandler interface {
	Process(ctx context.Context, sig *domain.Signal) (*domain.AggregatedResult, error)
	Draining() bool
}

// HealthReporter exposes the venue health snapshot for the liveness endpoint.
type HealthReporter interface {
	Snapshot() []domain.VenueHealth
}

// Config holds the dependencies for the webhook server.
type Config struct {
	Addr      string
	Tokens    map[string]string // webhook token -> source user
	Limiter   *ratelimit.Limiter
	Processor SignalHandler
	Health    HealthReporter
	Logger    ports.Logger
}

// Server is the HTTP intake boundary. Authentication, rate limiting, and
// payload validation happen here; everything downstream sees only valid
// signals.
type Server struct {
	httpServer *http.Server
	tokens     map[string]string
	limiter    *ratelimit.Limiter
	processor  SignalHandler
	health     HealthReporter
	logger     ports.Logger
}

// New creates the webhook server, validating its dependencies.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("%w: signal handler is required", ports.ErrConfigurationError)
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("%w: rate limiter is required", ports.ErrConfigurationError)
	}
	if cfg.Health == nil {
		return nil, fmt.Errorf("%w: health reporter is required", ports.ErrConfigurationError)
	}
	if len(cfg.Tokens) == 0 {
		return nil, fmt.Errorf("%w: at least one webhook token is required", ports.ErrConfigurationError)
	}

	s := &Server{
		tokens:    cfg.Tokens,
		limiter:   cfg.Limiter,
		processor: cfg.Processor,
		health:    cfg.Health,
		logger:    cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/healthz", s.handleHealthz)
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s, nil
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "webhook server listening", map[string]interface{}{
		"addr": s.httpServer.Addr,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook server failed: %w", err)
	}
	return nil
}

// Shutdown stops the listener and waits for active handlers up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routing handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type webhookRequest struct {
	Symbol string      `json:"symbol"`
	Side   string      `json:"side"`
	Size   json.Number `json:"size"`
}

type venueResult struct {
	Venue     string `json:"venue"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

type webhookResponse struct {
	Status   string        `json:"status"`
	SignalID string        `json:"signal_id"`
	Results  []venueResult `json:"results,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	SignalID  string `json:"signal_id,omitempty"`
	Dex       string `json:"dex,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errorResponse{
			Error: "method not allowed, use POST",
			Code:  "INVALID_SIGNAL",
		})
		return
	}

	if s.processor.Draining() {
		s.reject(w, ports.ErrShuttingDown, "")
		return
	}

	user, err := s.authorize(r)
	if err != nil {
		if errors.Is(err, ports.ErrInvalidToken) {
			s.logger.Warn(ctx, "webhook rejected: invalid token", map[string]interface{}{
				"remote": r.RemoteAddr,
			})
		}
		s.reject(w, err, "")
		return
	}

	sig, err := s.parseSignal(r, user)
	if err != nil {
		s.reject(w, err, "")
		return
	}

	result, err := s.processor.Process(ctx, sig)
	if err != nil {
		if !errors.Is(err, ports.ErrShuttingDown) && !errors.Is(err, ports.ErrInvalidSignal) {
			s.logger.Error(ctx, err, "signal processing failed", map[string]interface{}{
				"signal_id": sig.ID,
			})
		}
		s.reject(w, err, sig.ID)
		return
	}

	switch result.Outcome {
	case domain.OutcomeDuplicate:
		s.writeJSON(w, http.StatusOK, webhookResponse{Status: "duplicate", SignalID: sig.ID})
	case domain.OutcomeNoVenues:
		s.writeError(w, http.StatusServiceUnavailable, errorResponse{
			Error:    "no venues available to execute the signal",
			Code:     "DEX_ERROR",
			SignalID: sig.ID,
		})
	default:
		// Per-venue outcomes are reported individually; partial success is
		// still a received signal, not an error.
		resp := webhookResponse{Status: "received", SignalID: sig.ID}
		for _, attempt := range result.Attempts {
			resp.Results = append(resp.Results, venueResult{
				Venue:     attempt.VenueID,
				Status:    string(attempt.Status),
				ErrorCode: attempt.ErrorCode,
				Error:     attempt.Error,
			})
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

// authorize resolves the webhook token to a source user and applies the
// per-user rate limit.
func (s *Server) authorize(r *http.Request) (string, error) {
	user, ok := s.tokens[r.URL.Query().Get("token")]
	if !ok {
		return "", fmt.Errorf("token lookup failed: %w", ports.ErrInvalidToken)
	}
	if !s.limiter.Allow(user) {
		return "", fmt.Errorf("user %s: %w", user, ports.ErrRateLimited)
	}
	return user, nil
}

// parseSignal builds a Signal from the request body. Structural rules checked
// here produce ErrInvalidSignal; business rules run in the processor.
func (s *Server) parseSignal(r *http.Request, user string) (*domain.Signal, error) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("malformed JSON body: %w", ports.ErrInvalidSignal)
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ports.ErrInvalidSignal)
	}
	size, err := decimal.NewFromString(req.Size.String())
	if err != nil {
		return nil, fmt.Errorf("invalid size %q: %w", req.Size, ports.ErrInvalidSignal)
	}
	return domain.NewSignal(user, req.Symbol, side, size, time.Now()), nil
}

// boundaryStatus maps ingestion sentinels onto the HTTP status and error code
// taxonomy exposed at the webhook boundary.
func boundaryStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ports.ErrInvalidToken):
		return http.StatusUnauthorized, "INVALID_TOKEN"
	case errors.Is(err, ports.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, ports.ErrShuttingDown):
		return http.StatusServiceUnavailable, "SHUTTING_DOWN"
	case errors.Is(err, ports.ErrInvalidSignal):
		return http.StatusBadRequest, "INVALID_SIGNAL"
	default:
		return http.StatusInternalServerError, "DEX_ERROR"
	}
}

func (s *Server) reject(w http.ResponseWriter, err error, signalID string) {
	status, code := boundaryStatus(err)
	s.writeError(w, status, errorResponse{
		Error:    err.Error(),
		Code:     code,
		SignalID: signalID,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	type venueHealth struct {
		VenueID             string `json:"venue_id"`
		Status              string `json:"status"`
		ConsecutiveFailures int    `json:"consecutive_failures"`
		LatencyMS           int64  `json:"latency_ms"`
		LastSuccessAt       string `json:"last_success_at,omitempty"`
		LastCheckedAt       string `json:"last_checked_at,omitempty"`
	}

	status := "ok"
	if s.processor.Draining() {
		status = "draining"
	}

	venues := []venueHealth{}
	for _, vh := range s.health.Snapshot() {
		item := venueHealth{
			VenueID:             vh.VenueID,
			Status:              string(vh.Status),
			ConsecutiveFailures: vh.ConsecutiveFailures,
			LatencyMS:           vh.LatencyMS,
		}
		if !vh.LastSuccessAt.IsZero() {
			item.LastSuccessAt = vh.LastSuccessAt.UTC().Format(time.RFC3339)
		}
		if !vh.LastCheckedAt.IsZero() {
			item.LastCheckedAt = vh.LastCheckedAt.UTC().Format(time.RFC3339)
		}
		venues = append(venues, item)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"venues": venues,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(context.Background(), err, "failed to encode response", nil)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, body errorResponse) {
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	s.writeJSON(w, status, body)
}
