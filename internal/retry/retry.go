// Package retry wraps a single adapter call with categorized retry semantics.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"dexRelay/internal/domain"
	"dexRelay/internal/ports"
)

// Config holds tunables for the retry executor. Zero values fall back to the
// production defaults: 3 retries at 1s/2s/4s with ±20% jitter, 10s per call.
type Config struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxRetries   uint64
	Jitter       float64
	CallTimeout  time.Duration
	Logger       ports.Logger
}

// Executor retries transient venue failures with bounded backoff. Terminal
// failures return immediately. It only reports outcomes; alerting is the
// caller's responsibility.
type Executor struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	maxRetries   uint64
	jitter       float64
	callTimeout  time.Duration
	logger       ports.Logger
}

// New creates a retry executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for retry executor: %w", ports.ErrConfigurationError)
	}
	e := &Executor{
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		maxRetries:   cfg.MaxRetries,
		jitter:       cfg.Jitter,
		callTimeout:  cfg.CallTimeout,
		logger:       cfg.Logger,
	}
	if e.initialDelay <= 0 {
		e.initialDelay = time.Second
	}
	if e.maxDelay <= 0 {
		e.maxDelay = 4 * time.Second
	}
	if e.maxRetries == 0 {
		e.maxRetries = 3
	}
	if e.jitter <= 0 {
		e.jitter = 0.2
	}
	if e.callTimeout <= 0 {
		e.callTimeout = 10 * time.Second
	}
	return e, nil
}

// Execute submits one order through the adapter, retrying transient failures,
// and returns the terminal ExecutionAttempt for the (signal, venue) pair.
// It never panics the fan-out: every failure mode becomes a result value.
func (e *Executor) Execute(ctx context.Context, adapter ports.ExchangeAdapter, sig *domain.Signal) *domain.ExecutionAttempt {
	var (
		attemptNo int
		result    *ports.OrderResult
	)
	start := time.Now()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.initialDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = e.jitter
	bo.MaxInterval = e.maxDelay
	bo.MaxElapsedTime = 0 // bounded by MaxRetries, not elapsed time

	operation := func() error {
		attemptNo++
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()

		res, err := adapter.ExecuteOrder(callCtx, sig.Symbol, sig.Side, sig.Size)
		if err != nil {
			if ports.IsTransient(err) {
				e.logger.Warn(ctx, "transient venue failure, will retry", map[string]interface{}{
					"venue":    adapter.VenueID(),
					"signalID": sig.ID,
					"attempt":  attemptNo,
					"error":    err.Error(),
				})
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, e.maxRetries), ctx))

	attempt := &domain.ExecutionAttempt{
		SignalID:      sig.ID,
		VenueID:       adapter.VenueID(),
		AttemptNumber: attemptNo,
		LatencyMS:     time.Since(start).Milliseconds(),
		CreatedAt:     time.Now(),
	}

	if err != nil {
		attempt.Status = failureStatus(err)
		attempt.Error = err.Error()
		attempt.ErrorCode = ports.ErrorCode(err)
		return attempt
	}

	attempt.Status = attemptStatus(result.Status)
	attempt.FilledSize = result.FilledSize
	attempt.RemainingSize = result.RemainingSize
	attempt.AvgPrice = result.AvgPrice
	attempt.RawResponse = result.Raw
	attempt.Simulated = result.Simulated
	if attempt.Status == domain.AttemptRejected {
		attempt.ErrorCode = "DEX_REJECTED"
	}
	return attempt
}

// failureStatus distinguishes business rejections from exhausted/transport
// failures in the recorded attempt.
func failureStatus(err error) domain.AttemptStatus {
	if ports.ErrorCode(err) == "DEX_REJECTED" {
		return domain.AttemptRejected
	}
	return domain.AttemptFailed
}

func attemptStatus(s ports.OrderStatus) domain.AttemptStatus {
	switch s {
	case ports.OrderFilled:
		return domain.AttemptFilled
	case ports.OrderPartial:
		return domain.AttemptPartial
	case ports.OrderRejected:
		return domain.AttemptRejected
	default:
		return domain.AttemptFailed
	}
}
