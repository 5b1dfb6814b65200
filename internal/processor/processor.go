// Package processor orchestrates the signal pipeline: dedup, validation,
// parallel fan-out across venues, aggregation, and persistence.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dexRelay/internal/dedup"
	"dexRelay/internal/domain"
	"dexRelay/internal/metrics"
	"dexRelay/internal/ports"
	"dexRelay/internal/retry"
)

// HealthView is the read-only slice of the health monitor the processor needs.
type HealthView interface {
	IsEligible(venueID string) bool
}

// Config holds the dependencies for the signal processor.
type Config struct {
	Adapters []ports.ExchangeAdapter
	Executor *retry.Executor
	Dedup    *dedup.Deduplicator
	Ledger   ports.LedgerRepository
	Alerts   ports.AlertSink
	Health   HealthView
	Logger   ports.Logger
	// VenueTimeout bounds one venue's full retry ladder. Must exceed the
	// executor's per-call timeout or retries never happen.
	VenueTimeout time.Duration
}

// Processor routes validated signals to every eligible venue in parallel.
// One slow or failing venue never delays or aborts the others.
type Processor struct {
	adapters     []ports.ExchangeAdapter
	executor     *retry.Executor
	dedup        *dedup.Deduplicator
	ledger       ports.LedgerRepository
	alerts       ports.AlertSink
	health       HealthView
	logger       ports.Logger
	venueTimeout time.Duration

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

const defaultVenueTimeout = 20 * time.Second

// New creates a Processor, validating its dependencies.
func New(cfg Config) (*Processor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: retry executor is required", ports.ErrConfigurationError)
	}
	if cfg.Dedup == nil {
		return nil, fmt.Errorf("%w: deduplicator is required", ports.ErrConfigurationError)
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("%w: ledger is required", ports.ErrConfigurationError)
	}
	if cfg.Alerts == nil {
		return nil, fmt.Errorf("%w: alert sink is required", ports.ErrConfigurationError)
	}
	if cfg.Health == nil {
		return nil, fmt.Errorf("%w: health view is required", ports.ErrConfigurationError)
	}
	if len(cfg.Adapters) == 0 {
		return nil, fmt.Errorf("%w: at least one adapter is required", ports.ErrConfigurationError)
	}
	if cfg.VenueTimeout <= 0 {
		cfg.VenueTimeout = defaultVenueTimeout
	}
	return &Processor{
		adapters:     cfg.Adapters,
		executor:     cfg.Executor,
		dedup:        cfg.Dedup,
		ledger:       cfg.Ledger,
		alerts:       cfg.Alerts,
		health:       cfg.Health,
		logger:       cfg.Logger,
		venueTimeout: cfg.VenueTimeout,
	}, nil
}

// Process runs one signal through the full pipeline and blocks until every
// venue has reached a terminal state.
func (p *Processor) Process(ctx context.Context, sig *domain.Signal) (*domain.AggregatedResult, error) {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return nil, ports.ErrShuttingDown
	}
	p.inflight.Add(1)
	p.mu.Unlock()
	defer p.inflight.Done()

	if err := sig.Validate(); err != nil {
		metrics.SignalsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ports.ErrInvalidSignal, err)
	}

	if p.dedup.IsDuplicate(sig.ID) {
		p.logger.Info(ctx, "duplicate signal suppressed", map[string]interface{}{
			"signal_id": sig.ID,
			"symbol":    sig.Symbol,
		})
		metrics.SignalsTotal.WithLabelValues(string(domain.OutcomeDuplicate)).Inc()
		return &domain.AggregatedResult{SignalID: sig.ID, Outcome: domain.OutcomeDuplicate}, nil
	}

	eligible := p.eligibleAdapters()
	if len(eligible) == 0 {
		p.logger.Error(ctx, nil, "no eligible venues for signal", map[string]interface{}{
			"signal_id": sig.ID,
		})
		p.alerts.Send(fmt.Sprintf("signal %s dropped: no eligible venues", sig.ID), ports.SeverityCritical)
		metrics.SignalsTotal.WithLabelValues(string(domain.OutcomeNoVenues)).Inc()
		return &domain.AggregatedResult{SignalID: sig.ID, Outcome: domain.OutcomeNoVenues}, nil
	}

	p.logger.Info(ctx, "dispatching signal", map[string]interface{}{
		"signal_id": sig.ID,
		"symbol":    sig.Symbol,
		"side":      string(sig.Side),
		"size":      sig.Size.String(),
		"venues":    len(eligible),
	})

	attempts := p.fanOut(ctx, eligible, sig)

	result := &domain.AggregatedResult{SignalID: sig.ID, Attempts: attempts, Outcome: domain.OutcomeFailed}
	if result.FilledCount() > 0 {
		result.Outcome = domain.OutcomeSuccess
	} else {
		p.alerts.Send(fmt.Sprintf("signal %s failed on all %d venues", sig.ID, len(attempts)), ports.SeverityCritical)
	}
	metrics.SignalsTotal.WithLabelValues(string(result.Outcome)).Inc()

	p.logger.Info(ctx, "signal processed", map[string]interface{}{
		"signal_id": sig.ID,
		"outcome":   string(result.Outcome),
		"filled":    result.FilledCount(),
		"venues":    len(attempts),
	})
	return result, nil
}

// fanOut executes the signal on every adapter concurrently and waits for all
// of them. Each venue gets its own deadline so the slowest venue bounds the
// overall latency, never the sum.
func (p *Processor) fanOut(ctx context.Context, adapters []ports.ExchangeAdapter, sig *domain.Signal) []*domain.ExecutionAttempt {
	attempts := make([]*domain.ExecutionAttempt, len(adapters))
	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter ports.ExchangeAdapter) {
			defer wg.Done()
			venueCtx, cancel := context.WithTimeout(ctx, p.venueTimeout)
			defer cancel()
			attempt := p.executor.Execute(venueCtx, adapter, sig)
			p.record(ctx, attempt)
			attempts[i] = attempt
		}(i, adapter)
	}
	wg.Wait()
	return attempts
}

// record persists one terminal attempt and emits its instrumentation. A ledger
// write failure is logged but never fails the signal: the order already
// reached (or terminally failed to reach) the venue.
func (p *Processor) record(ctx context.Context, attempt *domain.ExecutionAttempt) {
	metrics.AttemptsTotal.WithLabelValues(attempt.VenueID, string(attempt.Status)).Inc()
	metrics.ExecutionLatency.WithLabelValues(attempt.VenueID).Observe(float64(attempt.LatencyMS) / 1000)

	if _, err := p.ledger.Append(ctx, attempt); err != nil {
		p.logger.Error(ctx, err, "failed to append execution attempt to ledger", map[string]interface{}{
			"signal_id": attempt.SignalID,
			"venue":     attempt.VenueID,
		})
	}

	switch attempt.Status {
	case domain.AttemptRejected, domain.AttemptFailed:
		p.alerts.Send(fmt.Sprintf("venue %s %s signal %s: %s",
			attempt.VenueID, attempt.Status, attempt.SignalID, attempt.Error), ports.SeverityWarning)
	case domain.AttemptPartial:
		p.alerts.Send(fmt.Sprintf("venue %s partially filled signal %s: %s of %s remaining",
			attempt.VenueID, attempt.SignalID, attempt.RemainingSize, attempt.RemainingSize.Add(attempt.FilledSize)), ports.SeverityInfo)
	}
}

func (p *Processor) eligibleAdapters() []ports.ExchangeAdapter {
	out := make([]ports.ExchangeAdapter, 0, len(p.adapters))
	for _, a := range p.adapters {
		if p.health.IsEligible(a.VenueID()) {
			out = append(out, a)
		}
	}
	return out
}

// BeginDrain stops accepting new signals. Already-accepted signals keep running.
func (p *Processor) BeginDrain() {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()
}

// Draining reports whether the processor has begun shutting down.
func (p *Processor) Draining() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draining
}

// Drain blocks until every in-flight signal completes or the grace period
// elapses. It returns nil when the pipeline drained cleanly and an error when
// signals were still running at the deadline.
func (p *Processor) Drain(grace time.Duration) error {
	p.BeginDrain()
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("drain deadline exceeded after %s", grace)
	}
}
