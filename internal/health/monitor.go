// Package health tracks per-venue availability and drives reconnection.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"dexRelay/internal/domain"
	"dexRelay/internal/metrics"
	"dexRelay/internal/ports"
)

// Config holds tunables for the health monitor.
type Config struct {
	Interval         time.Duration // poll interval per venue, default 30s
	OfflineThreshold int           // consecutive failures before offline, default 3
	ReconnectInitial time.Duration // first reconnect delay, default 1s
	ReconnectMaxWait time.Duration // reconnect delay ceiling, default 30s
	Clock            clock.Clock
	Logger           ports.Logger
	Alerts           ports.AlertSink
}

// Monitor owns every VenueHealth record. It is the only writer; the processor
// consults it read-only to decide fan-out eligibility.
type Monitor struct {
	interval         time.Duration
	offlineThreshold int
	reconnectInitial time.Duration
	reconnectMaxWait time.Duration
	clock            clock.Clock
	logger           ports.Logger
	alerts           ports.AlertSink
	adapters         []ports.ExchangeAdapter

	mu           sync.Mutex
	state        map[string]*domain.VenueHealth
	disabled     map[string]bool
	reconnecting map[string]bool

	wg sync.WaitGroup
}

// NewMonitor creates a monitor for the given adapter set. Venues start
// healthy; the first poll corrects that view.
func NewMonitor(cfg Config, adapters []ports.ExchangeAdapter) (*Monitor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for health monitor: %w", ports.ErrConfigurationError)
	}
	if cfg.Alerts == nil {
		return nil, fmt.Errorf("alert sink is required for health monitor: %w", ports.ErrConfigurationError)
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("health monitor needs at least one adapter: %w", ports.ErrConfigurationError)
	}

	m := &Monitor{
		interval:         cfg.Interval,
		offlineThreshold: cfg.OfflineThreshold,
		reconnectInitial: cfg.ReconnectInitial,
		reconnectMaxWait: cfg.ReconnectMaxWait,
		clock:            cfg.Clock,
		logger:           cfg.Logger,
		alerts:           cfg.Alerts,
		adapters:         adapters,
		state:            make(map[string]*domain.VenueHealth),
		disabled:         make(map[string]bool),
		reconnecting:     make(map[string]bool),
	}
	if m.interval <= 0 {
		m.interval = 30 * time.Second
	}
	if m.offlineThreshold <= 0 {
		m.offlineThreshold = 3
	}
	if m.reconnectInitial <= 0 {
		m.reconnectInitial = time.Second
	}
	if m.reconnectMaxWait <= 0 {
		m.reconnectMaxWait = 30 * time.Second
	}
	if m.clock == nil {
		m.clock = clock.New()
	}

	for _, a := range adapters {
		id := a.VenueID()
		if _, dup := m.state[id]; dup {
			return nil, fmt.Errorf("duplicate venue id %q: %w", id, ports.ErrConfigurationError)
		}
		m.state[id] = &domain.VenueHealth{VenueID: id, Status: domain.VenueHealthy}
	}
	return m, nil
}

// Start launches one poll loop per venue. Loops run until ctx is canceled.
func (m *Monitor) Start(ctx context.Context) {
	for _, a := range m.adapters {
		m.wg.Add(1)
		go m.watch(ctx, a)
	}
}

// Wait blocks until every poll and reconnect loop has exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) watch(ctx context.Context, adapter ports.ExchangeAdapter) {
	defer m.wg.Done()

	m.poll(ctx, adapter)
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.isDisabled(adapter.VenueID()) {
				continue
			}
			m.poll(ctx, adapter)
		}
	}
}

func (m *Monitor) poll(ctx context.Context, adapter ports.ExchangeAdapter) {
	hs := adapter.HealthCheck(ctx)
	m.applyCheck(ctx, adapter, hs)
}

// applyCheck runs the state machine for one probe result. The transition is
// decided under the mutex, so exactly one goroutine announces each change.
func (m *Monitor) applyCheck(ctx context.Context, adapter ports.ExchangeAdapter, hs ports.HealthStatus) {
	id := adapter.VenueID()
	now := m.clock.Now()

	m.mu.Lock()
	vh := m.state[id]
	prev := vh.Status
	vh.LastCheckedAt = now
	vh.LatencyMS = hs.Latency.Milliseconds()

	if hs.Status == domain.VenueHealthy {
		vh.ConsecutiveFailures = 0
		vh.LastSuccessAt = now
		vh.Status = domain.VenueHealthy
	} else {
		vh.ConsecutiveFailures++
		switch prev {
		case domain.VenueHealthy:
			vh.Status = domain.VenueDegraded
		case domain.VenueDegraded:
			if vh.ConsecutiveFailures >= m.offlineThreshold {
				vh.Status = domain.VenueOffline
			}
		}
	}
	cur := vh.Status
	m.mu.Unlock()

	metrics.ObserveVenueHealth(id, cur)
	if cur == prev {
		return
	}

	m.announce(ctx, id, prev, cur)
	if cur != domain.VenueHealthy {
		m.spawnReconnect(ctx, adapter)
	}
}

// announce emits exactly one alert per state transition.
func (m *Monitor) announce(ctx context.Context, id string, prev, cur domain.VenueStatus) {
	m.logger.Info(ctx, "venue health transition", map[string]interface{}{
		"venue": id, "from": prev, "to": cur,
	})
	msg := fmt.Sprintf("venue %s: %s -> %s", id, prev, cur)
	switch cur {
	case domain.VenueHealthy:
		m.alerts.Send(fmt.Sprintf("venue %s recovered (%s -> healthy)", id, prev), ports.SeverityInfo)
	case domain.VenueDegraded:
		m.alerts.Send(msg, ports.SeverityWarning)
	case domain.VenueOffline:
		m.alerts.Send(msg, ports.SeverityCritical)
	}
}

// spawnReconnect starts a single reconnect loop per venue. The loop retries
// Connect with backoff capped at ReconnectMaxWait until the venue probes
// healthy, the venue is disabled, or the context ends.
func (m *Monitor) spawnReconnect(ctx context.Context, adapter ports.ExchangeAdapter) {
	id := adapter.VenueID()
	m.mu.Lock()
	if m.reconnecting[id] {
		m.mu.Unlock()
		return
	}
	m.reconnecting[id] = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.reconnecting[id] = false
			m.mu.Unlock()
		}()

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = m.reconnectInitial
		bo.Multiplier = 2
		bo.MaxInterval = m.reconnectMaxWait
		bo.MaxElapsedTime = 0 // retry until healthy or stopped

		operation := func() error {
			if m.isDisabled(id) {
				return backoff.Permanent(fmt.Errorf("venue %s administratively disabled", id))
			}
			if m.StatusOf(id) == domain.VenueHealthy {
				return nil
			}
			if err := adapter.Connect(ctx); err != nil {
				m.logger.Warn(ctx, "reconnect attempt failed", map[string]interface{}{
					"venue": id, "error": err.Error(),
				})
				return err
			}
			hs := adapter.HealthCheck(ctx)
			if hs.Status != domain.VenueHealthy {
				return fmt.Errorf("venue %s still unhealthy after reconnect", id)
			}
			m.applyCheck(ctx, adapter, hs)
			return nil
		}

		if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
			m.logger.Warn(ctx, "reconnect loop ended without recovery", map[string]interface{}{
				"venue": id, "error": err.Error(),
			})
		}
	}()
}

// Snapshot returns a copy of every venue's health record.
func (m *Monitor) Snapshot() []domain.VenueHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.VenueHealth, 0, len(m.state))
	for _, vh := range m.state {
		out = append(out, *vh)
	}
	return out
}

// StatusOf returns the current status for a venue, offline if unknown.
func (m *Monitor) StatusOf(venueID string) domain.VenueStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if vh, ok := m.state[venueID]; ok {
		return vh.Status
	}
	return domain.VenueOffline
}

// IsEligible reports whether a venue should receive fan-out. Degraded venues
// are still eligible: degraded means slow, not unavailable.
func (m *Monitor) IsEligible(venueID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled[venueID] {
		return false
	}
	vh, ok := m.state[venueID]
	return ok && vh.Status != domain.VenueOffline
}

// Disable administratively removes a venue from fan-out and stops its
// reconnect attempts.
func (m *Monitor) Disable(venueID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled[venueID] = true
}

// Enable lifts an administrative disable.
func (m *Monitor) Enable(venueID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.disabled, venueID)
}

func (m *Monitor) isDisabled(venueID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disabled[venueID]
}
