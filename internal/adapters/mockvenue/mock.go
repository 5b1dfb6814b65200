// Package mockvenue provides a conforming ExchangeAdapter that never touches
// a network. It is the adapter set used in test mode and by the engine tests.
package mockvenue

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dexRelay/internal/domain"
	"dexRelay/internal/ports"
)

// Config holds configuration for a mock venue.
type Config struct {
	VenueID     string
	FailureRate float64       // probability of an injected transient failure per order
	RejectRate  float64       // probability of an injected terminal rejection per order
	Latency     time.Duration // artificial delay per adapter call
	Seed        int64         // RNG seed; fixed default keeps runs reproducible
	Logger      ports.Logger
}

// Adapter simulates a venue. Fills are priced from a deterministic per-symbol
// base price, never a live feed, and every result is tagged Simulated so
// downstream aggregation can exclude it.
type Adapter struct {
	cfg    Config
	logger ports.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	connected bool
	positions map[string]decimal.Decimal // net size per symbol
}

// New creates a mock venue adapter, failing fast on invalid configuration.
func New(cfg Config) (*Adapter, error) {
	if cfg.VenueID == "" {
		return nil, fmt.Errorf("venue id is required for mock venue: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for mock venue: %w", ports.ErrConfigurationError)
	}
	if cfg.FailureRate < 0 || cfg.FailureRate > 1 {
		return nil, fmt.Errorf("failure rate must be within [0,1]: %w", ports.ErrConfigurationError)
	}
	if cfg.RejectRate < 0 || cfg.RejectRate > 1 {
		return nil, fmt.Errorf("reject rate must be within [0,1]: %w", ports.ErrConfigurationError)
	}
	if cfg.FailureRate+cfg.RejectRate > 1 {
		return nil, fmt.Errorf("failure and reject rates must sum to at most 1: %w", ports.ErrConfigurationError)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &Adapter{
		cfg:       cfg,
		logger:    cfg.Logger,
		rng:       rand.New(rand.NewSource(seed)),
		positions: make(map[string]decimal.Decimal),
	}, nil
}

// VenueID returns the configured venue identifier.
func (a *Adapter) VenueID() string { return a.cfg.VenueID }

// Connect is an idempotent no-op session setup.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}
	a.connected = true
	a.logger.Debug(ctx, "mock venue connected", map[string]interface{}{"venue": a.cfg.VenueID})
	return nil
}

// ExecuteOrder synthesizes an OrderResult, optionally injecting failures
// according to the configured rates.
func (a *Adapter) ExecuteOrder(ctx context.Context, symbol string, side domain.Side, size decimal.Decimal) (*ports.OrderResult, error) {
	if err := a.delay(ctx); err != nil {
		return nil, fmt.Errorf("mock venue %s: %w", a.cfg.VenueID, ports.ErrTimeout)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("mock venue %s is not connected: %w", a.cfg.VenueID, ports.ErrConnectionFailed)
	}

	roll := a.rng.Float64()
	switch {
	case roll < a.cfg.FailureRate:
		return nil, fmt.Errorf("mock venue %s injected failure: %w", a.cfg.VenueID, ports.ErrTimeout)
	case roll < a.cfg.FailureRate+a.cfg.RejectRate:
		return nil, fmt.Errorf("mock venue %s injected rejection: %w", a.cfg.VenueID, ports.ErrOrderRejected)
	}

	price := basePrice(symbol)
	signed := size
	if side == domain.Short {
		signed = size.Neg()
	}
	a.positions[symbol] = a.positions[symbol].Add(signed)

	orderID := uuid.NewString()
	return &ports.OrderResult{
		OrderID:       orderID,
		VenueID:       a.cfg.VenueID,
		Symbol:        symbol,
		Side:          side,
		Status:        ports.OrderFilled,
		FilledSize:    size,
		RemainingSize: decimal.Zero,
		AvgPrice:      price,
		Raw:           fmt.Sprintf(`{"mock_order_id":%q,"price":%q}`, orderID, price.String()),
		Simulated:     true,
		Timestamp:     time.Now(),
	}, nil
}

// GetPosition returns the synthetic net position, or nil, nil when flat.
func (a *Adapter) GetPosition(ctx context.Context, symbol string) (*ports.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	size, ok := a.positions[symbol]
	if !ok || size.IsZero() {
		return nil, nil
	}
	price := basePrice(symbol)
	return &ports.Position{
		Symbol:     symbol,
		Size:       size,
		EntryPrice: price,
		MarkPrice:  price,
	}, nil
}

// HealthCheck reports healthy while connected and offline otherwise.
func (a *Adapter) HealthCheck(ctx context.Context) ports.HealthStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	status := domain.VenueHealthy
	if !a.connected {
		status = domain.VenueOffline
	}
	return ports.HealthStatus{Status: status, Latency: time.Millisecond}
}

// Disconnect tears down the simulated session.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

func (a *Adapter) delay(ctx context.Context) error {
	if a.cfg.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(a.cfg.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// basePrice derives a stable price from the symbol so repeated runs fill at
// the same level. Range: 100.00 to 5099.99.
func basePrice(symbol string) decimal.Decimal {
	h := fnv.New32a()
	h.Write([]byte(strings.ToUpper(symbol)))
	cents := int64(10000 + h.Sum32()%500000)
	return decimal.New(cents, -2)
}
