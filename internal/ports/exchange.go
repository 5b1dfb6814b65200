package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"dexRelay/internal/domain"
)

// OrderStatus is the venue-reported state of a single order submission.
type OrderStatus string

const (
	OrderFilled   OrderStatus = "filled"
	OrderPartial  OrderStatus = "partial"
	OrderRejected OrderStatus = "rejected"
)

// OrderResult represents the essential details returned after submitting an order.
type OrderResult struct {
	OrderID       string          // Venue's order ID
	VenueID       string          // Venue that produced this result
	Symbol        string          // Symbol for the order
	Side          domain.Side     // Direction submitted
	Status        OrderStatus     // filled, partial, or rejected
	FilledSize    decimal.Decimal // Quantity filled
	RemainingSize decimal.Decimal // Quantity left unfilled
	AvgPrice      decimal.Decimal // Average fill price
	Raw           string          // Opaque venue response retained for audit
	Simulated     bool            // True when produced by a mock venue
	Timestamp     time.Time       // Time the result was generated
}

// Position represents an open position on a venue.
type Position struct {
	Symbol        string
	Size          decimal.Decimal // Positive for long, negative for short
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	UnrealizedPNL decimal.Decimal
}

// HealthStatus is the value (never error) result of a single health probe.
// Ordinary unavailability is reported as VenueOffline, not as a failure.
type HealthStatus struct {
	Status  domain.VenueStatus
	Latency time.Duration
}

// ExchangeAdapter defines the capability contract every venue integration
// implements, real or mock. This abstraction decouples the fan-out engine from
// venue-specific wire formats, and is the seam test mode swaps on.
type ExchangeAdapter interface {
	// VenueID returns the stable identifier for this venue.
	VenueID() string

	// Connect establishes session state with the venue. Calling it while
	// already connected is a no-op success.
	Connect(ctx context.Context) error

	// ExecuteOrder submits one order. It never retries internally; retry is
	// the caller's responsibility.
	ExecuteOrder(ctx context.Context, symbol string, side domain.Side, size decimal.Decimal) (*OrderResult, error)

	// GetPosition retrieves the open position for a symbol.
	// Returns nil, nil when flat.
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	// HealthCheck probes the venue within a bounded timeout. Unavailability
	// is a value, not an error.
	HealthCheck(ctx context.Context) HealthStatus

	// Disconnect tears down session state. Best effort, must not block
	// indefinitely.
	Disconnect(ctx context.Context) error
}
