// Package binanceclient implements the ExchangeAdapter contract against
// Binance perpetual futures using the go-binance library.
package binanceclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"dexRelay/internal/domain"
	"dexRelay/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	defaultHealthTimeout = 10 * time.Second
)

// Adapter implements the ports.ExchangeAdapter interface for one Binance
// futures account.
type Adapter struct {
	venueID       string
	futuresClient *futures.Client
	logger        ports.Logger
	healthTimeout time.Duration

	mu        sync.Mutex
	connected bool
}

// Config holds configuration specific to the Binance adapter.
type Config struct {
	VenueID       string
	APIKey        string
	SecretKey     string
	UseTestnet    bool
	Logger        ports.Logger
	HealthTimeout time.Duration
}

// New creates a Binance venue adapter. Construction fails fast on missing
// credentials rather than allowing a partially conforming adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance adapter: %w", ports.ErrConfigurationError)
	}
	if cfg.VenueID == "" {
		return nil, fmt.Errorf("venue id is required for Binance adapter: %w", ports.ErrConfigurationError)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("API key and secret are required for Binance adapter: %w", ports.ErrConfigurationError)
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance adapter configured", map[string]interface{}{
		"venue":   cfg.VenueID,
		"baseURL": client.BaseURL,
		"testnet": cfg.UseTestnet,
	})

	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = defaultHealthTimeout
	}

	return &Adapter{
		venueID:       cfg.VenueID,
		futuresClient: client,
		logger:        cfg.Logger,
		healthTimeout: healthTimeout,
	}, nil
}

// VenueID returns the configured venue identifier.
func (a *Adapter) VenueID() string { return a.venueID }

// Connect verifies reachability and synchronizes server time. Calling it
// while already connected is a no-op success.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}

	if err := a.futuresClient.NewPingService().Do(ctx); err != nil {
		return a.handleError(ctx, err, "Connect")
	}
	if _, err := a.futuresClient.NewSetServerTimeService().Do(ctx); err != nil {
		return a.handleError(ctx, err, "Connect")
	}

	a.connected = true
	a.logger.Info(ctx, "Binance adapter connected", map[string]interface{}{"venue": a.venueID})
	return nil
}

// ExecuteOrder submits one market order. It never retries internally.
func (a *Adapter) ExecuteOrder(ctx context.Context, symbol string, side domain.Side, size decimal.Decimal) (*ports.OrderResult, error) {
	op := "ExecuteOrder"

	binanceSide := futures.SideTypeBuy
	if side == domain.Short {
		binanceSide = futures.SideTypeSell
	}

	order, err := a.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(binanceSide).
		Type(futures.OrderTypeMarket).
		Quantity(size.String()).
		Do(ctx)
	if err != nil {
		return nil, a.handleError(ctx, err, op)
	}

	result := a.translateOrder(order, side)
	a.logger.Info(ctx, op+" successful", map[string]interface{}{
		"venue":   a.venueID,
		"symbol":  symbol,
		"side":    side,
		"size":    size.String(),
		"orderID": result.OrderID,
		"status":  result.Status,
	})
	return result, nil
}

// GetPosition retrieves the open position for a symbol. Returns nil, nil when flat.
func (a *Adapter) GetPosition(ctx context.Context, symbol string) (*ports.Position, error) {
	op := "GetPosition"
	positions, err := a.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, a.handleError(ctx, err, op)
	}
	for _, pos := range positions {
		size, parseErr := decimal.NewFromString(pos.PositionAmt)
		if parseErr != nil || size.IsZero() {
			continue
		}
		entry, _ := decimal.NewFromString(pos.EntryPrice)
		mark, _ := decimal.NewFromString(pos.MarkPrice)
		pnl, _ := decimal.NewFromString(pos.UnRealizedProfit)
		return &ports.Position{
			Symbol:        pos.Symbol,
			Size:          size,
			EntryPrice:    entry,
			MarkPrice:     mark,
			UnrealizedPNL: pnl,
		}, nil
	}
	return nil, nil
}

// HealthCheck pings the venue within a bounded timeout. Unavailability is
// reported as a value, never an error.
func (a *Adapter) HealthCheck(ctx context.Context) ports.HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, a.healthTimeout)
	defer cancel()

	start := time.Now()
	err := a.futuresClient.NewPingService().Do(probeCtx)
	latency := time.Since(start)

	status := domain.VenueHealthy
	if err != nil {
		status = domain.VenueOffline
		a.logger.Debug(ctx, "Binance health probe failed", map[string]interface{}{
			"venue": a.venueID,
			"error": err.Error(),
		})
	}
	return ports.HealthStatus{Status: status, Latency: latency}
}

// Disconnect clears session state. The REST client holds no persistent
// connection, so this only flips the connected flag.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	a.logger.Info(ctx, "Binance adapter disconnected", map[string]interface{}{"venue": a.venueID})
	return nil
}

// translateOrder converts a go-binance order response into the venue-neutral
// OrderResult, retaining the raw payload for audit.
func (a *Adapter) translateOrder(order *futures.CreateOrderResponse, side domain.Side) *ports.OrderResult {
	executed, _ := decimal.NewFromString(order.ExecutedQuantity)
	orig, _ := decimal.NewFromString(order.OrigQuantity)
	avgPrice, _ := decimal.NewFromString(order.AvgPrice)

	raw, err := json.Marshal(order)
	if err != nil {
		raw = []byte(fmt.Sprintf(`{"order_id":%d}`, order.OrderID))
	}

	return &ports.OrderResult{
		OrderID:       fmt.Sprintf("%d", order.OrderID),
		VenueID:       a.venueID,
		Symbol:        order.Symbol,
		Side:          side,
		Status:        translateStatus(order.Status),
		FilledSize:    executed,
		RemainingSize: orig.Sub(executed),
		AvgPrice:      avgPrice,
		Raw:           string(raw),
		Simulated:     false,
		Timestamp:     time.UnixMilli(order.UpdateTime),
	}
}

func translateStatus(s futures.OrderStatusType) ports.OrderStatus {
	switch s {
	case futures.OrderStatusTypeFilled:
		return ports.OrderFilled
	case futures.OrderStatusTypeRejected, futures.OrderStatusTypeExpired, futures.OrderStatusTypeCanceled:
		return ports.OrderRejected
	default:
		// NEW and PARTIALLY_FILLED: the venue accepted the order but has not
		// fully filled it yet.
		return ports.OrderPartial
	}
}

// handleError translates common Binance API errors into standardized ports errors.
func (a *Adapter) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"venue": a.venueID, "operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrVenueRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015: // Bad signature / API key problems
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117,
			-1120, -1121, -1125, -1127, -1128, -1130, -4003, -4014, -4015: // Parameter/format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010, -2022: // Order rejected
			mappedErr = ports.ErrOrderRejected
		case -2019, -3005, -3041, -4047: // Margin or balance insufficient
			mappedErr = ports.ErrInsufficientFunds
		default:
			if apiErr.Code >= 500 || apiErr.Code == -1001 { // Internal error / disconnect
				mappedErr = ports.ErrVenueUnavailable
			} else {
				mappedErr = ports.ErrUnknown
			}
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		a.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "no such host") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	a.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}
