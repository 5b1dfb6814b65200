package ports

import (
	"context"
	"errors"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrConfigurationError = errors.New("invalid or missing configuration")
	ErrShuttingDown       = errors.New("service is shutting down")

	// Ingestion Errors
	ErrInvalidSignal = errors.New("invalid signal payload")
	ErrInvalidToken  = errors.New("webhook token is invalid")
	ErrRateLimited   = errors.New("rate limit exceeded")

	// Venue Errors: transient (retrying may succeed)
	ErrTimeout          = errors.New("venue operation timed out")
	ErrConnectionFailed = errors.New("failed to connect to the venue")
	ErrVenueUnavailable = errors.New("venue API is unavailable")
	ErrVenueRateLimited = errors.New("venue API rate limit exceeded")

	// Venue Errors: terminal (retrying will not help)
	ErrOrderRejected        = errors.New("venue rejected the order")
	ErrInsufficientFunds    = errors.New("insufficient funds for order")
	ErrInvalidRequest       = errors.New("invalid request parameters or format")
	ErrAuthenticationFailed = errors.New("venue authentication failed (check API keys)")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)

// IsTransient reports whether the error category is worth retrying:
// timeouts, dropped connections, and server-side unavailability.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrVenueUnavailable) ||
		errors.Is(err, ErrVenueRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsTerminal reports whether retrying cannot help. Anything not classified
// as transient is terminal, so an unknown failure is never re-submitted and
// cannot double-place an order.
func IsTerminal(err error) bool {
	return err != nil && !IsTransient(err)
}

// ErrorCode maps a venue failure onto the error code taxonomy exposed at the
// webhook boundary.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "DEX_TIMEOUT"
	case errors.Is(err, ErrOrderRejected),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrAuthenticationFailed):
		return "DEX_REJECTED"
	default:
		return "DEX_ERROR"
	}
}
