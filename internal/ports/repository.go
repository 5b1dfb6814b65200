package ports

import (
	"context"
	"time"

	"dexRelay/internal/domain"
)

// VenueStats aggregates ledger outcomes for one venue. Simulated attempts are
// excluded so mock-mode runs do not skew production numbers.
type VenueStats struct {
	VenueID     string
	Attempts    int
	Filled      int
	Partial     int
	Rejected    int
	Failed      int
	SuccessRate float64
}

// LedgerRepository defines the interface for the append-only execution ledger.
// The processor appends the terminal attempt per (signal, venue) pair; the
// query side serves reporting and dashboard layers.
type LedgerRepository interface {
	// Append persists a terminal execution attempt and returns its assigned ID.
	Append(ctx context.Context, attempt *domain.ExecutionAttempt) (int64, error)
	// FindBySignal retrieves every attempt recorded for a signal.
	FindBySignal(ctx context.Context, signalID string) ([]*domain.ExecutionAttempt, error)
	// FindByVenue retrieves the most recent attempts for a venue, up to a limit.
	FindByVenue(ctx context.Context, venueID string, limit int) ([]*domain.ExecutionAttempt, error)
	// FindByTimeRange retrieves attempts created within [from, to), oldest first.
	FindByTimeRange(ctx context.Context, from, to time.Time) ([]*domain.ExecutionAttempt, error)
	// VenueStats aggregates non-simulated outcomes per venue.
	VenueStats(ctx context.Context) ([]VenueStats, error)
}
