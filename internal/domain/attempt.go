package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AttemptStatus is the terminal state of one venue's attempt for one signal.
type AttemptStatus string

const (
	AttemptPending  AttemptStatus = "pending"
	AttemptFilled   AttemptStatus = "filled"
	AttemptPartial  AttemptStatus = "partial"
	AttemptRejected AttemptStatus = "rejected"
	AttemptFailed   AttemptStatus = "failed"
)

// ExecutionAttempt records one venue's outcome for one signal. The retry
// executor owns it until it is appended to the ledger; after that the ledger
// owns it for read access.
type ExecutionAttempt struct {
	ID            int64
	SignalID      string
	VenueID       string
	Status        AttemptStatus
	FilledSize    decimal.Decimal
	RemainingSize decimal.Decimal
	AvgPrice      decimal.Decimal
	LatencyMS     int64
	RawResponse   string
	AttemptNumber int
	Simulated     bool
	Error         string
	ErrorCode     string
	CreatedAt     time.Time
}

// Succeeded reports whether the venue filled at least part of the order.
func (a *ExecutionAttempt) Succeeded() bool {
	return a.Status == AttemptFilled || a.Status == AttemptPartial
}

// SignalOutcome is the aggregated verdict across all venues for one signal.
type SignalOutcome string

const (
	OutcomeSuccess   SignalOutcome = "success"
	OutcomeFailed    SignalOutcome = "failed"
	OutcomeDuplicate SignalOutcome = "duplicate"
	OutcomeNoVenues  SignalOutcome = "no_venues"
)

// AggregatedResult summarizes every venue's attempt for one processed signal.
// Per-venue status is reported individually: 4 of 5 venues succeeding is a
// success, not a system failure.
type AggregatedResult struct {
	SignalID string
	Outcome  SignalOutcome
	Attempts []*ExecutionAttempt
}

// FilledCount returns the number of venues that filled the order, fully or partially.
func (r *AggregatedResult) FilledCount() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Succeeded() {
			n++
		}
	}
	return n
}
