package domain

import "time"

// VenueStatus is the health state of one venue adapter.
type VenueStatus string

const (
	VenueHealthy  VenueStatus = "healthy"
	VenueDegraded VenueStatus = "degraded"
	VenueOffline  VenueStatus = "offline"
)

// VenueHealth is the per-adapter state machine tracked by the health monitor.
// The monitor is the only writer; the processor reads it to decide fan-out
// eligibility.
type VenueHealth struct {
	VenueID             string
	Status              VenueStatus
	ConsecutiveFailures int
	LastSuccessAt       time.Time
	LastCheckedAt       time.Time
	LatencyMS           int64
}
