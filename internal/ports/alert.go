package ports

// Severity classifies operator alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertSink is the fire-and-forget notification boundary. Implementations
// must return immediately and must never propagate delivery failures back
// into the caller's control flow.
type AlertSink interface {
	Send(message string, severity Severity)
}
