// Package alerting implements the AlertSink boundary as a bounded queue with
// a single consumer. Delivery mechanics live behind the Notifier interface so
// the engine never depends on a specific messaging provider.
package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dexRelay/internal/metrics"
	"dexRelay/internal/ports"
)

const deliveryTimeout = 10 * time.Second

// Notifier delivers one rendered alert to the operator.
type Notifier interface {
	Notify(ctx context.Context, message string, severity ports.Severity) error
}

// Config holds configuration for the alert sink.
type Config struct {
	QueueSize int
	Notifier  Notifier
	Logger    ports.Logger
}

type alert struct {
	message  string
	severity ports.Severity
}

// Sink implements ports.AlertSink. Send never blocks: when the queue is full
// the alert is dropped and counted, never backed up into the caller.
type Sink struct {
	logger   ports.Logger
	notifier Notifier
	queue    chan alert
	done     chan struct{}
	once     sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewSink creates the sink and starts its consumer goroutine.
func NewSink(cfg Config) (*Sink, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for alert sink: %w", ports.ErrConfigurationError)
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required for alert sink: %w", ports.ErrConfigurationError)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	s := &Sink{
		logger:   cfg.Logger,
		notifier: cfg.Notifier,
		queue:    make(chan alert, size),
		done:     make(chan struct{}),
	}
	go s.consume()
	return s, nil
}

// Send enqueues an alert for delivery and returns immediately. Calling Send
// after Close drops the alert; it never panics or blocks, so stragglers
// finishing during shutdown stay safe.
func (s *Sink) Send(message string, severity ports.Severity) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(message, severity, "alert sink closed, dropping alert")
		return
	}
	select {
	case s.queue <- alert{message: message, severity: severity}:
	default:
		s.drop(message, severity, "alert queue full, dropping alert")
	}
}

func (s *Sink) drop(message string, severity ports.Severity, reason string) {
	metrics.AlertsDropped.Inc()
	s.logger.Warn(context.Background(), reason, map[string]interface{}{
		"severity": severity,
		"message":  message,
	})
}

// Close stops accepting alerts, drains the queue, and waits for the consumer.
func (s *Sink) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-s.done
	})
}

func (s *Sink) consume() {
	defer close(s.done)
	for a := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := s.notifier.Notify(ctx, a.message, a.severity); err != nil {
			// Delivery failures stay here; they never reach the caller.
			s.logger.Error(ctx, err, "alert delivery failed", map[string]interface{}{
				"severity": a.severity,
			})
		}
		cancel()
	}
}

// LogNotifier writes alerts to the log. It is the default notifier when no
// external messaging integration is configured.
type LogNotifier struct {
	Logger ports.Logger
}

// Notify logs the alert at a level matching its severity.
func (n *LogNotifier) Notify(ctx context.Context, message string, severity ports.Severity) error {
	fields := map[string]interface{}{"severity": severity}
	switch severity {
	case ports.SeverityCritical:
		n.Logger.Error(ctx, nil, "ALERT: "+message, fields)
	case ports.SeverityWarning:
		n.Logger.Warn(ctx, "ALERT: "+message, fields)
	default:
		n.Logger.Info(ctx, "ALERT: "+message, fields)
	}
	return nil
}
