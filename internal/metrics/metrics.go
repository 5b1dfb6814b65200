// Package metrics exposes prometheus instrumentation for the execution engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dexRelay/internal/domain"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals by ingestion outcome"},
		[]string{"outcome"},
	)
	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "execution_attempts_total", Help: "Terminal execution attempts by venue and status"},
		[]string{"venue", "status"},
	)
	VenueHealthStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "venue_health_status", Help: "Venue health: 2 healthy, 1 degraded, 0 offline"},
		[]string{"venue"},
	)
	ExecutionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "execution_latency_seconds",
			Help:    "Per-venue order execution latency including retries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"venue"},
	)
	AlertsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "alerts_dropped_total", Help: "Alerts dropped because the sink queue was full"},
	)
)

func init() {
	prometheus.MustRegister(SignalsTotal, AttemptsTotal, VenueHealthStatus, ExecutionLatency, AlertsDropped)
}

// ObserveVenueHealth records the numeric health level for a venue.
func ObserveVenueHealth(venue string, status domain.VenueStatus) {
	var level float64
	switch status {
	case domain.VenueHealthy:
		level = 2
	case domain.VenueDegraded:
		level = 1
	case domain.VenueOffline:
		level = 0
	}
	VenueHealthStatus.WithLabelValues(venue).Set(level)
}

// Serve starts the metrics endpoint on its own listener.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
