package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for fatal errors before the logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"dexRelay/config"
	"dexRelay/internal/adapters/alerting"
	"dexRelay/internal/adapters/binanceclient"
	"dexRelay/internal/adapters/logger"
	"dexRelay/internal/adapters/mockvenue"
	"dexRelay/internal/adapters/sqlite"
	"dexRelay/internal/dedup"
	"dexRelay/internal/health"
	"dexRelay/internal/metrics"
	"dexRelay/internal/ports"
	"dexRelay/internal/processor"
	"dexRelay/internal/ratelimit"
	"dexRelay/internal/retry"
	"dexRelay/internal/server"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Ledger (Database Adapter)
	ledger, err := sqlite.NewLedger(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize execution ledger")
		log.Fatalf("FATAL: Failed to initialize execution ledger: %v", err)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing execution ledger")
		}
	}()
	appLogger.Info(context.Background(), "Execution ledger initialized", map[string]interface{}{"path": cfg.DBPath})

	// 4. Initialize Alert Sink
	alertSink, err := alerting.NewSink(alerting.Config{
		QueueSize: cfg.AlertQueueSize,
		Notifier:  &alerting.LogNotifier{Logger: appLogger},
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize alert sink")
		log.Fatalf("FATAL: Failed to initialize alert sink: %v", err)
	}
	defer alertSink.Close()

	// 5. Build the Venue Adapter Set
	adapters, err := buildAdapters(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to build venue adapters")
		log.Fatalf("FATAL: Failed to build venue adapters: %v", err)
	}
	appLogger.Info(context.Background(), "Venue adapters initialized", map[string]interface{}{
		"count":     len(adapters),
		"test_mode": cfg.TestMode,
	})

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 30*time.Second)
	for _, a := range adapters {
		if err := a.Connect(connectCtx); err != nil {
			// A venue down at startup is degraded, not fatal; the health
			// monitor keeps reconnecting.
			appLogger.Warn(context.Background(), "Venue connect failed at startup", map[string]interface{}{
				"venue": a.VenueID(),
				"error": err.Error(),
			})
		}
	}
	connectCancel()

	// 6. Initialize Health Monitor
	monitor, err := health.NewMonitor(health.Config{
		Interval:         cfg.HealthInterval,
		OfflineThreshold: cfg.OfflineThreshold,
		ReconnectMaxWait: cfg.ReconnectMaxWait,
		Clock:            clock.New(),
		Logger:           appLogger,
		Alerts:           alertSink,
	}, adapters)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize health monitor")
		log.Fatalf("FATAL: Failed to initialize health monitor: %v", err)
	}

	// 7. Initialize Retry Executor
	executor, err := retry.New(retry.Config{
		InitialDelay: cfg.RetryInitialDelay,
		MaxRetries:   uint64(cfg.RetryMaxRetries),
		CallTimeout:  cfg.OrderCallTimeout,
		Logger:       appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize retry executor")
		log.Fatalf("FATAL: Failed to initialize retry executor: %v", err)
	}

	// 8. Initialize Signal Processor
	proc, err := processor.New(processor.Config{
		Adapters:     adapters,
		Executor:     executor,
		Dedup:        dedup.New(cfg.DedupTTL, clock.New()),
		Ledger:       ledger,
		Alerts:       alertSink,
		Health:       monitor,
		Logger:       appLogger,
		VenueTimeout: cfg.VenueTimeout,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize signal processor")
		log.Fatalf("FATAL: Failed to initialize signal processor: %v", err)
	}

	// 9. Initialize Webhook Server
	srv, err := server.New(server.Config{
		Addr:      cfg.ListenAddr,
		Tokens:    cfg.WebhookTokens,
		Limiter:   ratelimit.New(cfg.RateLimitBurst, cfg.RateLimitPerSecond, clock.New()),
		Processor: proc,
		Health:    monitor,
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize webhook server")
		log.Fatalf("FATAL: Failed to initialize webhook server: %v", err)
	}

	// 10. Start Everything
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	monitor.Start(monitorCtx)

	metricsSrv := metrics.Serve(cfg.MetricsAddr)
	appLogger.Info(context.Background(), "Metrics endpoint started", map[string]interface{}{"addr": cfg.MetricsAddr})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// 11. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		appLogger.Info(context.Background(), "Shutdown signal received", map[string]interface{}{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil {
			appLogger.Error(context.Background(), err, "Webhook server failed")
		}
	}

	// 12. Graceful Shutdown: stop intake, drain in-flight signals, then tear down.
	proc.BeginDrain()
	if err := proc.Drain(cfg.ShutdownGrace); err != nil {
		appLogger.Warn(context.Background(), "Signals still in flight at shutdown deadline", map[string]interface{}{
			"error": err.Error(),
		})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, err, "Error shutting down webhook server")
	}
	_ = metricsSrv.Shutdown(shutdownCtx)

	stopMonitor()
	monitor.Wait()

	for _, a := range adapters {
		if err := a.Disconnect(shutdownCtx); err != nil {
			appLogger.Warn(shutdownCtx, "Error disconnecting venue", map[string]interface{}{
				"venue": a.VenueID(),
				"error": err.Error(),
			})
		}
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

// buildAdapters assembles the venue adapter set. Test mode swaps the whole set
// for mock venues; every other component runs the identical code path.
func buildAdapters(cfg *config.Config, appLogger ports.Logger) ([]ports.ExchangeAdapter, error) {
	if cfg.TestMode {
		adapters := make([]ports.ExchangeAdapter, 0, 2)
		for _, id := range []string{"mockA", "mockB"} {
			a, err := mockvenue.New(mockvenue.Config{
				VenueID:     id,
				FailureRate: cfg.MockFailureRate,
				RejectRate:  cfg.MockRejectRate,
				Logger:      appLogger,
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, a)
		}
		return adapters, nil
	}

	venueSet, err := config.LoadVenues(cfg.VenuesPath)
	if err != nil {
		return nil, err
	}
	enabled := venueSet.Enabled()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no enabled venues in %q: %w", cfg.VenuesPath, ports.ErrConfigurationError)
	}

	adapters := make([]ports.ExchangeAdapter, 0, len(enabled))
	for _, vc := range enabled {
		var a ports.ExchangeAdapter
		switch vc.Driver {
		case "binance":
			a, err = binanceclient.New(binanceclient.Config{
				VenueID:       vc.ID,
				APIKey:        vc.APIKey,
				SecretKey:     vc.APISecret,
				UseTestnet:    vc.Testnet,
				Logger:        appLogger,
				HealthTimeout: cfg.HealthTimeout,
			})
		case "mock":
			a, err = mockvenue.New(mockvenue.Config{
				VenueID:     vc.ID,
				FailureRate: cfg.MockFailureRate,
				RejectRate:  cfg.MockRejectRate,
				Logger:      appLogger,
			})
		default:
			err = fmt.Errorf("unknown venue driver %q: %w", vc.Driver, ports.ErrConfigurationError)
		}
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
