package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// HTTP
	ListenAddr  string
	MetricsAddr string

	// Webhook auth: token -> user
	WebhookTokens map[string]string

	// Rate limiting (per webhook token)
	RateLimitBurst     int
	RateLimitPerSecond float64

	// Execution
	TestMode        bool    // swap the adapter set for mock venues
	MockFailureRate float64 // transient failure injection for mock venues
	MockRejectRate  float64 // terminal rejection injection for mock venues
	VenuesPath      string  // YAML file describing the venue set

	// Dedup
	DedupTTL time.Duration

	// Retry
	RetryInitialDelay time.Duration
	RetryMaxRetries   int
	OrderCallTimeout  time.Duration // per adapter call
	VenueTimeout      time.Duration // per-venue fan-out ceiling

	// Health monitoring
	HealthInterval   time.Duration
	HealthTimeout    time.Duration
	OfflineThreshold int
	ReconnectMaxWait time.Duration

	// Shutdown
	ShutdownGrace time.Duration

	// Alerting
	AlertQueueSize int

	// Database
	DBPath string

	// Logging
	LogLevel string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.ListenAddr = getEnv("LISTEN_ADDR", ":8080")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")

	// Webhook tokens: "token1:alice,token2:bob"
	cfg.WebhookTokens, err = parseTokenMap(getEnv("WEBHOOK_TOKENS", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid WEBHOOK_TOKENS: %v", err))
	}
	if len(cfg.WebhookTokens) == 0 {
		errs = append(errs, "WEBHOOK_TOKENS must define at least one token:user pair")
	}

	cfg.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", 10)
	if cfg.RateLimitBurst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}
	cfg.RateLimitPerSecond = getEnvAsFloat("RATE_LIMIT_PER_SECOND", 2.0)
	if cfg.RateLimitPerSecond <= 0 {
		errs = append(errs, "RATE_LIMIT_PER_SECOND must be positive")
	}

	cfg.TestMode = getEnvAsBool("TEST_MODE", false)
	cfg.MockFailureRate = getEnvAsFloat("MOCK_FAILURE_RATE", 0.0)
	if cfg.MockFailureRate < 0 || cfg.MockFailureRate > 1 {
		errs = append(errs, "MOCK_FAILURE_RATE must be between 0.0 and 1.0")
	}
	cfg.MockRejectRate = getEnvAsFloat("MOCK_REJECT_RATE", 0.0)
	if cfg.MockRejectRate < 0 || cfg.MockRejectRate > 1 {
		errs = append(errs, "MOCK_REJECT_RATE must be between 0.0 and 1.0")
	}

	cfg.VenuesPath = getEnv("VENUES_PATH", "./config/venues.yaml")
	if !cfg.TestMode && cfg.VenuesPath == "" {
		errs = append(errs, "VENUES_PATH must be set when TEST_MODE is disabled")
	}

	// The dedup window is deliberately configurable; 60s is the default TTL.
	dedupSeconds := getEnvAsInt("DEDUP_TTL_SECONDS", 60)
	if dedupSeconds <= 0 {
		errs = append(errs, "DEDUP_TTL_SECONDS must be positive")
	}
	cfg.DedupTTL = time.Duration(dedupSeconds) * time.Second

	cfg.RetryInitialDelay = time.Duration(getEnvAsInt("RETRY_INITIAL_DELAY_MS", 1000)) * time.Millisecond
	if cfg.RetryInitialDelay <= 0 {
		errs = append(errs, "RETRY_INITIAL_DELAY_MS must be positive")
	}
	cfg.RetryMaxRetries = getEnvAsInt("RETRY_MAX_RETRIES", 3)
	if cfg.RetryMaxRetries < 0 {
		errs = append(errs, "RETRY_MAX_RETRIES cannot be negative")
	}

	cfg.OrderCallTimeout = time.Duration(getEnvAsInt("ORDER_CALL_TIMEOUT_SECONDS", 10)) * time.Second
	if cfg.OrderCallTimeout <= 0 {
		errs = append(errs, "ORDER_CALL_TIMEOUT_SECONDS must be positive")
	}

	// Worst case per venue: call timeout plus the full retry delay ladder.
	cfg.VenueTimeout = time.Duration(getEnvAsInt("VENUE_TIMEOUT_SECONDS", 20)) * time.Second
	if cfg.VenueTimeout <= cfg.OrderCallTimeout {
		errs = append(errs, "VENUE_TIMEOUT_SECONDS must exceed ORDER_CALL_TIMEOUT_SECONDS")
	}

	cfg.HealthInterval = time.Duration(getEnvAsInt("HEALTH_INTERVAL_SECONDS", 30)) * time.Second
	if cfg.HealthInterval <= 0 {
		errs = append(errs, "HEALTH_INTERVAL_SECONDS must be positive")
	}
	cfg.HealthTimeout = time.Duration(getEnvAsInt("HEALTH_TIMEOUT_SECONDS", 10)) * time.Second
	if cfg.HealthTimeout <= 0 {
		errs = append(errs, "HEALTH_TIMEOUT_SECONDS must be positive")
	}
	cfg.OfflineThreshold = getEnvAsInt("OFFLINE_THRESHOLD", 3)
	if cfg.OfflineThreshold <= 0 {
		errs = append(errs, "OFFLINE_THRESHOLD must be positive")
	}
	cfg.ReconnectMaxWait = time.Duration(getEnvAsInt("RECONNECT_MAX_WAIT_SECONDS", 30)) * time.Second
	if cfg.ReconnectMaxWait <= 0 {
		errs = append(errs, "RECONNECT_MAX_WAIT_SECONDS must be positive")
	}

	cfg.ShutdownGrace = time.Duration(getEnvAsInt("SHUTDOWN_GRACE_SECONDS", 30)) * time.Second
	if cfg.ShutdownGrace <= 0 {
		errs = append(errs, "SHUTDOWN_GRACE_SECONDS must be positive")
	}

	cfg.AlertQueueSize = getEnvAsInt("ALERT_QUEUE_SIZE", 64)
	if cfg.AlertQueueSize <= 0 {
		errs = append(errs, "ALERT_QUEUE_SIZE must be positive")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/execution_ledger.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseTokenMap parses "token:user" pairs separated by commas.
func parseTokenMap(raw string) (map[string]string, error) {
	tokens := make(map[string]string)
	if raw == "" {
		return tokens, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed pair %q, want token:user", pair)
		}
		if _, exists := tokens[parts[0]]; exists {
			return nil, fmt.Errorf("duplicate token %q", parts[0])
		}
		tokens[parts[0]] = parts[1]
	}
	return tokens, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
