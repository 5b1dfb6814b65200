// Package sqlite implements the execution ledger on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"

	"dexRelay/internal/domain"
	"dexRelay/internal/ports"
)

// Ledger implements the ports.LedgerRepository interface using SQLite.
// Attempts are append-only; nothing in this package updates or deletes rows.
type Ledger struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite ledger.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewLedger creates a new SQLite ledger instance.
func NewLedger(cfg Config) (*Ledger, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite ledger: %w", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/execution_ledger.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from limiting connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ledger := &Ledger{db: db, logger: cfg.Logger}

	if err := ledger.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Execution ledger initialized", map[string]interface{}{"path": dbPath})

	return ledger, nil
}

// initializeSchema creates tables if they don't exist.
func (l *Ledger) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS execution_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		signal_id TEXT NOT NULL,
		venue_id TEXT NOT NULL,
		status TEXT NOT NULL,
		filled_size TEXT NOT NULL,
		remaining_size TEXT NOT NULL,
		avg_price TEXT NOT NULL,
		latency_ms INTEGER NOT NULL,
		raw_response TEXT,
		attempt_number INTEGER NOT NULL,
		simulated INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		error_code TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_signal ON execution_attempts (signal_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_venue_created ON execution_attempts (venue_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_attempts_created ON execution_attempts (created_at);
	`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db != nil {
		l.logger.Info(context.Background(), "Closing execution ledger")
		return l.db.Close()
	}
	return nil
}

// Append persists a terminal execution attempt and returns its assigned ID.
func (l *Ledger) Append(ctx context.Context, attempt *domain.ExecutionAttempt) (int64, error) {
	const query = `
	INSERT INTO execution_attempts
		(signal_id, venue_id, status, filled_size, remaining_size, avg_price,
		 latency_ms, raw_response, attempt_number, simulated, error, error_code, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := l.db.ExecContext(ctx, query,
		attempt.SignalID, attempt.VenueID, attempt.Status,
		attempt.FilledSize.String(), attempt.RemainingSize.String(), attempt.AvgPrice.String(),
		attempt.LatencyMS, attempt.RawResponse, attempt.AttemptNumber,
		attempt.Simulated, attempt.Error, attempt.ErrorCode, attempt.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to append attempt for signal %s venue %s: %w: %w",
			attempt.SignalID, attempt.VenueID, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for signal %s: %w", attempt.SignalID, err)
	}
	attempt.ID = id
	l.logger.Debug(ctx, "Attempt appended to ledger", map[string]interface{}{
		"attemptID": id, "signalID": attempt.SignalID, "venue": attempt.VenueID, "status": attempt.Status,
	})
	return id, nil
}

const selectColumns = `
	SELECT id, signal_id, venue_id, status, filled_size, remaining_size, avg_price,
	       latency_ms, COALESCE(raw_response, ''), attempt_number, simulated,
	       COALESCE(error, ''), COALESCE(error_code, ''), created_at
	FROM execution_attempts`

// FindBySignal retrieves every attempt recorded for a signal.
func (l *Ledger) FindBySignal(ctx context.Context, signalID string) ([]*domain.ExecutionAttempt, error) {
	const query = selectColumns + ` WHERE signal_id = ? ORDER BY created_at ASC`
	return l.queryAttempts(ctx, query, signalID)
}

// FindByVenue retrieves the most recent attempts for a venue, up to a limit.
func (l *Ledger) FindByVenue(ctx context.Context, venueID string, limit int) ([]*domain.ExecutionAttempt, error) {
	const query = selectColumns + ` WHERE venue_id = ? ORDER BY created_at DESC LIMIT ?`
	return l.queryAttempts(ctx, query, venueID, limit)
}

// FindByTimeRange retrieves attempts created within [from, to), oldest first.
func (l *Ledger) FindByTimeRange(ctx context.Context, from, to time.Time) ([]*domain.ExecutionAttempt, error) {
	const query = selectColumns + ` WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC`
	return l.queryAttempts(ctx, query, from, to)
}

// VenueStats aggregates non-simulated outcomes per venue.
func (l *Ledger) VenueStats(ctx context.Context) ([]ports.VenueStats, error) {
	const query = `
	SELECT venue_id,
	       COUNT(*),
	       SUM(CASE WHEN status = 'filled' THEN 1 ELSE 0 END),
	       SUM(CASE WHEN status = 'partial' THEN 1 ELSE 0 END),
	       SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END),
	       SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
	FROM execution_attempts
	WHERE simulated = 0
	GROUP BY venue_id
	ORDER BY venue_id`

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query venue stats: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	stats := make([]ports.VenueStats, 0)
	for rows.Next() {
		var s ports.VenueStats
		if err := rows.Scan(&s.VenueID, &s.Attempts, &s.Filled, &s.Partial, &s.Rejected, &s.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan venue stats row: %w", err)
		}
		if s.Attempts > 0 {
			s.SuccessRate = float64(s.Filled+s.Partial) / float64(s.Attempts)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating venue stats rows: %w", err)
	}
	return stats, nil
}

func (l *Ledger) queryAttempts(ctx context.Context, query string, args ...interface{}) ([]*domain.ExecutionAttempt, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	attempts := make([]*domain.ExecutionAttempt, 0)
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempt rows: %w", err)
	}
	return attempts, nil
}

func scanAttempt(rows *sql.Rows) (*domain.ExecutionAttempt, error) {
	var a domain.ExecutionAttempt
	var filled, remaining, avgPrice string
	if err := rows.Scan(&a.ID, &a.SignalID, &a.VenueID, &a.Status,
		&filled, &remaining, &avgPrice,
		&a.LatencyMS, &a.RawResponse, &a.AttemptNumber, &a.Simulated,
		&a.Error, &a.ErrorCode, &a.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan attempt row: %w", err)
	}

	var err error
	if a.FilledSize, err = decimal.NewFromString(filled); err != nil {
		return nil, fmt.Errorf("invalid filled_size %q for attempt %d: %w", filled, a.ID, err)
	}
	if a.RemainingSize, err = decimal.NewFromString(remaining); err != nil {
		return nil, fmt.Errorf("invalid remaining_size %q for attempt %d: %w", remaining, a.ID, err)
	}
	if a.AvgPrice, err = decimal.NewFromString(avgPrice); err != nil {
		return nil, fmt.Errorf("invalid avg_price %q for attempt %d: %w", avgPrice, a.ID, err)
	}
	return &a, nil
}
