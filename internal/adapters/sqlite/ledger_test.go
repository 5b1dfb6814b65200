package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexRelay/internal/domain"
	"dexRelay/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestLedger creates a temporary database for testing
func setupTestLedger(t *testing.T) (*Ledger, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "dex-relay-test-*")
	require.NoError(t, err)

	ledger, err := NewLedger(Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		ledger.Close()
		os.RemoveAll(tmpDir)
	}
	return ledger, cleanup
}

func sampleAttempt(signalID, venueID string, status domain.AttemptStatus, at time.Time) *domain.ExecutionAttempt {
	return &domain.ExecutionAttempt{
		SignalID:      signalID,
		VenueID:       venueID,
		Status:        status,
		FilledSize:    decimal.NewFromFloat(1.5),
		RemainingSize: decimal.Zero,
		AvgPrice:      decimal.NewFromFloat(2001.25),
		LatencyMS:     42,
		RawResponse:   `{"order_id":"abc"}`,
		AttemptNumber: 1,
		CreatedAt:     at,
	}
}

func TestLedger_RequiresLogger(t *testing.T) {
	_, err := NewLedger(Config{DBPath: "unused.db"})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestLedger_UnreachableDatabase(t *testing.T) {
	// A directory where the database file should be makes the ping fail.
	_, err := NewLedger(Config{DBPath: t.TempDir(), Logger: &mockLogger{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDBConnection)
}

func TestLedger_AppendAndFindBySignal(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	a1 := sampleAttempt("sig-1", "venueA", domain.AttemptFilled, now)
	a2 := sampleAttempt("sig-1", "venueB", domain.AttemptFailed, now.Add(time.Millisecond))
	a2.Error = "venue operation timed out"
	a2.ErrorCode = "DEX_TIMEOUT"
	a2.AttemptNumber = 4

	id1, err := ledger.Append(ctx, a1)
	require.NoError(t, err)
	assert.Positive(t, id1)
	assert.Equal(t, id1, a1.ID, "domain object updated with assigned ID")

	_, err = ledger.Append(ctx, a2)
	require.NoError(t, err)

	found, err := ledger.FindBySignal(ctx, "sig-1")
	require.NoError(t, err)
	require.Len(t, found, 2)

	assert.Equal(t, "venueA", found[0].VenueID)
	assert.Equal(t, domain.AttemptFilled, found[0].Status)
	assert.True(t, found[0].FilledSize.Equal(decimal.NewFromFloat(1.5)))
	assert.True(t, found[0].AvgPrice.Equal(decimal.NewFromFloat(2001.25)))

	assert.Equal(t, "venueB", found[1].VenueID)
	assert.Equal(t, 4, found[1].AttemptNumber)
	assert.Equal(t, "DEX_TIMEOUT", found[1].ErrorCode)

	none, err := ledger.FindBySignal(ctx, "sig-missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLedger_FindByVenueHonorsLimitAndOrder(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		a := sampleAttempt("sig-n", "venueA", domain.AttemptFilled, base.Add(time.Duration(i)*time.Second))
		a.RawResponse = ""
		_, err := ledger.Append(ctx, a)
		require.NoError(t, err)
	}
	_, err := ledger.Append(ctx, sampleAttempt("sig-n", "venueB", domain.AttemptFilled, base))
	require.NoError(t, err)

	found, err := ledger.FindByVenue(ctx, "venueA", 3)
	require.NoError(t, err)
	require.Len(t, found, 3)
	// Most recent first.
	assert.True(t, found[0].CreatedAt.After(found[1].CreatedAt))
	assert.True(t, found[1].CreatedAt.After(found[2].CreatedAt))
}

func TestLedger_FindByTimeRange(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		a := sampleAttempt("sig-r", "venueA", domain.AttemptFilled, base.Add(time.Duration(i)*time.Hour))
		_, err := ledger.Append(ctx, a)
		require.NoError(t, err)
	}

	found, err := ledger.FindByTimeRange(ctx, base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 2, "range is half-open [from, to)")
	assert.True(t, found[0].CreatedAt.Before(found[1].CreatedAt), "oldest first")
}

func TestLedger_VenueStatsExcludesSimulated(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	real1 := sampleAttempt("sig-1", "venueA", domain.AttemptFilled, now)
	real2 := sampleAttempt("sig-2", "venueA", domain.AttemptFailed, now)
	real3 := sampleAttempt("sig-3", "venueA", domain.AttemptPartial, now)
	simulated := sampleAttempt("sig-4", "venueA", domain.AttemptFilled, now)
	simulated.Simulated = true

	for _, a := range []*domain.ExecutionAttempt{real1, real2, real3, simulated} {
		_, err := ledger.Append(ctx, a)
		require.NoError(t, err)
	}

	stats, err := ledger.VenueStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)

	s := stats[0]
	assert.Equal(t, "venueA", s.VenueID)
	assert.Equal(t, 3, s.Attempts, "simulated attempts are excluded")
	assert.Equal(t, 1, s.Filled)
	assert.Equal(t, 1, s.Partial)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate, 1e-9)
}
