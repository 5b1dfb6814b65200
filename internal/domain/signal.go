package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of a trading signal.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// ParseSide maps the side values accepted at the webhook boundary onto a Side.
// Charting tools send "buy"/"sell"; "long"/"short" are accepted as aliases.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return Long, nil
	case "sell", "short":
		return Short, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// FingerprintBucket is the time-bucket width folded into a signal fingerprint.
// Two identical payloads arriving within the same bucket produce the same
// fingerprint and are treated as one signal.
const FingerprintBucket = 60 * time.Second

// Fingerprint derives the content hash used for both the signal ID and
// deduplication. The payload is normalized (symbol upper-cased, size rendered
// canonically) so cosmetic differences in the webhook body do not defeat dedup.
func Fingerprint(user, symbol string, side Side, size decimal.Decimal, at time.Time) string {
	bucket := at.UTC().Truncate(FingerprintBucket).Unix()
	payload := fmt.Sprintf("%s|%s|%s|%s|%d", user, strings.ToUpper(strings.TrimSpace(symbol)), side, size.String(), bucket)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Signal is one trading instruction derived from an inbound webhook.
// Immutable after construction: the processor reads it, never mutates it.
type Signal struct {
	ID         string
	Symbol     string
	Side       Side
	Size       decimal.Decimal
	ReceivedAt time.Time
	SourceUser string
}

// NewSignal builds a Signal whose ID is the content+time-bucket fingerprint.
func NewSignal(user, symbol string, side Side, size decimal.Decimal, at time.Time) *Signal {
	return &Signal{
		ID:         Fingerprint(user, symbol, side, size, at),
		Symbol:     strings.ToUpper(strings.TrimSpace(symbol)),
		Side:       side,
		Size:       size,
		ReceivedAt: at,
		SourceUser: user,
	}
}

// Validate checks the structural and business rules a signal must satisfy
// before any adapter is touched.
func (s *Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if s.Side != Long && s.Side != Short {
		return fmt.Errorf("side must be long or short, got %q", s.Side)
	}
	if s.Size.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("size must be positive, got %s", s.Size)
	}
	if s.SourceUser == "" {
		return fmt.Errorf("source user is required")
	}
	return nil
}
