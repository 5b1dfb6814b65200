// Package ratelimit provides a per-key token bucket for the webhook boundary.
package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter implements a token bucket per key (webhook token). Thread-safe.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	maxTokens  float64
	refillRate float64 // tokens per second
	clock      clock.Clock
}

// New creates a limiter allowing bursts of maxBurst and a steady rate of
// perSecond requests per key. A nil clock means wall-clock time.
func New(maxBurst int, perSecond float64, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	return &Limiter{
		buckets:    make(map[string]*bucket),
		maxTokens:  float64(maxBurst),
		refillRate: perSecond,
		clock:      clk,
	}
}

// Allow attempts to take one token for the key without blocking.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.maxTokens, lastRefill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * l.refillRate
		if b.tokens > l.maxTokens {
			b.tokens = l.maxTokens
		}
		b.lastRefill = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
