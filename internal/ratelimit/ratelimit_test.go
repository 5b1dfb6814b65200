package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowsBurstThenRejects(t *testing.T) {
	l := New(3, 1.0, clock.NewMock())

	assert.True(t, l.Allow("tok"))
	assert.True(t, l.Allow("tok"))
	assert.True(t, l.Allow("tok"))
	assert.False(t, l.Allow("tok"), "burst exhausted")
}

func TestLimiter_RefillsOverTime(t *testing.T) {
	mockClock := clock.NewMock()
	l := New(2, 1.0, mockClock)

	assert.True(t, l.Allow("tok"))
	assert.True(t, l.Allow("tok"))
	assert.False(t, l.Allow("tok"))

	mockClock.Add(1 * time.Second)
	assert.True(t, l.Allow("tok"), "one token refilled after one second")
	assert.False(t, l.Allow("tok"))

	mockClock.Add(10 * time.Second)
	assert.True(t, l.Allow("tok"))
	assert.True(t, l.Allow("tok"))
	assert.False(t, l.Allow("tok"), "refill is capped at the burst size")
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New(1, 1.0, clock.NewMock())

	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))
	assert.True(t, l.Allow("bob"), "another key has its own bucket")
}
