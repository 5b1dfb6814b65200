package dedup

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestDeduplicator_FirstObservationIsNotDuplicate(t *testing.T) {
	d := New(60*time.Second, clock.NewMock())

	assert.False(t, d.IsDuplicate("fp-1"))
	assert.True(t, d.IsDuplicate("fp-1"))
	assert.False(t, d.IsDuplicate("fp-2"))
	assert.Equal(t, 2, d.Len())
}

func TestDeduplicator_EntryExpiresAfterTTL(t *testing.T) {
	mockClock := clock.NewMock()
	d := New(60*time.Second, mockClock)

	assert.False(t, d.IsDuplicate("fp-1"))

	mockClock.Add(59 * time.Second)
	assert.True(t, d.IsDuplicate("fp-1"), "still within the window")

	mockClock.Add(1 * time.Second)
	assert.False(t, d.IsDuplicate("fp-1"), "window elapsed, treated as new")
}

func TestDeduplicator_WindowAnchoredToFirstSighting(t *testing.T) {
	mockClock := clock.NewMock()
	d := New(60*time.Second, mockClock)

	assert.False(t, d.IsDuplicate("fp-1"))
	mockClock.Add(30 * time.Second)
	// Repeat observation must not extend the window.
	assert.True(t, d.IsDuplicate("fp-1"))
	mockClock.Add(30 * time.Second)
	assert.False(t, d.IsDuplicate("fp-1"), "60s after first sighting the entry is gone")
}

func TestDeduplicator_LazySweepBoundsMemory(t *testing.T) {
	mockClock := clock.NewMock()
	d := New(60*time.Second, mockClock)

	for i := 0; i < 100; i++ {
		d.IsDuplicate(fmt.Sprintf("fp-%d", i))
	}
	assert.Equal(t, 100, d.Len())

	mockClock.Add(61 * time.Second)
	d.IsDuplicate("fresh")
	assert.Equal(t, 1, d.Len(), "sweep removed every expired entry")
}

func TestDeduplicator_ConcurrentIdenticalFingerprints(t *testing.T) {
	d := New(60*time.Second, clock.NewMock())

	const goroutines = 50
	var wg sync.WaitGroup
	firstCount := make(chan bool, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !d.IsDuplicate("same-fp") {
				firstCount <- true
			}
		}()
	}
	wg.Wait()
	close(firstCount)

	n := 0
	for range firstCount {
		n++
	}
	assert.Equal(t, 1, n, "exactly one caller may observe the fingerprint first")
}

func TestDeduplicator_Defaults(t *testing.T) {
	d := New(0, nil)
	assert.Equal(t, DefaultTTL, d.ttl)
	assert.NotNil(t, d.clock)
}
