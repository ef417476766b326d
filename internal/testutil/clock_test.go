package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepClock_StartsAtBase(t *testing.T) {
	clock := NewStepClock(time.Time{}, 0)
	assert.Equal(t, DefaultBase, clock.Peek())
	assert.Equal(t, DefaultBase, clock.Now())
}

func TestStepClock_AdvancesByStep(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := NewStepClock(base, 10*time.Second)

	assert.Equal(t, base, clock.Now())
	assert.Equal(t, base.Add(10*time.Second), clock.Now())
	assert.Equal(t, base.Add(20*time.Second), clock.Now())
	assert.Equal(t, base.Add(30*time.Second), clock.Peek())
}

func TestStepClock_Reset(t *testing.T) {
	clock := NewStepClock(time.Time{}, time.Hour)
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, DefaultBase, clock.Now())
}

func TestStepClock_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, loc)
	clock := NewStepClock(base, time.Minute)
	assert.Equal(t, time.UTC, clock.Now().Location())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(time.Time{}, time.Millisecond)
	const numGoroutines = 50
	const callsPerGoroutine = 40

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				now := clock.Now()
				mu.Lock()
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, numGoroutines*callsPerGoroutine, "every read must return a distinct instant")
}
