package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPLimiterAllowsBurstThenLimits(t *testing.T) {
	l := newIPLimiter(2)

	assert.True(t, l.get("10.0.0.1").Allow())
	assert.True(t, l.get("10.0.0.1").Allow())
	assert.False(t, l.get("10.0.0.1").Allow())
	// Another client has its own bucket.
	assert.True(t, l.get("10.0.0.2").Allow())
}

func TestIPLimiterEvictsIdleClients(t *testing.T) {
	l := newIPLimiter(6)
	clock := time.Now()
	l.now = func() time.Time { return clock }

	l.get("10.0.0.1")
	l.get("10.0.0.2")
	require.Len(t, l.limiters, 2)

	// One client stays active; the other goes dark.
	clock = clock.Add(evictAfter - time.Minute)
	l.get("10.0.0.1")

	clock = clock.Add(evictAfter - 2*time.Minute)
	l.get("10.0.0.3")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Contains(t, l.limiters, "10.0.0.1")
	assert.Contains(t, l.limiters, "10.0.0.3")
	assert.NotContains(t, l.limiters, "10.0.0.2")
}
